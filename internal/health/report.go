package health

import (
	"encoding/json"
	"time"
)

const (
	descriptionHealthy   = "All services are healthy"
	descriptionUnhealthy = "Some services are unhealthy"
)

// Report は全クラスタのプローブ結果を集約したもの。
// プローブのたびに新しく生成され、永続化されない。
type Report struct {
	// Healthy はすべての判定が正常の場合のみtrue。
	Healthy bool
	// Clusters はクラスタ名から判定への対応。
	// 宛先が1件もプローブされなかったクラスタは含まれない。
	Clusters map[string]Verdict
	// Duration はプローブ開始から集約完了までの所要時間。
	Duration time.Duration
}

// Status は全体の死活状態を返す。
func (r Report) Status() Status {
	if r.Healthy {
		return StatusHealthy
	}
	return StatusUnhealthy
}

// Description は全体の状態の説明文を返す。
func (r Report) Description() string {
	if r.Healthy {
		return descriptionHealthy
	}
	return descriptionUnhealthy
}

// reportJSON はReportのJSON表現。
type reportJSON struct {
	Status      Status             `json:"status"`
	Description string             `json:"description"`
	Duration    string             `json:"duration"`
	Entries     map[string]Verdict `json:"entries"`
}

// MarshalJSON はReportをレスポンス用のJSONに変換する。
func (r Report) MarshalJSON() ([]byte, error) {
	entries := r.Clusters
	if entries == nil {
		entries = map[string]Verdict{}
	}
	return json.Marshal(reportJSON{
		Status:      r.Status(),
		Description: r.Description(),
		Duration:    r.Duration.String(),
		Entries:     entries,
	})
}
