package health

import "encoding/json"

// Status はクラスタの死活状態。
type Status string

const (
	// StatusHealthy は正常を表す。
	StatusHealthy Status = "Healthy"
	// StatusUnhealthy は異常を表す。
	StatusUnhealthy Status = "Unhealthy"
)

// Verdict はクラスタ1件のプローブ結果。
type Verdict struct {
	// Status は死活状態。
	Status Status
	// Detail は異常時の詳細（HTTPステータスまたはエラーメッセージ）。
	Detail string
}

// Healthy は正常の判定を返す。
func Healthy() Verdict {
	return Verdict{Status: StatusHealthy}
}

// Unhealthy は詳細付きの異常の判定を返す。
func Unhealthy(detail string) Verdict {
	return Verdict{Status: StatusUnhealthy, Detail: detail}
}

// IsHealthy は正常の判定であればtrueを返す。
func (v Verdict) IsHealthy() bool {
	return v.Status == StatusHealthy
}

// String は "Healthy" または "Unhealthy - <詳細>" を返す。
func (v Verdict) String() string {
	if v.IsHealthy() {
		return string(StatusHealthy)
	}
	return string(StatusUnhealthy) + " - " + v.Detail
}

// MarshalJSON はString()の結果をJSON文字列として出力する。
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}
