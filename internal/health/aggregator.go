package health

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/gateway/internal/config"
	"github.com/nao1215/gateway/pkg/httpclient"
)

const (
	// DefaultTimeout は宛先1件あたりのプローブのデフォルトのタイムアウト。
	DefaultTimeout = 5 * time.Second
	// DefaultMaxConcurrency は同時に実行するプローブ数のデフォルトの上限。
	DefaultMaxConcurrency = 32
	// probePath は宛先アドレスに連結する死活監視パス。
	probePath = "health"
)

// Aggregator は全クラスタの宛先を並行にプローブし、結果を1つのReportにまとめる。
// 状態を持たないため、プロセス全体で1つのインスタンスを共有できる。
type Aggregator struct {
	httpClient     *http.Client
	timeout        time.Duration
	maxConcurrency int
	logger         *zap.Logger
	metrics        *Metrics
}

// Option はAggregatorの設定を変更する関数。
type Option func(*Aggregator)

// WithTimeout は宛先1件あたりのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// WithMaxConcurrency は同時に実行するプローブ数の上限を設定する。
func WithMaxConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.maxConcurrency = n
	}
}

// WithHTTPClient はプローブに使うHTTPクライアントを設定する。
// タイムアウトはWithTimeoutの値で上書きされる。
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Aggregator) {
		a.httpClient = hc
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics はプローブ結果を記録するメトリクスを設定する。
func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// NewAggregator は新しいAggregatorを生成する。
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		httpClient:     &http.Client{},
		timeout:        DefaultTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// target はプローブ対象の宛先1件。
type target struct {
	cluster string
	address string
}

// CheckHealth は全クラスタの宛先をプローブしてReportを返す。
//
// アドレスが空の宛先はスキップする。宛先を1件もプローブしなかったクラスタは
// Reportに含まれない。複数の宛先を持つクラスタは、いずれかの宛先が異常であれば
// 異常とし、設定順で最初に失敗した宛先の詳細を使う。
// ctxのキャンセルは実行中のプローブに伝播し、それらは異常として記録される。
func (a *Aggregator) CheckHealth(ctx context.Context, clusters []config.Cluster) Report {
	start := time.Now()

	var targets []target
	for _, cl := range clusters {
		for _, d := range cl.Destinations {
			if d.Address == "" {
				continue
			}
			targets = append(targets, target{cluster: cl.Name, address: d.Address})
		}
	}

	// 各タスクは自分の添字にのみ書き込むため、結果の収集にロックは不要
	verdicts := make([]Verdict, len(targets))
	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)
	for i, tg := range targets {
		g.Go(func() error {
			verdicts[i] = a.probe(ctx, tg)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Healthy:  true,
		Clusters: make(map[string]Verdict),
	}
	for i, tg := range targets {
		v := verdicts[i]
		prev, seen := report.Clusters[tg.cluster]
		if !seen || (prev.IsHealthy() && !v.IsHealthy()) {
			report.Clusters[tg.cluster] = v
		}
		if !v.IsHealthy() {
			report.Healthy = false
		}
	}
	report.Duration = time.Since(start)

	a.logger.Debug("ヘルスチェックを集約しました",
		zap.Bool("healthy", report.Healthy),
		zap.Int("destinations", len(targets)),
		zap.Duration("duration", report.Duration),
	)
	return report
}

// probe は宛先1件に死活監視リクエストを送り、判定を返す。
// 失敗はすべてUnhealthyとして表現し、呼び出し元にエラーを返さない。
func (a *Aggregator) probe(ctx context.Context, tg target) Verdict {
	start := time.Now()
	client := httpclient.New(tg.address,
		httpclient.WithHTTPClient(a.httpClient),
		httpclient.WithTimeout(a.timeout),
	)

	v := Healthy()
	if err := client.Probe(ctx, probePath); err != nil {
		v = Unhealthy(err.Error())
		a.logger.Warn("宛先のヘルスチェックに失敗",
			zap.String("cluster", tg.cluster),
			zap.String("address", tg.address),
			zap.Error(err),
		)
	}
	a.metrics.observe(tg.cluster, v, time.Since(start))
	return v
}
