package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLimit はウィンドウあたりのデフォルトのリクエスト上限。
	DefaultLimit = 60
	// DefaultWindow はデフォルトのウィンドウ長。
	DefaultWindow = 60 * time.Second
)

// Decision はアドミッション判定の結果。
type Decision int

const (
	// Allowed はリクエストを受理したことを表す。
	Allowed Decision = iota
	// Denied は上限超過でリクエストを拒否したことを表す。
	Denied
)

// String は判定結果の文字列表現を返す。
func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Limiter はクライアント単位のスライディングウィンドウ型レート制限器。
// プロセス起動時に1つだけ生成し、すべてのリクエスト処理経路で共有する。
type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics
}

// Option はLimiterの設定を変更する関数。
type Option func(*Limiter)

// WithLimit はウィンドウあたりのリクエスト上限を設定する。
func WithLimit(limit int) Option {
	return func(l *Limiter) {
		l.limit = limit
	}
}

// WithWindow はウィンドウ長を設定する。
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		l.window = window
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithMetrics は判定結果を記録するメトリクスを設定する。
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New は新しいLimiterを生成する。
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  DefaultLimit,
		window: DefaultWindow,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit はクライアントのリクエストを受理するか判定する。
//
// 1. 全クライアント分の期限切れ記録を削除する。
// 2. clientIDを接頭辞に持つ記録を数える。
// 3. 上限に達していれば何も変更せずにDeniedを返す。
// 4. そうでなければ新しい記録を追加してAllowedを返す。
//
// 保存先のエラーは判定に影響させず、リクエストを受理する（フェイルオープン）。
func (l *Limiter) Admit(ctx context.Context, clientID string) Decision {
	now := l.now()

	if err := l.store.Sweep(ctx, now.Add(-l.window)); err != nil {
		l.logger.Warn("期限切れアドミッション記録の削除に失敗", zap.Error(err))
	}

	count, err := l.store.CountPrefix(ctx, clientID)
	if err != nil {
		l.logger.Warn("アドミッション記録の計数に失敗したため受理します",
			zap.String("client_id", clientID), zap.Error(err))
		l.metrics.observe(Allowed)
		return Allowed
	}

	if count >= l.limit {
		l.logger.Debug("レート制限によりリクエストを拒否",
			zap.String("client_id", clientID),
			zap.Int("count", count),
			zap.Int("limit", l.limit),
		)
		l.metrics.observe(Denied)
		return Denied
	}

	key := clientID + "_" + uuid.NewString()
	if err := l.store.Insert(ctx, key, now); err != nil {
		l.logger.Warn("アドミッション記録の保存に失敗", zap.String("client_id", clientID), zap.Error(err))
	}
	l.metrics.observe(Allowed)
	return Allowed
}

// Allow はAdmitの結果を真偽値で返す。
func (l *Limiter) Allow(ctx context.Context, clientID string) bool {
	return l.Admit(ctx, clientID) == Allowed
}

// Limit はウィンドウあたりのリクエスト上限を返す。
func (l *Limiter) Limit() int {
	return l.limit
}

// Window はウィンドウ長を返す。
func (l *Limiter) Window() time.Duration {
	return l.window
}
