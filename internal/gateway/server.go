package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/gateway/internal/config"
	gatewaydb "github.com/nao1215/gateway/internal/gateway/db"
	"github.com/nao1215/gateway/internal/health"
	"github.com/nao1215/gateway/internal/ratelimit"
	"github.com/nao1215/gateway/internal/routes"
	"github.com/nao1215/gateway/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Version はステータスエンドポイントで返すGatewayのバージョン。
const Version = "1.0.0"

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	cfg    *config.Config
	logger *zap.Logger
	// limiter はクライアント単位のレート制限を行う。
	limiter *ratelimit.Limiter
	// aggregator は内部サービスのヘルスチェックを集約する。
	aggregator *health.Aggregator
	// registry は公開するルート一覧を保持する。
	registry *routes.Registry
	proxy    *reverseProxy
	// queries は開発用トークンのユーザーを管理する。
	queries *gatewaydb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// redis はRedisバックエンド使用時のクライアント。メモリバックエンドではnil。
	redis     redis.UniversalClient
	jwtConfig middleware.JWTConfig
	// metrics は/metricsで公開するPrometheusレジストリ。
	metrics *prometheus.Registry
}

// NewServer は設定から新しいGatewayサーバーを生成する。
// SQLiteデータベースの初期化とレート制限ストアの接続を行う。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", cfg.Database.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := initSchema(ctx, sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	var (
		store       ratelimit.Store
		redisClient redis.UniversalClient
	)
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		redisClient = redis.NewClient(redisOptions(cfg.RateLimit.Redis))
		// 接続できなくても起動は続ける。Redisの障害時はリクエストを受理する
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redisに接続できません", zap.String("addr", cfg.RateLimit.Redis.Addr), zap.Error(err))
		}
		store = ratelimit.NewRedisStore(redisClient, cfg.RateLimit.Redis.KeyPrefix, cfg.RateLimit.Window)
	default:
		store = ratelimit.NewMemoryStore()
	}

	s, err := newServer(cfg, logger, store, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	s.redis = redisClient
	return s, nil
}

// redisDialRetryBackoff はRedisへの接続を再試行するまでの待ち時間。
// go-redisは0以下を既定値（100ms）として扱うため、明示的に指定する。
const redisDialRetryBackoff = 10 * time.Millisecond

// redisOptions はRedisバックエンドの接続設定を生成する。
// Redisの障害時はリクエストを受理するため、接続と再試行に時間をかけすぎないようにする。
func redisOptions(cfg config.RedisConfig) *redis.Options {
	// go-redisのMaxRetriesは0で既定値（3回）になり、-1で再試行しない
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	return &redis.Options{
		Addr:               cfg.Addr,
		Password:           cfg.Password,
		DB:                 cfg.DB,
		DialTimeout:        cfg.DialTimeout,
		MaxRetries:         maxRetries,
		DialerRetries:      cfg.MaxRetries + 1,
		DialerRetryTimeout: redisDialRetryBackoff,
	}
}

// newServer は初期化済みの依存からサーバーを組み立てる。
func newServer(cfg *config.Config, logger *zap.Logger, store ratelimit.Store, sqlDB *sql.DB) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	proxy, err := newReverseProxy(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: gin.New(),
		cfg:    cfg,
		logger: logger,
		limiter: ratelimit.New(store,
			ratelimit.WithLimit(cfg.RateLimit.Limit),
			ratelimit.WithWindow(cfg.RateLimit.Window),
			ratelimit.WithLogger(logger),
			ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
		),
		aggregator: health.NewAggregator(
			health.WithTimeout(cfg.Health.ProbeTimeout),
			health.WithMaxConcurrency(cfg.Health.MaxConcurrency),
			health.WithLogger(logger),
			health.WithMetrics(health.NewMetrics(reg)),
		),
		registry: routes.NewRegistry(),
		proxy:    proxy,
		queries:  gatewaydb.New(sqlDB),
		db:       sqlDB,
		jwtConfig: middleware.JWTConfig{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		},
		metrics: reg,
	}

	s.router.Use(middleware.Recovery(logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(logger))
	s.router.Use(middleware.NewMetrics(reg).Middleware())
	s.router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	s.router.Use(middleware.RateLimit(s.limiter))
	s.setupRoutes()

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gatewayサービスを起動します", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("Gatewayサービスの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Gatewayサービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}
	return nil
}

// Close はデータベースとRedisの接続を閉じる。
func (s *Server) Close() error {
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("データベースのクローズに失敗: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("Redisのクローズに失敗: %w", err))
		}
	}
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	auth := middleware.JWTAuth(s.jwtConfig)

	api := s.router.Group("/api/gateway")
	{
		api.GET("/status", s.handleStatus())
		api.GET("/routes", auth, s.handleListRoutes())
		api.GET("/me", auth, s.handleGetCurrentUser())
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{Registry: s.metrics})))

	if s.cfg.Auth.DevTokenEnabled {
		s.router.POST("/auth/dev-token", s.handleDevToken())
	}

	// 上記以外のパスは設定されたクラスタへ転送する
	s.router.NoRoute(s.proxy.ginHandler(auth))
}

// handleStatus はGateway自身の稼働状態を返すハンドラを返す。
func (s *Server) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "Healthy",
			"timestamp": time.Now().UTC(),
			"version":   Version,
		})
	}
}

// handleListRoutes は公開しているサービスルートの一覧を返すハンドラを返す。
func (s *Server) handleListRoutes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.registry.ListRoutes())
	}
}

// handleHealth は全クラスタのヘルスチェック結果を返すハンドラを返す。
// 1つでも異常なクラスタがあれば503を返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := s.aggregator.CheckHealth(c.Request.Context(), s.cfg.ReverseProxy.Clusters)
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// auth.devTokenEnabled が true の場合のみ登録される。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		params := gatewaydb.GetUserByProviderParams{
			Provider:       "dev",
			ProviderUserID: "dev-user",
		}

		var userID string
		user, err := s.queries.GetUserByProvider(ctx, params)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// 開発用ユーザーが存在しなければ作成
			userID = uuid.NewString()
			if err := s.queries.CreateUser(ctx, gatewaydb.CreateUserParams{
				ID:             userID,
				Provider:       params.Provider,
				ProviderUserID: params.ProviderUserID,
				Email:          "dev@localhost",
				DisplayName:    "開発ユーザー",
			}); err != nil {
				s.logger.Error("開発ユーザー作成エラー", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー作成に失敗しました"})
				return
			}
		case err != nil:
			s.logger.Error("開発ユーザー取得エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		default:
			userID = user.ID
			if err := s.queries.UpdateLastLogin(ctx, userID); err != nil {
				s.logger.Warn("最終ログイン日時の更新に失敗", zap.String("user_id", userID), zap.Error(err))
			}
		}

		token, err := middleware.GenerateJWT(s.jwtConfig, userID, "dev@localhost")
		if err != nil {
			s.logger.Error("JWT生成エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": userID,
		})
	}
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		case err != nil:
			s.logger.Error("ユーザー取得エラー", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"avatar_url":   user.AvatarUrl,
			"provider":     user.Provider,
		})
	}
}
