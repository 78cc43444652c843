package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// BackendMemory はプロセス内メモリにアドミッション記録を保持するバックエンド。
	BackendMemory = "memory"
	// BackendRedis はRedisにアドミッション記録を保持するバックエンド。
	// 複数のGatewayレプリカで同じクォータを共有する場合に使用する。
	BackendRedis = "redis"
)

// envPrefix は環境変数で設定を上書きする際の接頭辞。
const envPrefix = "GATEWAY"

// Config はGatewayサービス全体の設定。
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	RateLimit    RateLimitConfig    `mapstructure:"rateLimit"`
	Health       HealthConfig       `mapstructure:"health"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Database     DatabaseConfig     `mapstructure:"database"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Log          LogConfig          `mapstructure:"log"`
	ReverseProxy ReverseProxyConfig `mapstructure:"reverseProxy"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はサーバーのリッスンポート。
	Port string `mapstructure:"port"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// RateLimitConfig はクライアント単位のレート制限の設定。
type RateLimitConfig struct {
	// Limit はウィンドウ内で許可するリクエスト数。
	Limit int `mapstructure:"limit"`
	// Window はリクエスト数を数えるスライディングウィンドウの長さ。
	Window time.Duration `mapstructure:"window"`
	// Backend はアドミッション記録の保存先（"memory" または "redis"）。
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig はRedisバックエンドの接続設定。
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
	// DialTimeout は接続確立のタイムアウト。
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	// MaxRetries は失敗したコマンドと接続の再試行回数。0の場合は再試行しない。
	MaxRetries int `mapstructure:"maxRetries"`
}

// HealthConfig はヘルスチェック集約の設定。
type HealthConfig struct {
	// ProbeTimeout は宛先1件ごとのプローブのタイムアウト。
	ProbeTimeout time.Duration `mapstructure:"probeTimeout"`
	// MaxConcurrency は同時に実行するプローブ数の上限。
	MaxConcurrency int `mapstructure:"maxConcurrency"`
}

// JWTConfig はBearerトークン検証の設定。
type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// AuthConfig は認証関連エンドポイントの設定。
type AuthConfig struct {
	// DevTokenEnabled が true の場合のみ開発用トークン発行エンドポイントを公開する。
	DevTokenEnabled bool `mapstructure:"devTokenEnabled"`
}

// DatabaseConfig はSQLiteデータベースの設定。
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CORSConfig はクロスオリジンリクエストの設定。
type CORSConfig struct {
	// AllowedOrigins は許可するオリジン。"*" は全オリジンを許可する。
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// LogConfig はロガーの設定。
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// ReverseProxyConfig はルートとクラスタの静的な構成。
type ReverseProxyConfig struct {
	Routes   []Route   `mapstructure:"routes"`
	Clusters []Cluster `mapstructure:"clusters"`
}

// Route はパス接頭辞とクラスタの対応付け。
type Route struct {
	// Name はルートの名前。ログ出力に使用する。
	Name string `mapstructure:"name"`
	// ClusterID は転送先クラスタの名前。
	ClusterID string `mapstructure:"clusterId"`
	// Path はマッチさせるパス接頭辞（例: "/api/users"）。
	Path string `mapstructure:"path"`
	// RequireAuth が true の場合、転送前にBearerトークンを検証する。
	RequireAuth bool `mapstructure:"requireAuth"`
}

// Cluster は同等の宛先をまとめた名前付きグループ。
type Cluster struct {
	Name         string        `mapstructure:"name"`
	Destinations []Destination `mapstructure:"destinations"`
}

// Destination はクラスタ内の1つの宛先。
// Address は末尾にスラッシュを含むベースURL（例: "http://users:5002/"）。
type Destination struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

// Load は設定ファイルと環境変数から設定を読み込む。
// pathが空の場合はデフォルト値と環境変数のみを使用する。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 既存のデプロイメントで使っている環境変数名も受け付ける
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("環境変数のバインドに失敗: key=%s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: path=%s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// legacyEnv は設定キーと従来の環境変数名の対応。
// FRONTEND_URL はカンマ区切りで複数のオリジンを指定できる。
var legacyEnv = map[string]string{
	"server.port":         "PORT",
	"jwt.secret":          "JWT_SECRET",
	"cors.allowedOrigins": "FRONTEND_URL",
}

// setDefaults はすべての設定キーにデフォルト値を登録する。
// AutomaticEnv はデフォルト値が登録されたキーのみUnmarshal時に参照するため、
// 環境変数で上書きしたいキーは必ずここに列挙すること。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("rateLimit.limit", 60)
	v.SetDefault("rateLimit.window", 60*time.Second)
	v.SetDefault("rateLimit.backend", BackendMemory)
	v.SetDefault("rateLimit.redis.addr", "localhost:6379")
	v.SetDefault("rateLimit.redis.password", "")
	v.SetDefault("rateLimit.redis.db", 0)
	v.SetDefault("rateLimit.redis.keyPrefix", "ratelimit:")
	v.SetDefault("rateLimit.redis.dialTimeout", 500*time.Millisecond)
	v.SetDefault("rateLimit.redis.maxRetries", 0)

	v.SetDefault("health.probeTimeout", 5*time.Second)
	v.SetDefault("health.maxConcurrency", 32)

	v.SetDefault("jwt.secret", "dev-secret-key")
	v.SetDefault("jwt.issuer", "gateway")
	v.SetDefault("jwt.audience", "")

	v.SetDefault("auth.devTokenEnabled", false)
	v.SetDefault("database.path", "gateway.db")
	v.SetDefault("cors.allowedOrigins", []string{"*"})
	v.SetDefault("log.development", false)
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, fmt.Errorf("rateLimit.limit は1以上である必要があります: %d", c.RateLimit.Limit))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rateLimit.window は正の値である必要があります: %s", c.RateLimit.Window))
	}
	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("rateLimit.backend が不正です: %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Backend == BackendRedis {
		if c.RateLimit.Redis.DialTimeout <= 0 {
			errs = append(errs, fmt.Errorf("rateLimit.redis.dialTimeout は正の値である必要があります: %s", c.RateLimit.Redis.DialTimeout))
		}
		if c.RateLimit.Redis.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("rateLimit.redis.maxRetries は0以上である必要があります: %d", c.RateLimit.Redis.MaxRetries))
		}
	}
	if c.Health.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("health.probeTimeout は正の値である必要があります: %s", c.Health.ProbeTimeout))
	}
	if c.Health.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("health.maxConcurrency は1以上である必要があります: %d", c.Health.MaxConcurrency))
	}

	clusters := make(map[string]struct{}, len(c.ReverseProxy.Clusters))
	for _, cl := range c.ReverseProxy.Clusters {
		if cl.Name == "" {
			errs = append(errs, errors.New("クラスタ名が空です"))
			continue
		}
		if _, dup := clusters[cl.Name]; dup {
			errs = append(errs, fmt.Errorf("クラスタ名が重複しています: %s", cl.Name))
		}
		clusters[cl.Name] = struct{}{}
	}
	for _, r := range c.ReverseProxy.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("ルート %q のパスは / で始まる必要があります: %q", r.Name, r.Path))
		}
		if _, ok := clusters[r.ClusterID]; !ok {
			errs = append(errs, fmt.Errorf("ルート %q が未定義のクラスタを参照しています: %q", r.Name, r.ClusterID))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	return nil
}

// Cluster は名前でクラスタを検索する。
func (c *Config) Cluster(name string) (Cluster, bool) {
	for _, cl := range c.ReverseProxy.Clusters {
		if cl.Name == name {
			return cl, true
		}
	}
	return Cluster{}, false
}
