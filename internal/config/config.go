package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	RemoteBaseURL string        // ストアAPIのベースURL
	RemoteTimeout time.Duration // 1リクエストのタイムアウト

	DatabaseURL      string // あれば優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	RedisAddr     string // セッション登録簿
	RedisPassword string
	RedisDB       int

	JWTSecret  string        // 空なら署名検証しない
	SessionTTL time.Duration // expの無いトークン用

	ShippingFee         int64
	InsuranceFee        int64
	CartRefreshInterval time.Duration // 0で定期取得なし
	CartPolicy          string        // confirm / optimistic

	LogLevel string
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := atoiOr("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := atoiOr("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	shipping, err := atoiOr("SHIPPING_FEE", 7000)
	if err != nil {
		return Config{}, err
	}
	insurance, err := atoiOr("INSURANCE_FEE", 800)
	if err != nil {
		return Config{}, err
	}
	remoteTimeout, err := durationOr("REMOTE_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	refreshInterval, err := durationOr("CART_REFRESH_INTERVAL", 0)
	if err != nil {
		return Config{}, err
	}
	sessionTTL, err := durationOr("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: getenv("PORT", "8080"),

		RemoteBaseURL: os.Getenv("REMOTE_BASE_URL"),
		RemoteTimeout: remoteTimeout,

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       getenv("POSTGRES_DB", "storefront"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		JWTSecret:  os.Getenv("JWT_SECRET"),
		SessionTTL: sessionTTL,

		ShippingFee:         int64(shipping),
		InsuranceFee:        int64(insurance),
		CartRefreshInterval: refreshInterval,
		CartPolicy:          getenv("CART_POLICY", "confirm"),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	//必須チェック
	if cfg.RemoteBaseURL == "" {
		return Config{}, fmt.Errorf("REMOTE_BASE_URL is required")
	}
	if u, err := url.Parse(cfg.RemoteBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("REMOTE_BASE_URL must be absolute url")
	}
	if cfg.RemoteTimeout <= 0 {
		return Config{}, fmt.Errorf("REMOTE_TIMEOUT must be positive")
	}
	if cfg.DatabaseURL == "" && cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or POSTGRES_PASSWORD is required")
	}
	if cfg.ShippingFee < 0 || cfg.InsuranceFee < 0 {
		return Config{}, fmt.Errorf("SHIPPING_FEE and INSURANCE_FEE must not be negative")
	}
	if cfg.CartRefreshInterval < 0 {
		return Config{}, fmt.Errorf("CART_REFRESH_INTERVAL must not be negative")
	}
	if cfg.CartPolicy != "confirm" && cfg.CartPolicy != "optimistic" {
		return Config{}, fmt.Errorf("CART_POLICY must be confirm or optimistic")
	}

	return cfg, nil
}

// Addr はlisten用のアドレス（":8080"）。
func (c Config) Addr() string {
	if c.Port != "" && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

// DSN はDATABASE_URLが無ければPOSTGRES_*から組み立てる。
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}
