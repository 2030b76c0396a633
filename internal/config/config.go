package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// 永続化ストアの種類
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 許可リスト（WHITELIST_EMAILS）はサインイン評価のたびに読み直すため、ここでは保持しない。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
	GoogleIssuerURL    string `env:"GOOGLE_ISSUER_URL" envDefault:"https://accounts.google.com"`

	// Session
	SessionSecret string `env:"SESSION_SECRET"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"2592000"` // 30日（秒）

	// Access
	AllowListEnvKey string `env:"WHITELIST_ENV_KEY" envDefault:"WHITELIST_EMAILS"`
	AllowListFile   string `env:"WHITELIST_FILE"`

	// Directory
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"3s"`
	SignInTimeout    time.Duration `env:"SIGNIN_TIMEOUT" envDefault:"5s"`
	UserCacheTTL     time.Duration `env:"USER_CACHE_TTL" envDefault:"0s"`
	UserCacheSize    int           `env:"USER_CACHE_SIZE" envDefault:"1024"`

	// Rate Limit
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"30"` // req/min/IP

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL    string `env:"BASE_URL"`

	// X-Forwarded-For等からクライアントIPを決定するか。信頼できるリバースプロキシの背後でのみ有効にする
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Required fields
	var missing []string
	required := []struct {
		key   string
		value string
	}{
		{"GOOGLE_CLIENT_ID", cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URL", cfg.GoogleRedirectURL},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"BASE_URL", cfg.BaseURL},
	}
	if cfg.StoreDriver == StoreDriverPostgres {
		required = append([]struct {
			key   string
			value string
		}{{"DATABASE_URL", cfg.DatabaseURL}}, required...)
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}
	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", cfg.SessionMaxAge)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// SessionMaxAgeDuration はセッション有効期間をtime.Durationで返す。
func (c *Config) SessionMaxAgeDuration() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}
