// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Payments  PaymentsConfig  `koanf:"payments"`
	Storage   StorageConfig   `koanf:"storage"`
	Notify    NotifyConfig    `koanf:"notify"`
	Progress  ProgressConfig  `koanf:"progress"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	PublicURL   string `koanf:"public_url"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type JWTConfig struct {
	PrivateKeyPath     string        `koanf:"private_key_path"`
	PublicKeyPath      string        `koanf:"public_key_path"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
	CookieSecure       bool          `koanf:"cookie_secure"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
	// Form limits apply per caller and route to the public marketing and
	// credential forms.
	FormRequests int `koanf:"form_requests"`
	FormBurst    int `koanf:"form_burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Mode selects which Stripe credentials and price IDs are in effect.
// It is resolved once at load and never re-read per request.
type Mode string

const (
	ModeLive Mode = "live"
	ModeTest Mode = "test"
)

func (m Mode) IsTest() bool {
	return m == ModeTest
}

type PaymentsConfig struct {
	Mode              Mode   `koanf:"mode"`
	LiveSecretKey     string `koanf:"live_secret_key"`
	TestSecretKey     string `koanf:"test_secret_key"`
	LiveWebhookSecret string `koanf:"live_webhook_secret"`
	TestWebhookSecret string `koanf:"test_webhook_secret"`
	// PlanInstallments is how many paid invoices complete a payment plan.
	PlanInstallments int `koanf:"plan_installments"`
}

func (p PaymentsConfig) SecretKey() string {
	if p.Mode.IsTest() {
		return p.TestSecretKey
	}
	return p.LiveSecretKey
}

func (p PaymentsConfig) WebhookSecret() string {
	if p.Mode.IsTest() {
		return p.TestWebhookSecret
	}
	return p.LiveWebhookSecret
}

type StorageConfig struct {
	Region          string        `koanf:"region"`
	Bucket          string        `koanf:"bucket"`
	AccessKeyID     string        `koanf:"access_key_id"`
	SecretAccessKey string        `koanf:"secret_access_key"`
	Endpoint        string        `koanf:"endpoint"`
	SignedURLTTL    time.Duration `koanf:"signed_url_ttl"`
	// Guides maps a product slug to its public program-guide PDF key.
	Guides map[string]string `koanf:"guides"`
}

type NotifyConfig struct {
	BrevoAPIKey   string          `koanf:"brevo_api_key"`
	BrevoBaseURL  string          `koanf:"brevo_base_url"`
	Timeout       time.Duration   `koanf:"timeout"`
	Workers       int             `koanf:"workers"`
	QueueSize     int             `koanf:"queue_size"`
	RetryAttempts uint            `koanf:"retry_attempts"`
	RetryDelay    time.Duration   `koanf:"retry_delay"`
	Templates     TemplatesConfig `koanf:"templates"`
	Lists         ListsConfig     `koanf:"lists"`
}

type TemplatesConfig struct {
	Welcome              int64 `koanf:"welcome"`
	PurchaseConfirmation int64 `koanf:"purchase_confirmation"`
	PasswordReset        int64 `koanf:"password_reset"`
	BonusUnlocked        int64 `koanf:"bonus_unlocked"`
	NewsletterWelcome    int64 `koanf:"newsletter_welcome"`
}

type ListsConfig struct {
	PortalUsers int64 `koanf:"portal_users"`
	Newsletter  int64 `koanf:"newsletter"`
	BookSession int64 `koanf:"book_session"`
}

type ProgressConfig struct {
	VideoCompleteThreshold int `koanf:"video_complete_threshold"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		c, err := load(configPath)
		if err != nil {
			loadErr = err
			return
		}
		cfg = c
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c.Payments.Mode = Mode(strings.ToLower(string(c.Payments.Mode)))

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Fertility Flow Portal",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.public_url":  "http://localhost:3000",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     10,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 2,

		"jwt.access_token_expire":  "15m",
		"jwt.refresh_token_expire": "720h",
		"jwt.issuer":               "fertility-portal",
		"jwt.audience":             "fertility-portal-api",
		"jwt.private_key_path":     "keys/private.pem",
		"jwt.public_key_path":      "keys/public.pem",
		"jwt.cookie_secure":        true,

		"rate_limit.requests": 120,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    30,

		"rate_limit.form_requests": 10,
		"rate_limit.form_burst":    5,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           86400,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "fertility-portal",

		"payments.mode":              string(ModeLive),
		"payments.plan_installments": 3,

		"storage.region":         "us-east-1",
		"storage.signed_url_ttl": "1h",
		"storage.guides": map[string]any{
			"stress-free-goddess": "pdfs/stress-free-goddess/program-guide.pdf",
		},

		"notify.brevo_base_url": "https://api.brevo.com/v3",
		"notify.timeout":        "10s",
		"notify.workers":        4,
		"notify.queue_size":     256,
		"notify.retry_attempts": 3,
		"notify.retry_delay":    "500ms",

		"notify.lists.portal_users": 9,
		"notify.lists.newsletter":   5,
		"notify.lists.book_session": 6,

		"notify.templates.welcome":               2,
		"notify.templates.purchase_confirmation": 3,
		"notify.templates.password_reset":        4,
		"notify.templates.newsletter_welcome":    1,

		"progress.video_complete_threshold": 90,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"PUBLIC_URL":                  "app.public_url",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "jwt.refresh_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"JWT_COOKIE_SECURE":           "jwt.cookie_secure",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"RATE_LIMIT_FORM_REQUESTS":    "rate_limit.form_requests",
	"RATE_LIMIT_FORM_BURST":       "rate_limit.form_burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"STRIPE_MODE":                 "payments.mode",
	"STRIPE_LIVE_SECRET_KEY":      "payments.live_secret_key",
	"STRIPE_TEST_SECRET_KEY":      "payments.test_secret_key",
	"STRIPE_LIVE_WEBHOOK_SECRET":  "payments.live_webhook_secret",
	"STRIPE_TEST_WEBHOOK_SECRET":  "payments.test_webhook_secret",
	"PLAN_INSTALLMENTS":           "payments.plan_installments",
	"AWS_REGION":                  "storage.region",
	"AWS_S3_BUCKET":               "storage.bucket",
	"AWS_ACCESS_KEY_ID":           "storage.access_key_id",
	"AWS_SECRET_ACCESS_KEY":       "storage.secret_access_key",
	"AWS_S3_ENDPOINT":             "storage.endpoint",
	"SIGNED_URL_TTL":              "storage.signed_url_ttl",
	"BREVO_API_KEY":               "notify.brevo_api_key",
	"BREVO_BASE_URL":              "notify.brevo_base_url",
	"NOTIFY_WORKERS":              "notify.workers",
	"NOTIFY_QUEUE_SIZE":           "notify.queue_size",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}

	switch c.Payments.Mode {
	case ModeLive, ModeTest:
	default:
		return fmt.Errorf("STRIPE_MODE must be %q or %q, got %q",
			ModeLive, ModeTest, c.Payments.Mode)
	}

	if c.Payments.SecretKey() == "" {
		return fmt.Errorf("stripe %s secret key is required", c.Payments.Mode)
	}

	if c.Payments.WebhookSecret() == "" {
		return fmt.Errorf("stripe %s webhook secret is required", c.Payments.Mode)
	}

	if c.Payments.PlanInstallments < 1 {
		return fmt.Errorf("payments.plan_installments must be at least 1")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("AWS_S3_BUCKET is required")
	}

	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("storage.signed_url_ttl must be positive")
	}

	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}

	if c.RateLimit.FormRequests < 1 || c.RateLimit.FormBurst < 1 {
		return fmt.Errorf("rate_limit.form_requests and rate_limit.form_burst must be positive")
	}

	if c.Notify.Workers < 1 || c.Notify.QueueSize < 1 {
		return fmt.Errorf("notify.workers and notify.queue_size must be positive")
	}

	if t := c.Progress.VideoCompleteThreshold; t < 1 || t > 100 {
		return fmt.Errorf("progress.video_complete_threshold must be in [1, 100]")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.IsProduction() {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
