package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Environments recognised by server.environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Rate limiter backends.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// Config represents the runtime configuration for the authgate service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Access      AccessConfig      `mapstructure:"access"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Email       EmailConfig       `mapstructure:"email"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`
	// BaseURL is the public origin used in emailed links and OAuth redirects.
	BaseURL       string     `mapstructure:"base_url"`
	SecureCookies bool       `mapstructure:"secure_cookies"`
	CookieDomain  string     `mapstructure:"cookie_domain"`
	CSRF          CSRFConfig `mapstructure:"csrf"`
}

// CSRFConfig controls CSRF protection middleware.
type CSRFConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver       string       `mapstructure:"driver"`
	Path         string       `mapstructure:"path"`
	DSN          string       `mapstructure:"dsn"`
	MaxOpenConns int          `mapstructure:"max_open_conns"`
	Postgres     DBAuthConfig `mapstructure:"postgres"`
	MySQL        DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	Session           SessionSettings           `mapstructure:"session"`
	Phone             PhoneSettings             `mapstructure:"phone"`
	Google            GoogleSettings            `mapstructure:"google"`
	Trust             TrustSettings             `mapstructure:"trust"`
	EmailVerification EmailVerificationSettings `mapstructure:"email_verification"`
}

// SessionSettings configures the signed session cookie.
type SessionSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// PhoneSettings configures OTP sign-in.
type PhoneSettings struct {
	NumberSecret string        `mapstructure:"number_secret"`
	OTPSecret    string        `mapstructure:"otp_secret"`
	CodeTTL      time.Duration `mapstructure:"code_ttl"`
	RequestLimit int           `mapstructure:"request_limit"`
	VerifyLimit  int           `mapstructure:"verify_limit"`
}

// GoogleSettings configures the Google OAuth client.
type GoogleSettings struct {
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	RedirectURL   string   `mapstructure:"redirect_url"`
	Scopes        []string `mapstructure:"scopes"`
	OfflineAccess bool     `mapstructure:"offline_access"`
	Prompt        string   `mapstructure:"prompt"`
}

// TrustSettings tunes the Google email screening.
type TrustSettings struct {
	BlockLikelyFake        bool     `mapstructure:"block_likely_fake"`
	ExtraDisposableDomains []string `mapstructure:"extra_disposable_domains"`
}

// EmailVerificationSettings configures the verification email workflow.
type EmailVerificationSettings struct {
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	ProductName string        `mapstructure:"product_name"`
}

// AccessConfig mirrors middleware.AccessConfig.
type AccessConfig struct {
	Mode                  string   `mapstructure:"mode"`
	PublicPaths           []string `mapstructure:"public_paths"`
	ProtectedPrefixes     []string `mapstructure:"protected_prefixes"`
	APIPrefixes           []string `mapstructure:"api_prefixes"`
	ContentSecurityPolicy string   `mapstructure:"content_security_policy"`
}

// RateLimitConfig selects the limiter backend and per-route budgets.
type RateLimitConfig struct {
	Backend         string        `mapstructure:"backend"`
	Window          time.Duration `mapstructure:"window"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// RouteLimit caps requests per client IP on the phone endpoints.
	RouteLimit int `mapstructure:"route_limit"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	FromName string        `mapstructure:"from_name"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the background sweepers.
type MaintenanceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	TokenSchedule string `mapstructure:"token_schedule"`
	CacheSchedule string `mapstructure:"cache_schedule"`
}

// envAliases binds the conventional deployment variable names next to the
// AUTHGATE_ prefixed ones. The first name wins when both are set.
var envAliases = map[string][]string{
	"auth.phone.number_secret":  {"AUTHGATE_AUTH_PHONE_NUMBER_SECRET", "PHONE_NUMBER_SECRET"},
	"auth.phone.otp_secret":     {"AUTHGATE_AUTH_PHONE_OTP_SECRET", "OTP_SECRET"},
	"auth.google.client_id":     {"AUTHGATE_AUTH_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID"},
	"auth.google.client_secret": {"AUTHGATE_AUTH_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"},
	"auth.session.secret":       {"AUTHGATE_AUTH_SESSION_SECRET", "SESSION_SECRET", "NEXTAUTH_SECRET"},
	"server.base_url":           {"AUTHGATE_SERVER_BASE_URL", "NEXTAUTH_URL"},
	"email.smtp.username":       {"AUTHGATE_EMAIL_SMTP_USERNAME", "EMAIL_USER"},
	"email.smtp.password":       {"AUTHGATE_EMAIL_SMTP_PASSWORD", "EMAIL_PASS"},
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.csrf.enabled", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/authgate.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.session.issuer", "authgate")
	v.SetDefault("auth.session.ttl", "720h") // 30 days
	v.SetDefault("auth.phone.code_ttl", "5m")
	v.SetDefault("auth.phone.request_limit", 5)
	v.SetDefault("auth.phone.verify_limit", 10)
	v.SetDefault("auth.google.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("auth.google.offline_access", true)
	v.SetDefault("auth.google.prompt", "consent")
	v.SetDefault("auth.trust.block_likely_fake", true)
	v.SetDefault("auth.email_verification.token_ttl", "24h")
	v.SetDefault("auth.email_verification.product_name", "Twenty Five")

	v.SetDefault("access.mode", "all")
	v.SetDefault("access.content_security_policy", "default")

	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.window", "15m")
	v.SetDefault("ratelimit.cleanup_interval", "5m")
	v.SetDefault("ratelimit.route_limit", 30)

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "smtp.gmail.com")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.timeout", "2s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.token_schedule", "@hourly")
	v.SetDefault("maintenance.cache_schedule", "@every 15m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Server.Environment), EnvProduction)
}

// Validate checks cross-field constraints and the secrets that must be present
// before the server starts.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var problems []string
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, key+" must be configured")
		}
	}

	require(c.Auth.Phone.NumberSecret, "auth.phone.number_secret (PHONE_NUMBER_SECRET)")
	require(c.Auth.Phone.OTPSecret, "auth.phone.otp_secret (OTP_SECRET)")
	require(c.Auth.Session.Secret, "auth.session.secret (SESSION_SECRET)")

	switch strings.ToLower(strings.TrimSpace(c.Server.Environment)) {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		problems = append(problems, fmt.Sprintf("server.environment %q is not one of development, production, test", c.Server.Environment))
	}

	if base := strings.TrimSpace(c.Server.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			problems = append(problems, fmt.Sprintf("server.base_url %q must be an absolute URL", base))
		}
	}

	hasID := strings.TrimSpace(c.Auth.Google.ClientID) != ""
	hasSecret := strings.TrimSpace(c.Auth.Google.ClientSecret) != ""
	if hasID != hasSecret {
		problems = append(problems, "auth.google.client_id and auth.google.client_secret must be set together")
	}

	switch strings.ToLower(strings.TrimSpace(c.RateLimit.Backend)) {
	case "", BackendMemory, BackendDatabase:
	case BackendRedis:
		if !c.Cache.Redis.Enabled {
			problems = append(problems, "ratelimit.backend redis requires cache.redis.enabled")
		}
	default:
		problems = append(problems, fmt.Sprintf("ratelimit.backend %q is not one of memory, database, redis", c.RateLimit.Backend))
	}

	switch strings.ToLower(strings.TrimSpace(c.Access.Mode)) {
	case "", "all", "prefixes":
	default:
		problems = append(problems, fmt.Sprintf("access.mode %q is not one of all, prefixes", c.Access.Mode))
	}

	if c.Email.SMTP.Enabled {
		require(c.Email.SMTP.Host, "email.smtp.host")
		require(c.Email.SMTP.Username, "email.smtp.username (EMAIL_USER)")
		require(c.Email.SMTP.Password, "email.smtp.password (EMAIL_PASS)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in credentials are configured.
func (c *Config) GoogleEnabled() bool {
	return strings.TrimSpace(c.Auth.Google.ClientID) != "" && strings.TrimSpace(c.Auth.Google.ClientSecret) != ""
}
