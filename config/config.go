package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string `mapstructure:"PORT" validate:"required|isInt"`
	DatabaseURL    string `mapstructure:"DATABASE_URL" validate:"required"`
	ServiceToken   string `mapstructure:"SERVICE_TOKEN" validate:"required"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS" validate:"required"`
	LogVerbose     bool   `mapstructure:"LOG_VERBOSE"`
	Environment    string `mapstructure:"ENVIRONMENT" validate:"required|in:development,staging,production"`

	AdminWallet             string `mapstructure:"ADMIN_WALLET" validate:"required|regex:^0x[0-9a-fA-F]{40}$"`
	TokenDecimals           int    `mapstructure:"TOKEN_DECIMALS" validate:"required|min:2|max:36"`
	DistributionConcurrency int    `mapstructure:"DISTRIBUTION_CONCURRENCY" validate:"min:1|max:256"`

	AnalyticsURL    string  `mapstructure:"ANALYTICS_URL" validate:"required|fullUrl"`
	AnalyticsAPIKey string  `mapstructure:"ANALYTICS_API_KEY" validate:"required"`
	AnalyticsRPS    float64 `mapstructure:"ANALYTICS_RPS" validate:"gt:0"`

	SettlementURL         string        `mapstructure:"SETTLEMENT_URL" validate:"required|fullUrl"`
	SettlementToken       string        `mapstructure:"SETTLEMENT_TOKEN" validate:"required"`
	SettlementTimeout     time.Duration `mapstructure:"SETTLEMENT_TIMEOUT" validate:"required"`
	SettlementMaxAttempts int           `mapstructure:"SETTLEMENT_MAX_ATTEMPTS" validate:"min:1"`

	SyncServiceURL string `mapstructure:"SYNC_SERVICE_URL"`

	JobStatusInterval     time.Duration `mapstructure:"JOB_STATUS_INTERVAL" validate:"required"`
	JobMetricsInterval    time.Duration `mapstructure:"JOB_METRICS_INTERVAL" validate:"required"`
	JobSettlementInterval time.Duration `mapstructure:"JOB_SETTLEMENT_INTERVAL" validate:"required"`

	ArchiveEnabled    bool   `mapstructure:"ARCHIVE_ENABLED"`
	R2AccountID       string `mapstructure:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `mapstructure:"R2_ACCESS_KEY_SECRET"`
	R2BucketName      string `mapstructure:"R2_BUCKET_NAME"`

	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
	SentryDSN      string `mapstructure:"SENTRY_DSN"`
}

var defaults = map[string]any{
	"PORT":                     "5200",
	"DATABASE_URL":             "",
	"SERVICE_TOKEN":            "",
	"ALLOWED_ORIGINS":          "http://localhost:3000",
	"LOG_VERBOSE":              false,
	"ENVIRONMENT":              "development",
	"ADMIN_WALLET":             "",
	"TOKEN_DECIMALS":           18,
	"DISTRIBUTION_CONCURRENCY": 8,
	"ANALYTICS_URL":            "",
	"ANALYTICS_API_KEY":        "",
	"ANALYTICS_RPS":            5.0,
	"SETTLEMENT_URL":           "",
	"SETTLEMENT_TOKEN":         "",
	"SETTLEMENT_TIMEOUT":       "60s",
	"SETTLEMENT_MAX_ATTEMPTS":  5,
	"SYNC_SERVICE_URL":         "",
	"JOB_STATUS_INTERVAL":      "1m",
	"JOB_METRICS_INTERVAL":     "15m",
	"JOB_SETTLEMENT_INTERVAL":  "5m",
	"ARCHIVE_ENABLED":          false,
	"R2_ACCOUNT_ID":            "",
	"R2_ACCESS_KEY_ID":         "",
	"R2_ACCESS_KEY_SECRET":     "",
	"R2_BUCKET_NAME":           "",
	"METRICS_ENABLED":          true,
	"SENTRY_DSN":               "",
}

// Load reads .env (when present) and the process environment into a validated Config.
func Load(log *slog.Logger, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Warn("config: no .env file found, reading environment variables directly")
	}
	return FromViper(viper.New())
}

// FromViper binds every known key to its environment variable and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.AllowedOrigins = normalizeOrigins(conf.AllowedOrigins)

	if err := NewValidator(&conf).Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func normalizeOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

type Validator struct {
	conf *Config
}

func NewValidator(conf *Config) *Validator {
	return &Validator{conf: conf}
}

func (cv *Validator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %s", v.Errors.One())
	}
	if cv.conf.ArchiveEnabled {
		for name, value := range map[string]string{
			"R2_ACCOUNT_ID":        cv.conf.R2AccountID,
			"R2_ACCESS_KEY_ID":     cv.conf.R2AccessKeyID,
			"R2_ACCESS_KEY_SECRET": cv.conf.R2AccessKeySecret,
			"R2_BUCKET_NAME":       cv.conf.R2BucketName,
		} {
			if value == "" {
				return fmt.Errorf("invalid config: %s is required when ARCHIVE_ENABLED is set", name)
			}
		}
	}
	return nil
}

func (c *Config) R2Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
}
