package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/bounty")
	t.Setenv("SERVICE_TOKEN", "gateway-token")
	t.Setenv("ADMIN_WALLET", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	t.Setenv("ANALYTICS_URL", "https://analytics.example.com")
	t.Setenv("ANALYTICS_API_KEY", "key")
	t.Setenv("SETTLEMENT_URL", "https://relayer.example.com")
	t.Setenv("SETTLEMENT_TOKEN", "relayer-token")
}

func validConfig() *Config {
	return &Config{
		Port:                    "5200",
		DatabaseURL:             "postgres://localhost/bounty",
		ServiceToken:            "gateway-token",
		AllowedOrigins:          "http://localhost:3000",
		Environment:             "development",
		AdminWallet:             "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		TokenDecimals:           18,
		DistributionConcurrency: 8,
		AnalyticsURL:            "https://analytics.example.com",
		AnalyticsAPIKey:         "key",
		AnalyticsRPS:            5,
		SettlementURL:           "https://relayer.example.com",
		SettlementToken:         "relayer-token",
		SettlementTimeout:       time.Minute,
		SettlementMaxAttempts:   5,
		JobStatusInterval:       time.Minute,
		JobMetricsInterval:      15 * time.Minute,
		JobSettlementInterval:   5 * time.Minute,
	}
}

func TestFromViper_Defaults(t *testing.T) {
	setRequiredEnv(t)

	conf, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "5200", conf.Port)
	assert.Equal(t, 18, conf.TokenDecimals)
	assert.Equal(t, 8, conf.DistributionConcurrency)
	assert.Equal(t, 5, conf.SettlementMaxAttempts)
	assert.Equal(t, 60*time.Second, conf.SettlementTimeout)
	assert.Equal(t, 15*time.Minute, conf.JobMetricsInterval)
	assert.InDelta(t, 5.0, conf.AnalyticsRPS, 0.0001)
	assert.True(t, conf.MetricsEnabled)
	assert.False(t, conf.ArchiveEnabled)
}

func TestFromViper_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_DECIMALS", "6")
	t.Setenv("JOB_SETTLEMENT_INTERVAL", "30s")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	t.Setenv("LOG_VERBOSE", "true")

	conf, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 6, conf.TokenDecimals)
	assert.Equal(t, 30*time.Second, conf.JobSettlementInterval)
	assert.Equal(t, "https://a.example.com,https://b.example.com", conf.AllowedOrigins)
	assert.True(t, conf.LogVerbose)
}

func TestFromViper_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := FromViper(viper.New())
	assert.Error(t, err)
}

func TestValidator_ValidConfig(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).Validate())
}

func TestValidator_BadWallet(t *testing.T) {
	c := validConfig()
	c.AdminWallet = "0x1234"
	assert.Error(t, NewValidator(c).Validate())
}

func TestValidator_TokenDecimalsBelowCents(t *testing.T) {
	for _, decimals := range []int{0, 1} {
		c := validConfig()
		c.TokenDecimals = decimals
		assert.Error(t, NewValidator(c).Validate(), "decimals=%d", decimals)
	}

	c := validConfig()
	c.TokenDecimals = 2
	assert.NoError(t, NewValidator(c).Validate())
}

func TestFromViper_ZeroTokenDecimals(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_DECIMALS", "0")

	_, err := FromViper(viper.New())
	assert.Error(t, err)
}

func TestValidator_BadEnvironment(t *testing.T) {
	c := validConfig()
	c.Environment = "qa"
	assert.Error(t, NewValidator(c).Validate())
}

func TestValidator_ArchiveNeedsBucket(t *testing.T) {
	c := validConfig()
	c.ArchiveEnabled = true
	c.R2AccountID = "acc"
	c.R2AccessKeyID = "id"
	c.R2AccessKeySecret = "secret"
	assert.Error(t, NewValidator(c).Validate())

	c.R2BucketName = "manifests"
	assert.NoError(t, NewValidator(c).Validate())
	assert.Equal(t, "https://acc.r2.cloudflarestorage.com", c.R2Endpoint())
}
