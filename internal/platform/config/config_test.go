package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var digestHex = "0xab" + strings.Repeat("00", 30) + "cd"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PARAMS_PATH", "/var/lib/agegate/params.bin")
	t.Setenv("PARAMS_DIGEST", digestHex)
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, uint64(1), cfg.Ledger.FreshnessToleranceDays)
	assert.Equal(t, 72*time.Hour, cfg.Ledger.GracePeriod)
	assert.True(t, cfg.Ledger.Owner.IsZero())
	assert.Equal(t, uint64(500_000), cfg.Proof.GasBudget)
	assert.True(t, cfg.Proof.VKDigest.IsZero())
	assert.Equal(t, digestHex[2:], cfg.Proof.ParamsDigest.String())
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Keeper.Enabled)
	assert.Equal(t, 10, cfg.RateLimit.RegisterLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.RegisterWindow)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.True(t, cfg.UsingDevSigningKey())
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("FRESHNESS_TOLERANCE_DAYS", "0")
	t.Setenv("GRACE_PERIOD", "24h")
	t.Setenv("OWNER_ACCOUNT", "0x"+strings.Repeat("11", 32))
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("JWT_SIGNING_KEY", "prod-key")
	t.Setenv("RATELIMIT_REGISTER_LIMIT", "3")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Zero(t, cfg.Ledger.FreshnessToleranceDays)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.GracePeriod)
	assert.False(t, cfg.Ledger.Owner.IsZero())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.False(t, cfg.UsingDevSigningKey())
	assert.Equal(t, 3, cfg.RateLimit.RegisterLimit)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"missing params path", "PARAMS_PATH", ""},
		{"bad digest", "PARAMS_DIGEST", "0x1234"},
		{"bad tolerance", "FRESHNESS_TOLERANCE_DAYS", "-1"},
		{"bad grace", "GRACE_PERIOD", "soon"},
		{"zero owner", "OWNER_ACCOUNT", "0x" + strings.Repeat("00", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			_, err := FromEnv()
			require.Error(t, err)
			if tt.val != "" {
				assert.Contains(t, err.Error(), tt.key)
			}
		})
	}
}
