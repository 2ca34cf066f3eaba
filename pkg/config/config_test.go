package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  finnhub:
    api_key: k
  yahoo:
    enabled: false
cache:
  ttl:
    regular: { hard: 2s, stale: 4s }
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.False(t, c.Providers.Yahoo.Enabled, "explicit false survives defaults")
	assert.True(t, c.Providers.Finnhub.Enabled)
	assert.Equal(t, 3*time.Second, c.Pipeline.StageTimeout)
	assert.Equal(t, 0.5, c.Breaker.RateLimitWeight)
	assert.Equal(t, TTL{Hard: 2 * time.Second, Stale: 4 * time.Second}, c.Cache.TTL.Regular)
	assert.Equal(t, TTL{Hard: 15 * time.Minute, Stale: time.Hour}, c.Cache.TTL.Closed)
	assert.Equal(t, "America/New_York", c.Calendar.Timezone)
	assert.False(t, c.Tracing.Enabled)
	assert.Equal(t, "quotehub", c.Tracing.ServiceName)
	assert.Equal(t, "stdout", c.Tracing.Exporter)
	assert.Equal(t, 1.0, c.Tracing.SampleRatio)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing api key": `
providers:
  finnhub:
    enabled: true
`,
		"no providers": `
providers:
  finnhub: { enabled: false }
  yahoo: { enabled: false }
`,
		"stale before hard": `
providers:
  finnhub: { enabled: false }
cache:
  ttl:
    regular: { hard: 10s, stale: 5s }
`,
		"session ttl too long": `
providers:
  finnhub: { enabled: false }
calendar:
  session_ttl: 2m
`,
		"kafka without brokers": `
providers:
  finnhub: { enabled: false }
kafka:
  enabled: true
`,
		"bad timezone": `
providers:
  finnhub: { enabled: false }
calendar:
  timezone: Mars/Olympus
`,
		"unknown trace exporter": `
providers:
  finnhub: { enabled: false }
tracing:
  enabled: true
  exporter: jaeger
`,
		"sample ratio above one": `
providers:
  finnhub: { enabled: false }
tracing:
  sample_ratio: 1.5
`,
		"warmup queue without redis": `
providers:
  finnhub: { enabled: false }
warmup:
  queue: { enabled: true }
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
providers:
  finnhub:
    enabled: true
`)
	t.Setenv("FINNHUB_API_KEY", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SYMBOLS", "AAPL,MSFT")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Providers.Finnhub.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Warmup.Symbols)
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "k")
	c, err := LoadWithEnv(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, c.Cache.TTL.Metadata.Stale)
}
