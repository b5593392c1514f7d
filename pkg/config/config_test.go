package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: test
transform:
  anomaly:
    threshold: 0.05
    window: 24
extract:
  kraken:
    enabled: true
postgres:
  url: postgres://trustboard@localhost:5432/trustboard
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, c.Transform.Interval)
	assert.Equal(t, "median", c.Transform.Anomaly.Method)
	assert.Equal(t, 1, c.Transform.Anomaly.MinSamples)
	assert.Equal(t, "postgres", c.Load.Backend)
	assert.Equal(t, "parquet", c.Snapshot.Format)
	assert.Equal(t, "XBTUSD", c.Extract.Kraken.Pair)
	assert.Equal(t, 3, c.Extract.Retry.MaxAttempts)
	assert.Equal(t, "fact_price_candle", c.Postgres.Table)
	assert.Equal(t, 2*time.Hour, c.Quality.StaleAfter)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestLoadRequiresAnomalySettings(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
extract:
  kraken:
    enabled: true
postgres:
  url: postgres://localhost/db
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Threshold")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"min samples above window": `
environment: test
transform:
  anomaly: {threshold: 0.05, window: 5, min_samples: 10}
extract:
  kraken: {enabled: true}
postgres:
  url: postgres://localhost/db
`,
		"unknown backend": minimal + `
load:
  backend: sqlite
`,
		"no sources": `
environment: test
transform:
  anomaly: {threshold: 0.05, window: 24}
postgres:
  url: postgres://localhost/db
`,
		"postgres without url": `
environment: test
transform:
  anomaly: {threshold: 0.05, window: 24}
extract:
  coingecko: {enabled: true}
`,
		"kafka without brokers": minimal + `
load:
  backend: kafka
`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@db:5432/trustboard")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOAD_BACKEND", "kafka")
	t.Setenv("REDIS_ADDR", "cache:6379")

	c, err := LoadWithEnv(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db:5432/trustboard", c.Postgres.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "kafka", c.Load.Backend)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache:6379", c.Redis.Addr)
}

func TestLoadEnvSatisfiesRequiredURL(t *testing.T) {
	body := `
environment: test
transform:
  anomaly: {threshold: 0.05, window: 24}
extract:
  coingecko: {enabled: true}
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://env@db/trustboard")
	_, err = LoadWithEnv(writeConfig(t, body))
	assert.NoError(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env@db/trustboard")
	c, err := LoadWithEnv(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 24, c.Transform.Anomaly.Window)
	assert.Equal(t, 48*time.Hour, c.Extract.Kraken.Lookback)
	assert.False(t, c.Transform.Earliest.IsZero())
}
