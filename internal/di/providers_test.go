package di

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustBoard/internal/domain/models"
	"TrustBoard/internal/services/transform"
	"TrustBoard/pkg/config"
	applogger "TrustBoard/pkg/logger"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Transform.Interval = time.Hour
	cfg.Transform.MaxFutureSkew = 5 * time.Minute
	cfg.Transform.Anomaly.Threshold = 0.05
	cfg.Transform.Anomaly.Window = 24
	cfg.Transform.Anomaly.MinSamples = 3
	cfg.Transform.Anomaly.Method = "median"
	cfg.Load.Backend = "postgres"
	cfg.Load.SinkStore = "postgres"
	return cfg
}

func TestTransformConfigUsesBuiltInSources(t *testing.T) {
	tc := TransformConfig(baseConfig())

	require.NoError(t, tc.Validate())
	assert.True(t, tc.Anomaly.Threshold.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 24, tc.Anomaly.Window)
	assert.Contains(t, tc.Sources, models.SourceCoinGecko)
	assert.Contains(t, tc.Sources, models.SourceKraken)
}

func TestTransformConfigSourceOverride(t *testing.T) {
	cfg := baseConfig()
	cfg.Transform.Sources = map[string]config.SourceConfig{
		"kraken": {
			FieldMap: config.FieldMapConfig{
				Timestamp: "t", TimestampFormat: transform.TimestampRFC3339,
				Open: "o", High: "h", Low: "l", Close: "c",
			},
			SymbolAliases: map[string]string{"XXBTZUSD": "BTC-USD"},
		},
	}

	tc := TransformConfig(cfg)
	require.NoError(t, tc.Validate())
	kr := tc.Sources[models.SourceKraken]
	assert.Equal(t, "c", kr.Fields.Close)
	assert.Empty(t, kr.Fields.Volume)
	assert.Equal(t, "BTC-USD", kr.SymbolAliases["XXBTZUSD"])
	assert.Equal(t, "price", tc.Sources[models.SourceCoinGecko].Fields.Close)
}

func TestStoreName(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, "postgres", storeName(cfg))

	cfg.Load.Backend = "clickhouse"
	assert.Equal(t, "clickhouse", storeName(cfg))

	cfg.Load.Backend = "kafka"
	cfg.Load.SinkStore = "clickhouse"
	assert.Equal(t, "clickhouse", storeName(cfg))
}

func TestProvideFetchersOnlyEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.Extract.Kraken.Enabled = true

	fs := ProvideFetchers(cfg, ProvideHTTPClient(cfg), ProvideLimiter(), applogger.Nop())
	require.Len(t, fs, 1)
	assert.Equal(t, models.SourceKraken, fs[0].Source())

	cfg.Extract.CoinGecko.Enabled = true
	fs = ProvideFetchers(cfg, ProvideHTTPClient(cfg), ProvideLimiter(), applogger.Nop())
	assert.Len(t, fs, 2)
}

func TestProvideLoader(t *testing.T) {
	cfg := baseConfig()

	ld, err := ProvideLoader(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", ld.Name())

	cfg.Load.Backend = "kafka"
	_, err = ProvideLoader(cfg, nil, nil)
	assert.Error(t, err)
}

func TestKafkaIsOptional(t *testing.T) {
	cfg := baseConfig()

	p, cleanup, err := ProvideKafkaProducer(cfg, applogger.Nop())
	require.NoError(t, err)
	assert.Nil(t, p)
	cleanup()

	c, err := ProvideKafkaConsumer(cfg, applogger.Nop())
	require.NoError(t, err)
	assert.Nil(t, c)
}
