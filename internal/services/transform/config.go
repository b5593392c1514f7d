package transform

import (
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Timestamp encodings understood by the normalizer.
const (
	TimestampUnixSeconds = "unix_s"
	TimestampUnixMillis  = "unix_ms"
	TimestampRFC3339     = "rfc3339"
)

// Baseline methods.
const (
	MethodMedian = "median"
	MethodMean   = "mean"
)

// FieldMap names the provider field that feeds each canonical field.
// Empty optional names (Volume, VWAP, Count) mean the provider never reports it.
type FieldMap struct {
	Timestamp       string
	TimestampFormat string
	Open            string
	High            string
	Low             string
	Close           string
	Volume          string
	VWAP            string
	Count           string
}

// SourceMapping is the per-provider part of the field-mapping table.
type SourceMapping struct {
	Fields        FieldMap
	SymbolAliases map[string]string
}

// AnomalyConfig configures the soft deviation rule.
type AnomalyConfig struct {
	Threshold  decimal.Decimal // relative, 0.05 = 5%
	Window     int
	MinSamples int
	Method     string
}

// Config is the explicit configuration of one transform pipeline.
type Config struct {
	Interval      time.Duration
	Earliest      time.Time     // zero disables the lower bound
	MaxFutureSkew time.Duration // applied to RawBatch.AsOf
	Anomaly       AnomalyConfig
	Sources       map[models.Source]SourceMapping
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %s", c.Interval)
	}
	if c.MaxFutureSkew < 0 {
		return fmt.Errorf("max_future_skew must be >= 0")
	}
	if !c.Anomaly.Threshold.IsPositive() {
		return fmt.Errorf("anomaly.threshold must be > 0")
	}
	if c.Anomaly.Window < 1 {
		return fmt.Errorf("anomaly.window must be >= 1")
	}
	if c.Anomaly.MinSamples < 0 || c.Anomaly.MinSamples > c.Anomaly.Window {
		return fmt.Errorf("anomaly.min_samples must be within [0, window]")
	}
	switch c.Anomaly.Method {
	case MethodMedian, MethodMean:
	default:
		return fmt.Errorf("anomaly.method must be 'median' or 'mean', got '%s'", c.Anomaly.Method)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources cannot be empty")
	}
	for src, m := range c.Sources {
		if err := m.Fields.validate(); err != nil {
			return fmt.Errorf("sources.%s: %w", src, err)
		}
	}
	return nil
}

func (f FieldMap) validate() error {
	required := map[string]string{
		"timestamp": f.Timestamp,
		"open":      f.Open,
		"high":      f.High,
		"low":       f.Low,
		"close":     f.Close,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("field_map.%s is required", name)
		}
	}
	switch f.TimestampFormat {
	case TimestampUnixSeconds, TimestampUnixMillis, TimestampRFC3339:
	default:
		return fmt.Errorf("field_map.timestamp_format '%s' is not supported", f.TimestampFormat)
	}
	return nil
}

// DefaultSources returns the field mapping for the payloads produced by the
// CoinGecko and Kraken fetchers.
func DefaultSources() map[models.Source]SourceMapping {
	return map[models.Source]SourceMapping{
		models.SourceCoinGecko: {
			Fields: FieldMap{
				Timestamp:       "ts_ms",
				TimestampFormat: TimestampUnixMillis,
				Open:            "price",
				High:            "price",
				Low:             "price",
				Close:           "price",
				Volume:          "volume",
			},
		},
		models.SourceKraken: {
			Fields: FieldMap{
				Timestamp:       "time",
				TimestampFormat: TimestampUnixSeconds,
				Open:            "open",
				High:            "high",
				Low:             "low",
				Close:           "close",
				Volume:          "volume",
				VWAP:            "vwap",
				Count:           "count",
			},
			SymbolAliases: map[string]string{
				"XBTUSD":   "BTC-USD",
				"XXBTZUSD": "BTC-USD",
			},
		},
	}
}
