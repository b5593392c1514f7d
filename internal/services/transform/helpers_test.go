package transform

import (
	"strconv"
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/shopspring/decimal"
)

func krakenRaw(ts time.Time, open, high, low, close, volume string) models.RawObservation {
	return models.RawObservation{
		Source: models.SourceKraken,
		Symbol: "XXBTZUSD",
		Fields: map[string]string{
			"time":   strconv.FormatInt(ts.Unix(), 10),
			"open":   open,
			"high":   high,
			"low":    low,
			"close":  close,
			"vwap":   close,
			"volume": volume,
			"count":  "10",
		},
	}
}

func geckoRaw(ts time.Time, price, volume string) models.RawObservation {
	f := map[string]string{
		"ts_ms": strconv.FormatInt(ts.UnixMilli(), 10),
		"price": price,
	}
	if volume != "" {
		f["volume"] = volume
	}
	return models.RawObservation{Source: models.SourceCoinGecko, Symbol: "btc-usd", Fields: f}
}

func testConfig() Config {
	return Config{
		Interval: time.Hour,
		Anomaly: AnomalyConfig{
			Threshold:  decimal.RequireFromString("0.05"),
			Window:     24,
			MinSamples: 1,
			Method:     MethodMedian,
		},
		Sources: DefaultSources(),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func candle(symbol string, src models.Source, bucket time.Time, o, h, l, c string) models.CanonicalCandle {
	return models.CanonicalCandle{
		Symbol:      symbol,
		Source:      src,
		BucketStart: bucket,
		ObservedAt:  bucket,
		Open:        dec(o),
		High:        dec(h),
		Low:         dec(l),
		Close:       dec(c),
	}
}

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
