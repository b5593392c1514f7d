package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"TrustBoard/internal/domain/models"
)

// candleText is a candle row with numerics in their exact textual form, as
// read from a numeric column cast to text.
type candleText struct {
	Symbol        string
	Source        string
	BucketStart   time.Time
	IntervalSec   int64
	ObservedAt    time.Time
	Open          string
	High          string
	Low           string
	Close         string
	Volume        *string
	VWAP          *string
	TradeCount    *int64
	IsAnomaly     bool
	AnomalyReason *string
	IngestedAt    time.Time
}

func (r candleText) toStored() (models.StoredCandle, error) {
	var out models.StoredCandle
	prices := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", r.Open, &out.Open},
		{"high", r.High, &out.High},
		{"low", r.Low, &out.Low},
		{"close", r.Close, &out.Close},
	}
	for _, p := range prices {
		d, err := decimal.NewFromString(p.raw)
		if err != nil {
			return out, fmt.Errorf("decode %s %q: %w", p.name, p.raw, err)
		}
		*p.dst = d
	}
	var err error
	if out.Volume, err = nullDecimal(r.Volume); err != nil {
		return out, fmt.Errorf("decode volume: %w", err)
	}
	if out.VWAP, err = nullDecimal(r.VWAP); err != nil {
		return out, fmt.Errorf("decode vwap: %w", err)
	}

	out.Symbol = r.Symbol
	out.Source = models.Source(r.Source)
	out.BucketStart = r.BucketStart.UTC()
	out.ObservedAt = r.ObservedAt.UTC()
	out.TradeCount = r.TradeCount
	out.IsAnomaly = r.IsAnomaly
	if r.AnomalyReason != nil {
		out.AnomalyReason = *r.AnomalyReason
	}
	out.IntervalSec = r.IntervalSec
	out.IngestedAt = r.IngestedAt.UTC()
	return out, nil
}

func nullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimalText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

// upsertArgs lays out one candle in column order of candleColumns.
func upsertArgs(c models.CanonicalCandle, intervalSec int64, ingestedAt time.Time) []any {
	return []any{
		c.Symbol,
		string(c.Source),
		c.BucketStart.UTC(),
		intervalSec,
		c.ObservedAt.UTC(),
		c.Open.String(),
		c.High.String(),
		c.Low.String(),
		c.Close.String(),
		nullDecimalText(c.Volume),
		nullDecimalText(c.VWAP),
		c.TradeCount,
		c.IsAnomaly,
		c.AnomalyReasonPtr(),
		ingestedAt.UTC(),
	}
}

const candleColumns = "symbol, source, bucket_start, interval_sec, observed_at, open, high, low, close, volume, vwap, trade_count, is_anomaly, anomaly_reason, ingested_at"

// reverse flips a newest-first slice in place.
func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
