package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeriesKey identifies one price series.
type SeriesKey struct {
	Symbol string
	Source Source
}

func (k SeriesKey) String() string { return k.Symbol + "|" + string(k.Source) }

// CandleKey is the uniqueness key of a load-ready candle.
type CandleKey struct {
	Symbol      string
	Source      Source
	BucketStart time.Time
}

// CanonicalCandle is the provider-independent OHLCV record produced by the
// transform stage and persisted by the load stage.
type CanonicalCandle struct {
	Symbol        string              `json:"symbol"`
	Source        Source              `json:"source"`
	BucketStart   time.Time           `json:"bucket_start"`
	ObservedAt    time.Time           `json:"observed_at"`
	Open          decimal.Decimal     `json:"open"`
	High          decimal.Decimal     `json:"high"`
	Low           decimal.Decimal     `json:"low"`
	Close         decimal.Decimal     `json:"close"`
	Volume        decimal.NullDecimal `json:"volume"`
	VWAP          decimal.NullDecimal `json:"vwap"`
	TradeCount    *int64              `json:"trade_count"`
	IsAnomaly     bool                `json:"is_anomaly"`
	AnomalyReason string              `json:"anomaly_reason,omitempty"`

	// provenance, used by deduplication only
	FetchedAt time.Time `json:"-"`
	RawKey    string    `json:"-"`
}

// Series returns the series the candle belongs to.
func (c CanonicalCandle) Series() SeriesKey {
	return SeriesKey{Symbol: c.Symbol, Source: c.Source}
}

// Key returns the (symbol, source, bucket_start) key.
func (c CanonicalCandle) Key() CandleKey {
	return CandleKey{Symbol: c.Symbol, Source: c.Source, BucketStart: c.BucketStart.UTC()}
}

// AnomalyReasonPtr returns nil when the candle carries no reason, for nullable columns.
func (c CanonicalCandle) AnomalyReasonPtr() *string {
	if c.AnomalyReason == "" {
		return nil
	}
	r := c.AnomalyReason
	return &r
}

// StoredCandle is a candle read back from the persisted table.
type StoredCandle struct {
	CanonicalCandle
	IntervalSec int64     `json:"interval_sec"`
	IngestedAt  time.Time `json:"ingested_at"`
}
