package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceQuality summarizes trust signals of one series over a window.
type SourceQuality struct {
	Source      Source           `json:"source"`
	Rows        int              `json:"rows"`
	Expected    int              `json:"expected"`
	MissingRate float64          `json:"missing_rate"`
	AnomalyRate float64          `json:"anomaly_rate"`
	LastBucket  time.Time        `json:"last_bucket"`
	Freshness   time.Duration    `json:"freshness_ns"`
	PriceChange *float64         `json:"price_change,omitempty"`
	LatestClose *decimal.Decimal `json:"latest_close,omitempty"`
}

// QualityReport is the dashboard-facing view of data health for a symbol.
type QualityReport struct {
	Symbol      string          `json:"symbol"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	IntervalSec int64           `json:"interval_sec"`
	Sources     []SourceQuality `json:"sources"`
	// MaxDivergence is the largest relative close difference between sources
	// over buckets both reported.
	MaxDivergence *float64 `json:"max_divergence,omitempty"`
	Stale         bool     `json:"stale"`
}
