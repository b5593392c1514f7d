package models

// CandleEvent is the wire form of one load-ready candle on the candles topic.
// Keys are "symbol|source" so a series stays on one partition.
type CandleEvent struct {
	RunID       string          `json:"run_id"`
	IntervalSec int64           `json:"interval_sec"`
	Candle      CanonicalCandle `json:"candle"`
}
