package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rejection kinds reported in run statistics.
const (
	RejectNormalization = "normalization"
	RejectAlignment     = "alignment"
)

// Rejection describes one raw record dropped by the transform stage.
type Rejection struct {
	Kind   string `json:"kind"`
	Source Source `json:"source"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunStats holds the per-run counters surfaced to operators.
type RunStats struct {
	Input          int            `json:"input"`
	Normalized     int            `json:"normalized"`
	Rejected       int            `json:"rejected"`
	RejectedByKind map[string]int `json:"rejected_by_kind"`
	Deduped        int            `json:"deduped"`
	Flagged        int            `json:"flagged"`
	Output         int            `json:"output"`
}

// TransformBatch is the load-ready output of one transform run, ordered by
// (bucket_start, symbol, source).
type TransformBatch struct {
	Candles    []CanonicalCandle `json:"candles"`
	Stats      RunStats          `json:"stats"`
	Rejections []Rejection       `json:"rejections,omitempty"`
}

// Baseline maps each series to its previously loaded closes, oldest first.
type Baseline map[SeriesKey][]decimal.Decimal

// RunReport summarizes one ETL invocation.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Mode       string            `json:"mode"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Fetched    map[Source]int    `json:"fetched"`
	Failed     map[Source]string `json:"failed,omitempty"`
	Stats      RunStats          `json:"stats"`
	Loaded     int               `json:"loaded"`
	Backend    string            `json:"backend"`
	Error      string            `json:"error,omitempty"`
}
