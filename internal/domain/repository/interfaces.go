package repository

import (
	"context"
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
)

// Fetcher pulls raw observations from one price provider.
type Fetcher interface {
	Source() models.Source
	Fetch(ctx context.Context) ([]models.RawObservation, error)
}

// FetchError reports a provider call that failed after all retries.
type FetchError struct {
	Source   models.Source
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CandleQuery selects stored candles for the read API.
type CandleQuery struct {
	Symbol string
	Source models.Source // empty = all sources
	From   time.Time
	To     time.Time
	Limit  int
}

// CandleStore persists canonical candles idempotently by (symbol, source, bucket_start).
type CandleStore interface {
	Init(ctx context.Context) error // ensure tables
	// Upsert writes the whole batch or nothing.
	Upsert(ctx context.Context, candles []models.CanonicalCandle, intervalSec int64, ingestedAt time.Time) (int, error)
	// History returns up to n closes of a series strictly before the given instant, oldest first.
	History(ctx context.Context, series models.SeriesKey, before time.Time, n int) ([]models.StoredCandle, error)
	Query(ctx context.Context, q CandleQuery) ([]models.StoredCandle, error)
	Health(ctx context.Context) error
	Close() error
}

// BatchPublisher hands a transformed batch to a downstream consumer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, runID string, candles []models.CanonicalCandle, intervalSec int64) error
	Close() error
}

// SnapshotStore materializes raw extract output per run and source.
type SnapshotStore interface {
	Write(ctx context.Context, runID string, src models.Source, obs []models.RawObservation) (string, error)
	Read(ctx context.Context, runID string) ([]models.RawObservation, error)
}

// RunReportStore keeps the most recent run reports.
type RunReportStore interface {
	SaveReport(ctx context.Context, r *models.RunReport) error
	LatestReport(ctx context.Context) (*models.RunReport, error)
}

type Metrics interface {
	RecordRecords(stage string, src models.Source, n int)
	RecordRejections(kind string, n int)
	RecordAnomalies(src models.Source, n int)
	RecordStageDuration(stage string, d time.Duration)
	RecordSuccess(at time.Time)
}
