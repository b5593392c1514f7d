package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
	"TrustBoard/pkg/cache"
)

// ErrNoReport is returned when no run has been recorded yet.
var ErrNoReport = errors.New("no run report")

const latestReportKey = "run:latest"

// CacheRunReportStore keeps run reports in the shared cache: one key per run
// plus a pointer to the latest.
type CacheRunReportStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheRunReportStore(c cache.Service, ttl time.Duration) *CacheRunReportStore {
	return &CacheRunReportStore{c: c, ttl: ttl}
}

func (s *CacheRunReportStore) SaveReport(ctx context.Context, r *models.RunReport) error {
	if r == nil || r.RunID == "" {
		return fmt.Errorf("run report without run id")
	}
	if err := s.c.Set(ctx, cache.GenerateKey("run", r.RunID), r, s.ttl); err != nil {
		return fmt.Errorf("save report %s: %w", r.RunID, err)
	}
	if err := s.c.Set(ctx, latestReportKey, r, s.ttl); err != nil {
		return fmt.Errorf("save latest report: %w", err)
	}
	return nil
}

func (s *CacheRunReportStore) LatestReport(ctx context.Context) (*models.RunReport, error) {
	return s.get(ctx, latestReportKey)
}

// Report returns the report of one run.
func (s *CacheRunReportStore) Report(ctx context.Context, runID string) (*models.RunReport, error) {
	return s.get(ctx, cache.GenerateKey("run", runID))
}

func (s *CacheRunReportStore) get(ctx context.Context, key string) (*models.RunReport, error) {
	var r models.RunReport
	if err := s.c.Get(ctx, key, &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("load report: %w", err)
	}
	return &r, nil
}
