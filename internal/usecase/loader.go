package usecase

import (
	"context"
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
)

// Loader hands a transformed batch to its destination.
type Loader interface {
	Name() string
	Load(ctx context.Context, runID string, candles []models.CanonicalCandle, intervalSec int64) (int, error)
}

// StoreLoader upserts directly into a candle store.
type StoreLoader struct {
	name  string
	store drepo.CandleStore
	now   func() time.Time
}

func NewStoreLoader(name string, store drepo.CandleStore) *StoreLoader {
	return &StoreLoader{name: name, store: store, now: time.Now}
}

func (s *StoreLoader) Name() string { return s.name }

func (s *StoreLoader) Load(ctx context.Context, _ string, candles []models.CanonicalCandle, intervalSec int64) (int, error) {
	n, err := s.store.Upsert(ctx, candles, intervalSec, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", s.name, err)
	}
	return n, nil
}

// PublishLoader emits the batch as candle events; a sink process upserts them.
type PublishLoader struct {
	pub drepo.BatchPublisher
}

func NewPublishLoader(pub drepo.BatchPublisher) *PublishLoader {
	return &PublishLoader{pub: pub}
}

func (p *PublishLoader) Name() string { return "kafka" }

func (p *PublishLoader) Load(ctx context.Context, runID string, candles []models.CanonicalCandle, intervalSec int64) (int, error) {
	if err := p.pub.PublishBatch(ctx, runID, candles, intervalSec); err != nil {
		return 0, fmt.Errorf("publish batch: %w", err)
	}
	return len(candles), nil
}
