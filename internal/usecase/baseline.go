package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/pkg/cache"
	applogger "TrustBoard/pkg/logger"
)

const baselineKeyPrefix = "baseline"

// BaselineProvider assembles the per-series close history the anomaly rule
// scores against. Lookups go through the cache; a cache outage only costs a
// store round trip.
type BaselineProvider struct {
	store  drepo.CandleStore
	cache  cache.Service
	ttl    time.Duration
	window int
	l      *applogger.Logger
}

func NewBaselineProvider(store drepo.CandleStore, c cache.Service, ttl time.Duration, window int) *BaselineProvider {
	return &BaselineProvider{store: store, cache: c, ttl: ttl, window: window, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (b *BaselineProvider) SetLogger(l *applogger.Logger) {
	if l != nil {
		b.l = l
	}
}

// Baseline loads, for each planned series, up to window closes strictly
// before the series' first bucket in the batch, oldest first.
func (b *BaselineProvider) Baseline(ctx context.Context, plan map[models.SeriesKey]time.Time) (models.Baseline, error) {
	keys := make([]models.SeriesKey, 0, len(plan))
	for k := range plan {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	out := make(models.Baseline, len(keys))
	for _, k := range keys {
		closes, err := b.closes(ctx, k, plan[k])
		if err != nil {
			return nil, err
		}
		if len(closes) > 0 {
			out[k] = closes
		}
	}
	return out, nil
}

func (b *BaselineProvider) closes(ctx context.Context, series models.SeriesKey, before time.Time) ([]decimal.Decimal, error) {
	key := cache.GenerateKey(baselineKeyPrefix, series.Symbol, series.Source, before.Unix(), b.window)
	if b.cache != nil {
		var cached []decimal.Decimal
		if err := b.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	hist, err := b.store.History(ctx, series, before, b.window)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", series, err)
	}
	closes := make([]decimal.Decimal, len(hist))
	for i, c := range hist {
		closes[i] = c.Close
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, closes, b.ttl); err != nil {
			b.l.Warn("baseline cache set", applogger.String("series", series.String()), applogger.Error(err))
		}
	}
	return closes, nil
}

// Invalidate drops cached history after new rows were loaded.
func (b *BaselineProvider) Invalidate(ctx context.Context) {
	if b.cache == nil {
		return
	}
	if err := b.cache.DeleteByPrefix(ctx, baselineKeyPrefix+":"); err != nil {
		b.l.Warn("baseline cache invalidate", applogger.Error(err))
	}
}
