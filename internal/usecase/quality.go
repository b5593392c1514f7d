package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/pkg/util"
)

// QualityUseCase derives trust signals from stored candles: coverage gaps,
// anomaly rate, freshness and cross-source divergence. Gap detection lives
// here, downstream of the transform, which never fills or reports gaps.
type QualityUseCase struct {
	store      drepo.CandleStore
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewQualityUseCase(store drepo.CandleStore, interval, staleAfter time.Duration) *QualityUseCase {
	return &QualityUseCase{store: store, interval: interval, staleAfter: staleAfter, now: time.Now}
}

// Quality reports on the last `days` days of completed buckets for symbol.
func (uc *QualityUseCase) Quality(ctx context.Context, symbol string, days int) (*models.QualityReport, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidQuery)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", ErrInvalidQuery)
	}

	now := uc.now().UTC()
	last := util.FloorTime(now, uc.interval).Add(-uc.interval)
	first := util.FloorTime(last.Add(-time.Duration(days)*24*time.Hour+uc.interval), uc.interval)
	expected := util.BucketCount(first, last, uc.interval)

	rows, err := uc.store.Query(ctx, drepo.CandleQuery{Symbol: symbol, From: first, To: last.Add(uc.interval)})
	if err != nil {
		return nil, fmt.Errorf("quality %s: %w", symbol, err)
	}

	bySource := make(map[models.Source][]models.StoredCandle)
	for _, c := range rows {
		bySource[c.Source] = append(bySource[c.Source], c)
	}

	rep := &models.QualityReport{
		Symbol:      symbol,
		From:        first,
		To:          last,
		IntervalSec: int64(uc.interval.Seconds()),
	}
	for _, src := range models.Sources() {
		sq := sourceQuality(src, bySource[src], expected, now)
		if sq.Rows == 0 || sq.Freshness > uc.staleAfter {
			rep.Stale = true
		}
		rep.Sources = append(rep.Sources, sq)
	}
	rep.MaxDivergence = maxDivergence(bySource)
	return rep, nil
}

func sourceQuality(src models.Source, rows []models.StoredCandle, expected int, now time.Time) models.SourceQuality {
	sq := models.SourceQuality{Source: src, Expected: expected, MissingRate: 1}
	if len(rows) == 0 {
		return sq
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BucketStart.Before(rows[j].BucketStart) })

	buckets := make(map[time.Time]struct{}, len(rows))
	anomalies := 0
	for _, c := range rows {
		buckets[c.BucketStart] = struct{}{}
		if c.IsAnomaly {
			anomalies++
		}
	}
	sq.Rows = len(buckets)
	if expected > 0 {
		missing := expected - sq.Rows
		if missing < 0 {
			missing = 0
		}
		sq.MissingRate = float64(missing) / float64(expected)
	}
	sq.AnomalyRate = float64(anomalies) / float64(len(rows))

	first, last := rows[0], rows[len(rows)-1]
	sq.LastBucket = last.BucketStart
	sq.Freshness = now.Sub(last.BucketStart)
	closeCopy := last.Close
	sq.LatestClose = &closeCopy
	if !first.Close.IsZero() {
		change, _ := last.Close.Sub(first.Close).Div(first.Close).Float64()
		sq.PriceChange = &change
	}
	return sq
}

// maxDivergence is the largest (max-min)/min spread of closes across sources
// in any bucket reported by at least two of them.
func maxDivergence(bySource map[models.Source][]models.StoredCandle) *float64 {
	closes := make(map[time.Time][]decimal.Decimal)
	for _, rows := range bySource {
		for _, c := range rows {
			closes[c.BucketStart] = append(closes[c.BucketStart], c.Close)
		}
	}

	var best *decimal.Decimal
	for _, cs := range closes {
		if len(cs) < 2 {
			continue
		}
		lo, hi := decimal.Min(cs[0], cs[1:]...), decimal.Max(cs[0], cs[1:]...)
		if !lo.IsPositive() {
			continue
		}
		d := hi.Sub(lo).Div(lo)
		if best == nil || d.GreaterThan(*best) {
			best = &d
		}
	}
	if best == nil {
		return nil
	}
	f, _ := best.Float64()
	return &f
}
