package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/services/transform"
)

type fakeFetcher struct {
	src   models.Source
	obs   []models.RawObservation
	err   error
	block bool // wait for cancellation before failing
}

func (f *fakeFetcher) Source() models.Source { return f.src }

func (f *fakeFetcher) Fetch(ctx context.Context) ([]models.RawObservation, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, &drepo.FetchError{Source: f.src, Attempts: 3, Err: f.err}
	}
	return f.obs, nil
}

// memStore is an in-memory CandleStore keyed like the real tables.
type memStore struct {
	mu       sync.Mutex
	rows     map[models.CandleKey]models.StoredCandle
	upserts  int
	failNext error
	history  int // History calls
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[models.CandleKey]models.StoredCandle)}
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Upsert(_ context.Context, candles []models.CanonicalCandle, intervalSec int64, ingestedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return 0, err
	}
	s.upserts++
	for _, c := range candles {
		c.FetchedAt, c.RawKey = time.Time{}, ""
		s.rows[c.Key()] = models.StoredCandle{CanonicalCandle: c, IntervalSec: intervalSec, IngestedAt: ingestedAt}
	}
	return len(candles), nil
}

func (s *memStore) sorted() []models.StoredCandle {
	out := make([]models.StoredCandle, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BucketStart.Equal(out[j].BucketStart) {
			return out[i].BucketStart.Before(out[j].BucketStart)
		}
		return out[i].Source < out[j].Source
	})
	return out
}

func (s *memStore) History(_ context.Context, series models.SeriesKey, before time.Time, n int) ([]models.StoredCandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history++
	var out []models.StoredCandle
	for _, r := range s.sorted() {
		if r.Series() != series || !r.BucketStart.Before(before) {
			continue
		}
		if r.IsAnomaly && r.AnomalyReason != transform.ReasonCloseDeviation {
			continue
		}
		out = append(out, r)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *memStore) Query(_ context.Context, q drepo.CandleQuery) ([]models.StoredCandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StoredCandle
	for _, r := range s.sorted() {
		if r.Symbol != q.Symbol || (q.Source != "" && r.Source != q.Source) {
			continue
		}
		if !q.From.IsZero() && r.BucketStart.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !r.BucketStart.Before(q.To) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func (s *memStore) put(c models.CanonicalCandle) {
	s.rows[c.Key()] = models.StoredCandle{CanonicalCandle: c, IntervalSec: 3600}
}

type fakePublisher struct {
	runID   string
	candles []models.CanonicalCandle
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, runID string, candles []models.CanonicalCandle, _ int64) error {
	if p.err != nil {
		return p.err
	}
	p.runID = runID
	p.candles = append(p.candles, candles...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu         sync.Mutex
	records    map[string]int
	rejections map[string]int
	anomalies  map[models.Source]int
	successes  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{records: map[string]int{}, rejections: map[string]int{}, anomalies: map[models.Source]int{}}
}

func (m *fakeMetrics) RecordRecords(stage string, src models.Source, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[stage+"/"+string(src)] += n
}

func (m *fakeMetrics) RecordRejections(kind string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[kind] += n
}

func (m *fakeMetrics) RecordAnomalies(src models.Source, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies[src] += n
}

func (m *fakeMetrics) RecordStageDuration(string, time.Duration) {}

func (m *fakeMetrics) RecordSuccess(time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

var errUpstream = errors.New("upstream 503")

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func krakenObs(at time.Time, close string) models.RawObservation {
	return models.RawObservation{
		Source:    models.SourceKraken,
		Symbol:    "XXBTZUSD",
		FetchedAt: at.Add(time.Minute),
		Fields: map[string]string{
			"time":   decimal.NewFromInt(at.Unix()).String(),
			"open":   close,
			"high":   close,
			"low":    close,
			"close":  close,
			"volume": "1",
		},
	}
}

func geckoObs(at time.Time, price string) models.RawObservation {
	return models.RawObservation{
		Source:    models.SourceCoinGecko,
		Symbol:    "BTC-USD",
		FetchedAt: at.Add(time.Minute),
		Fields: map[string]string{
			"ts_ms": decimal.NewFromInt(at.UnixMilli()).String(),
			"price": price,
		},
	}
}

func storedCandle(src models.Source, bucket time.Time, close string) models.CanonicalCandle {
	d := dec(close)
	return models.CanonicalCandle{
		Symbol:      "BTC-USD",
		Source:      src,
		BucketStart: bucket,
		ObservedAt:  bucket,
		Open:        d, High: d, Low: d, Close: d,
	}
}

func testPipeline() *transform.Pipeline {
	p, err := transform.NewPipeline(transform.Config{
		Interval: time.Hour,
		Anomaly: transform.AnomalyConfig{
			Threshold:  dec("0.05"),
			Window:     24,
			MinSamples: 1,
			Method:     transform.MethodMedian,
		},
		Sources: transform.DefaultSources(),
	})
	if err != nil {
		panic(err)
	}
	return p
}
