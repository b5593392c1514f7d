package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	applogger "TrustBoard/pkg/logger"
)

// ErrAllSourcesFailed is returned when not a single provider delivered data.
var ErrAllSourcesFailed = errors.New("all sources failed")

// ExtractResult is the materialized raw input of a run.
type ExtractResult struct {
	Batch     models.RawBatch
	Fetched   map[models.Source]int
	Failed    map[models.Source]string
	Snapshots map[models.Source]string
}

// Extractor fetches every provider concurrently and snapshots each output
// before handing it on. The batch it returns is read back from the
// snapshots, so a replay sees exactly what the original run saw.
type Extractor struct {
	fetchers     []drepo.Fetcher
	snapshots    drepo.SnapshotStore
	allowPartial bool
	timeout      time.Duration
	metrics      drepo.Metrics
	l            *applogger.Logger
	now          func() time.Time
}

func NewExtractor(fetchers []drepo.Fetcher, snapshots drepo.SnapshotStore, allowPartial bool, timeout time.Duration, metrics drepo.Metrics) *Extractor {
	return &Extractor{
		fetchers:     fetchers,
		snapshots:    snapshots,
		allowPartial: allowPartial,
		timeout:      timeout,
		metrics:      metrics,
		l:            applogger.Nop(),
		now:          time.Now,
	}
}

// SetLogger injects a structured logger.
func (e *Extractor) SetLogger(l *applogger.Logger) {
	if l != nil {
		e.l = l
	}
}

type fetchOutcome struct {
	src  models.Source
	n    int
	path string
	err  error
}

// Extract runs all fetchers. Without allow_partial the first failure cancels
// the others and aborts the run.
func (e *Extractor) Extract(ctx context.Context, runID string) (*ExtractResult, error) {
	if len(e.fetchers) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	start := e.now()
	asOf := start.UTC()

	var (
		mu       sync.Mutex
		outcomes []fetchOutcome
	)
	record := func(o fetchOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range e.fetchers {
		f := f
		g.Go(func() error {
			o := e.fetchOne(gctx, runID, f)
			record(o)
			if o.err != nil && !e.allowPartial {
				return o.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].src < outcomes[j].src })
	res := &ExtractResult{
		Fetched:   make(map[models.Source]int),
		Failed:    make(map[models.Source]string),
		Snapshots: make(map[models.Source]string),
	}
	for _, o := range outcomes {
		if o.err != nil {
			res.Failed[o.src] = o.err.Error()
			e.l.Warn("source skipped", applogger.String("source", string(o.src)), applogger.Error(o.err))
			continue
		}
		res.Fetched[o.src] = o.n
		res.Snapshots[o.src] = o.path
	}
	if len(res.Snapshots) == 0 {
		return nil, fmt.Errorf("%w (%d source(s))", ErrAllSourcesFailed, len(outcomes))
	}

	obs, err := e.snapshots.Read(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	res.Batch = models.RawBatch{AsOf: asOf, Observations: obs}

	if e.metrics != nil {
		e.metrics.RecordStageDuration("extract", e.now().Sub(start))
	}
	return res, nil
}

func (e *Extractor) fetchOne(ctx context.Context, runID string, f drepo.Fetcher) fetchOutcome {
	src := f.Source()
	fctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	began := e.now()
	obs, err := f.Fetch(fctx)
	if err != nil {
		return fetchOutcome{src: src, err: err}
	}
	path, err := e.snapshots.Write(ctx, runID, src, obs)
	if err != nil {
		return fetchOutcome{src: src, err: fmt.Errorf("snapshot %s: %w", src, err)}
	}

	if e.metrics != nil {
		e.metrics.RecordRecords("extract", src, len(obs))
	}
	e.l.Info("source fetched",
		applogger.String("run_id", runID),
		applogger.String("source", string(src)),
		applogger.Int("records", len(obs)),
		applogger.String("snapshot", path),
		applogger.Duration("duration", e.now().Sub(began)))
	return fetchOutcome{src: src, n: len(obs), path: path}
}
