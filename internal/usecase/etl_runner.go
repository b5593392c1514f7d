package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/services/transform"
	"TrustBoard/pkg/cache"
	applogger "TrustBoard/pkg/logger"
)

// Run modes recorded in reports and metric groupings.
const (
	ModeRun    = "run"
	ModeReplay = "replay"
)

// ErrRunInProgress is returned when another run holds the ETL lock.
var ErrRunInProgress = errors.New("another run is in progress")

const runLockKey = "lock:etl"

// ETLRunner drives one Extract, Transform, Load cycle.
type ETLRunner struct {
	extractor *Extractor
	snapshots drepo.SnapshotStore
	pipeline  *transform.Pipeline
	baseline  *BaselineProvider
	loader    Loader
	reports   drepo.RunReportStore
	metrics   drepo.Metrics
	locker    cache.Service
	lockTTL   time.Duration
	l         *applogger.Logger

	newID func() string
	now   func() time.Time
}

// ETLRunnerDeps groups the collaborators of an ETLRunner.
type ETLRunnerDeps struct {
	Extractor *Extractor
	Snapshots drepo.SnapshotStore
	Pipeline  *transform.Pipeline
	Baseline  *BaselineProvider
	Loader    Loader
	Reports   drepo.RunReportStore // optional
	Metrics   drepo.Metrics        // optional
	Locker    cache.Service        // optional; guards against overlapping runs
	LockTTL   time.Duration
}

func NewETLRunner(d ETLRunnerDeps) *ETLRunner {
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ETLRunner{
		extractor: d.Extractor,
		snapshots: d.Snapshots,
		pipeline:  d.Pipeline,
		baseline:  d.Baseline,
		loader:    d.Loader,
		reports:   d.Reports,
		metrics:   d.Metrics,
		locker:    d.Locker,
		lockTTL:   ttl,
		l:         applogger.Nop(),
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

// SetLogger injects a structured logger.
func (r *ETLRunner) SetLogger(l *applogger.Logger) {
	if l != nil {
		r.l = l
	}
}

// RunOnce extracts fresh data under a new run id, then transforms and loads it.
func (r *ETLRunner) RunOnce(ctx context.Context) (*models.RunReport, error) {
	runID := r.newID()
	return r.run(ctx, ModeRun, runID, func(ctx context.Context, rep *models.RunReport) (models.RawBatch, error) {
		res, err := r.extractor.Extract(ctx, runID)
		if err != nil {
			return models.RawBatch{}, fmt.Errorf("extract: %w", err)
		}
		rep.Fetched = res.Fetched
		rep.Failed = res.Failed
		return res.Batch, nil
	})
}

// Replay re-runs Transform and Load over the snapshots of an earlier run.
// The future-skew check is anchored at the latest fetch time found in the
// snapshots, not the wall clock, so old runs replay cleanly.
func (r *ETLRunner) Replay(ctx context.Context, runID string) (*models.RunReport, error) {
	return r.run(ctx, ModeReplay, runID, func(ctx context.Context, rep *models.RunReport) (models.RawBatch, error) {
		obs, err := r.snapshots.Read(ctx, runID)
		if err != nil {
			return models.RawBatch{}, fmt.Errorf("replay %s: %w", runID, err)
		}
		batch := models.RawBatch{AsOf: latestFetch(obs), Observations: obs}
		rep.Fetched = batch.CountBySource()
		return batch, nil
	})
}

type rawSource func(ctx context.Context, rep *models.RunReport) (models.RawBatch, error)

func (r *ETLRunner) run(ctx context.Context, mode, runID string, raw rawSource) (*models.RunReport, error) {
	if r.locker != nil {
		ok, err := r.locker.TryLock(ctx, runLockKey, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := r.locker.Unlock(context.WithoutCancel(ctx), runLockKey); err != nil {
				r.l.Warn("release run lock", applogger.Error(err))
			}
		}()
	}

	rep := &models.RunReport{
		RunID:     runID,
		Mode:      mode,
		StartedAt: r.now().UTC(),
		Backend:   r.loader.Name(),
	}
	l := r.l.With(applogger.String("run_id", runID), applogger.String("mode", mode))
	l.Info("run started")

	err := r.execute(ctx, l, rep, raw)
	rep.FinishedAt = r.now().UTC()
	if err != nil {
		rep.Error = err.Error()
		l.Error("run failed", applogger.Error(err), applogger.Duration("duration", rep.FinishedAt.Sub(rep.StartedAt)))
	} else {
		if r.metrics != nil {
			r.metrics.RecordSuccess(rep.FinishedAt)
		}
		l.Info("run complete",
			applogger.Int("loaded", rep.Loaded),
			applogger.Int("rejected", rep.Stats.Rejected),
			applogger.Int("flagged", rep.Stats.Flagged),
			applogger.Duration("duration", rep.FinishedAt.Sub(rep.StartedAt)))
	}

	if r.reports != nil {
		if serr := r.reports.SaveReport(context.WithoutCancel(ctx), rep); serr != nil {
			l.Warn("save run report", applogger.Error(serr))
		}
	}
	return rep, err
}

func (r *ETLRunner) execute(ctx context.Context, l *applogger.Logger, rep *models.RunReport, raw rawSource) error {
	batch, err := raw(ctx, rep)
	if err != nil {
		return err
	}

	start := r.now()
	baseline, err := r.baseline.Baseline(ctx, r.pipeline.Plan(batch))
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	out, err := r.pipeline.RunWithBaseline(batch, baseline)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	rep.Stats = out.Stats
	r.recordTransform(out)
	if r.metrics != nil {
		r.metrics.RecordStageDuration("transform", r.now().Sub(start))
	}
	for _, rej := range out.Rejections {
		l.Debug("rejected",
			applogger.String("kind", rej.Kind),
			applogger.String("source", string(rej.Source)),
			applogger.String("reason", rej.Reason))
	}

	// nothing is loaded once the caller has given up
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before load: %w", err)
	}

	start = r.now()
	n, err := r.loader.Load(ctx, rep.RunID, out.Candles, r.pipeline.IntervalSeconds())
	if err != nil {
		return err
	}
	rep.Loaded = n
	if r.metrics != nil {
		r.metrics.RecordStageDuration("load", r.now().Sub(start))
		for src, cnt := range countBySource(out.Candles) {
			r.metrics.RecordRecords("load", src, cnt)
		}
	}
	r.baseline.Invalidate(ctx)
	return nil
}

func (r *ETLRunner) recordTransform(out *models.TransformBatch) {
	if r.metrics == nil {
		return
	}
	for kind, n := range out.Stats.RejectedByKind {
		r.metrics.RecordRejections(kind, n)
	}
	flagged := make(map[models.Source]int)
	for _, c := range out.Candles {
		if c.IsAnomaly {
			flagged[c.Source]++
		}
	}
	for src, n := range countBySource(out.Candles) {
		r.metrics.RecordRecords("transform", src, n)
		r.metrics.RecordAnomalies(src, flagged[src])
	}
}

func countBySource(cs []models.CanonicalCandle) map[models.Source]int {
	out := make(map[models.Source]int)
	for _, c := range cs {
		out[c.Source]++
	}
	return out
}

func latestFetch(obs []models.RawObservation) time.Time {
	var latest time.Time
	for _, o := range obs {
		if o.FetchedAt.After(latest) {
			latest = o.FetchedAt
		}
	}
	return latest
}
