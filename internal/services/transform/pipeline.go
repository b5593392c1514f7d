package transform

import (
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
	applogger "TrustBoard/pkg/logger"
)

// Pipeline composes normalize, align, dedupe and flag in that fixed order.
// Normalization precedes alignment so bucketing sees UTC instants only;
// deduplication precedes flagging so transient duplicates are never flagged.
type Pipeline struct {
	cfg        Config
	normalizer *Normalizer
	enforcer   Enforcer
	flagger    *Flagger
	l          *applogger.Logger
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("transform config: %w", err)
	}
	return &Pipeline{
		cfg:        cfg,
		normalizer: NewNormalizer(cfg.Sources),
		enforcer:   Enforcer{Earliest: cfg.Earliest, MaxFutureSkew: cfg.MaxFutureSkew},
		flagger:    NewFlagger(cfg.Anomaly),
	}, nil
}

// SetLogger injects a structured logger.
func (p *Pipeline) SetLogger(l *applogger.Logger) { p.l = l }

// IntervalSeconds returns the bucket length the pipeline aligns to.
func (p *Pipeline) IntervalSeconds() int64 { return int64(p.cfg.Interval.Seconds()) }

// Plan returns, for each series the batch will produce, the earliest bucket
// it touches. History strictly before that bucket is the series baseline.
// Records that fail normalization or alignment are skipped here and
// rejected by Run.
func (p *Pipeline) Plan(raw models.RawBatch) map[models.SeriesKey]time.Time {
	out := make(map[models.SeriesKey]time.Time)
	enforcer := p.enforcer.WithAsOf(raw.AsOf)
	for _, obs := range raw.Observations {
		c, err := p.normalizer.Normalize(obs)
		if err != nil {
			continue
		}
		if enforcer.outOfRange(c.ObservedAt) != "" {
			continue
		}
		b := BucketStart(c.ObservedAt, p.cfg.Interval)
		if cur, ok := out[c.Series()]; !ok || b.Before(cur) {
			out[c.Series()] = b
		}
	}
	return out
}

// Run transforms a raw batch without prior history.
func (p *Pipeline) Run(raw models.RawBatch) (*models.TransformBatch, error) {
	return p.RunWithBaseline(raw, nil)
}

// RunWithBaseline transforms a raw batch, scoring candles against the
// caller-supplied history. It performs no I/O: the result depends only on
// its arguments and either a full batch or an error is returned.
func (p *Pipeline) RunWithBaseline(raw models.RawBatch, baseline models.Baseline) (*models.TransformBatch, error) {
	if len(raw.Observations) == 0 {
		return nil, ErrNoInput
	}

	stats := models.RunStats{
		Input: len(raw.Observations),
		RejectedByKind: map[string]int{
			models.RejectNormalization: 0,
			models.RejectAlignment:     0,
		},
	}
	var rejections []models.Rejection
	reject := func(err error) {
		r := rejectionFor(err)
		rejections = append(rejections, r)
		stats.Rejected++
		stats.RejectedByKind[r.Kind]++
		if p.l != nil {
			p.l.Debug("record rejected",
				applogger.String("kind", r.Kind),
				applogger.String("source", string(r.Source)),
				applogger.String("symbol", r.Symbol),
				applogger.String("reason", r.Reason),
			)
		}
	}

	normalized := make([]models.CanonicalCandle, 0, len(raw.Observations))
	for _, obs := range raw.Observations {
		c, err := p.normalizer.Normalize(obs)
		if err != nil {
			reject(err)
			continue
		}
		normalized = append(normalized, c)
	}
	stats.Normalized = len(normalized)

	aligned, misaligned := p.enforcer.WithAsOf(raw.AsOf).Align(normalized, p.cfg.Interval)
	for _, err := range misaligned {
		reject(err)
	}

	unique, removed := Dedupe(aligned)
	stats.Deduped = removed

	flagged := p.flagger.Flag(unique, baseline)
	for _, c := range flagged {
		if c.IsAnomaly {
			stats.Flagged++
		}
	}
	stats.Output = len(flagged)

	if p.l != nil {
		p.l.Info("transform complete",
			applogger.Int("input", stats.Input),
			applogger.Int("normalized", stats.Normalized),
			applogger.Int("rejected", stats.Rejected),
			applogger.Int("deduped", stats.Deduped),
			applogger.Int("flagged", stats.Flagged),
			applogger.Int("output", stats.Output),
		)
	}

	return &models.TransformBatch{
		Candles:    flagged,
		Stats:      stats,
		Rejections: rejections,
	}, nil
}
