package transform

import (
	"time"

	"TrustBoard/internal/domain/models"
	"TrustBoard/pkg/util"
)

// Enforcer assigns each candle to its interval bucket. It neither merges
// candles sharing a bucket nor synthesizes empty buckets.
type Enforcer struct {
	Earliest      time.Time
	MaxFutureSkew time.Duration
	AsOf          time.Time
}

// WithAsOf returns a copy of the enforcer bound to a run's reference instant.
func (e Enforcer) WithAsOf(asOf time.Time) Enforcer {
	e.AsOf = asOf
	return e
}

// Align sets BucketStart on every candle inside the accepted time range and
// returns an *AlignmentError for every candle outside it.
func (e Enforcer) Align(candles []models.CanonicalCandle, interval time.Duration) ([]models.CanonicalCandle, []error) {
	out := make([]models.CanonicalCandle, 0, len(candles))
	var rejected []error
	for _, c := range candles {
		if reason := e.outOfRange(c.ObservedAt); reason != "" {
			rejected = append(rejected, &AlignmentError{Source: c.Source, Symbol: c.Symbol, At: c.ObservedAt, Reason: reason})
			continue
		}
		c.BucketStart = BucketStart(c.ObservedAt, interval)
		out = append(out, c)
	}
	return out, rejected
}

func (e Enforcer) outOfRange(t time.Time) string {
	if t.IsZero() {
		return "missing observation time"
	}
	if !inTimestampRange(t) {
		return "observation time outside the representable range"
	}
	if !e.Earliest.IsZero() && t.Before(e.Earliest) {
		return "before earliest accepted time " + e.Earliest.UTC().Format(time.RFC3339)
	}
	if !e.AsOf.IsZero() && t.After(e.AsOf.Add(e.MaxFutureSkew)) {
		return "beyond max future skew of " + e.MaxFutureSkew.String()
	}
	return ""
}

// BucketStart floors t to its interval window anchored at the Unix epoch.
// time.Truncate anchors at year 1, which disagrees with the epoch grid for
// intervals that do not divide a day.
func BucketStart(t time.Time, interval time.Duration) time.Time {
	return util.FloorTime(t, interval)
}
