package transform

import (
	"sort"
	"strings"

	"TrustBoard/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Anomaly reasons, in the order they are reported.
const (
	ReasonLowAboveHigh    = "low_gt_high"
	ReasonCloseOutOfRange = "close_out_of_range"
	ReasonOpenOutOfRange  = "open_out_of_range"
	ReasonNegativePrice   = "negative_price"
	ReasonNegativeVolume  = "negative_volume"
	ReasonCloseDeviation  = "close_deviation"
)

var two = decimal.NewFromInt(2)

// Flagger annotates candles that break OHLC consistency or deviate from their
// rolling baseline. It keeps no state between calls.
type Flagger struct {
	cfg AnomalyConfig
}

func NewFlagger(cfg AnomalyConfig) *Flagger {
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 1
	}
	return &Flagger{cfg: cfg}
}

// Flag returns a copy of candles with IsAnomaly and AnomalyReason set. No
// candle is ever dropped and the input order is preserved.
//
// The rolling window of a series starts from the supplied baseline and is
// extended, in bucket order, with the closes of batch candles that pass the
// consistency rules.
func (f *Flagger) Flag(candles []models.CanonicalCandle, baseline models.Baseline) []models.CanonicalCandle {
	out := make([]models.CanonicalCandle, len(candles))
	copy(out, candles)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := out[order[i]], out[order[j]]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.BucketStart.Before(b.BucketStart)
	})

	windows := make(map[models.SeriesKey][]decimal.Decimal)
	for _, i := range order {
		c := &out[i]
		key := c.Series()
		w, ok := windows[key]
		if !ok {
			w = f.tail(baseline[key])
		}

		reasons := consistencyViolations(*c)
		if len(reasons) == 0 {
			if f.deviates(c.Close, w) {
				reasons = append(reasons, ReasonCloseDeviation)
			}
			w = f.tail(append(w, c.Close))
		}
		windows[key] = w

		c.IsAnomaly = len(reasons) > 0
		c.AnomalyReason = strings.Join(reasons, ";")
	}
	return out
}

// consistencyViolations applies the hard rules. They do not depend on any
// threshold and always flag.
func consistencyViolations(c models.CanonicalCandle) []string {
	var reasons []string
	if c.Low.GreaterThan(c.High) {
		reasons = append(reasons, ReasonLowAboveHigh)
	}
	if c.Close.LessThan(c.Low) || c.Close.GreaterThan(c.High) {
		reasons = append(reasons, ReasonCloseOutOfRange)
	}
	if c.Open.LessThan(c.Low) || c.Open.GreaterThan(c.High) {
		reasons = append(reasons, ReasonOpenOutOfRange)
	}
	if c.Open.IsNegative() || c.High.IsNegative() || c.Low.IsNegative() || c.Close.IsNegative() {
		reasons = append(reasons, ReasonNegativePrice)
	}
	if c.Volume.Valid && c.Volume.Decimal.IsNegative() {
		reasons = append(reasons, ReasonNegativeVolume)
	}
	return reasons
}

// deviates reports whether close is more than the threshold away from the
// window baseline. A deviation exactly at the threshold is not flagged.
func (f *Flagger) deviates(close decimal.Decimal, window []decimal.Decimal) bool {
	if len(window) < f.cfg.MinSamples {
		return false
	}
	base := f.baseline(window)
	if !base.IsPositive() {
		return false
	}
	dev := close.Sub(base).Abs().Div(base)
	return dev.GreaterThan(f.cfg.Threshold)
}

func (f *Flagger) baseline(window []decimal.Decimal) decimal.Decimal {
	if f.cfg.Method == MethodMean {
		return decimal.Avg(window[0], window[1:]...)
	}
	return median(window)
}

// tail returns a fresh copy of the last Window values.
func (f *Flagger) tail(xs []decimal.Decimal) []decimal.Decimal {
	if len(xs) > f.cfg.Window {
		xs = xs[len(xs)-f.cfg.Window:]
	}
	out := make([]decimal.Decimal, len(xs), f.cfg.Window+1)
	copy(out, xs)
	return out
}

func median(xs []decimal.Decimal) decimal.Decimal {
	s := make([]decimal.Decimal, len(xs))
	copy(s, xs)
	sort.Slice(s, func(i, j int) bool { return s[i].LessThan(s[j]) })
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return s[mid-1].Add(s[mid]).Div(two)
}
