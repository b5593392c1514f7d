package transform

import (
	"sort"

	"TrustBoard/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Dedupe keeps one candle per (symbol, source, bucket_start) and returns the
// survivors ordered by time together with the number of candles removed.
//
// Precedence: the latest fetch wins; a missing fetch time ranks below any
// known one. Then the larger absolute volume wins, a null volume ranking
// lowest. Then the lexicographically smallest raw payload key.
func Dedupe(candles []models.CanonicalCandle) ([]models.CanonicalCandle, int) {
	best := make(map[models.CandleKey]int, len(candles))
	out := make([]models.CanonicalCandle, 0, len(candles))
	for _, c := range candles {
		k := c.Key()
		if i, ok := best[k]; ok {
			if preferred(c, out[i]) {
				out[i] = c
			}
			continue
		}
		best[k] = len(out)
		out = append(out, c)
	}
	SortCandles(out)
	return out, len(candles) - len(out)
}

// preferred reports whether a ranks strictly above b.
func preferred(a, b models.CanonicalCandle) bool {
	if !a.FetchedAt.Equal(b.FetchedAt) {
		return a.FetchedAt.After(b.FetchedAt)
	}
	if c := compareVolume(a.Volume, b.Volume); c != 0 {
		return c > 0
	}
	return a.RawKey < b.RawKey
}

func compareVolume(a, b decimal.NullDecimal) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	return a.Decimal.Abs().Cmp(b.Decimal.Abs())
}

// SortCandles orders candles by (bucket_start, symbol, source).
func SortCandles(cs []models.CanonicalCandle) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if !a.BucketStart.Equal(b.BucketStart) {
			return a.BucketStart.Before(b.BucketStart)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Source < b.Source
	})
}
