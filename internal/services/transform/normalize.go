package transform

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Largest accepted magnitudes for timestamps, roughly years 1684 to 2255.
// Every format is held to the same window so bucketing never overflows.
var (
	maxUnixSeconds = decimal.NewFromInt(9_000_000_000)
	maxUnixMillis  = decimal.NewFromInt(9_000_000_000_000)

	minInstant = time.Unix(-9_000_000_000, 0).UTC()
	maxInstant = time.Unix(9_000_000_000, 0).UTC()
)

func inTimestampRange(t time.Time) bool {
	return !t.Before(minInstant) && !t.After(maxInstant)
}

// Normalizer maps provider records onto the canonical candle shape.
type Normalizer struct {
	sources map[models.Source]SourceMapping
}

func NewNormalizer(sources map[models.Source]SourceMapping) *Normalizer {
	return &Normalizer{sources: sources}
}

// Normalize converts one raw observation. Records with missing or non-numeric
// prices, or an unparsable timestamp, return a *NormalizationError.
func (n *Normalizer) Normalize(raw models.RawObservation) (models.CanonicalCandle, error) {
	m, ok := n.sources[raw.Source]
	if !ok {
		return models.CanonicalCandle{}, &NormalizationError{Source: raw.Source, Symbol: raw.Symbol, Reason: "no field mapping for source"}
	}

	symbol := canonicalSymbol(raw.Symbol, m.SymbolAliases)
	if symbol == "" {
		return models.CanonicalCandle{}, &NormalizationError{Source: raw.Source, Field: "symbol", Reason: "missing"}
	}
	fail := func(field, reason string, err error) (models.CanonicalCandle, error) {
		return models.CanonicalCandle{}, &NormalizationError{Source: raw.Source, Symbol: symbol, Field: field, Reason: reason, Err: err}
	}

	tsRaw, ok := present(raw, m.Fields.Timestamp)
	if !ok {
		return fail(m.Fields.Timestamp, "missing timestamp", nil)
	}
	observedAt, err := parseTimestamp(tsRaw, m.Fields.TimestampFormat)
	if err != nil {
		return fail(m.Fields.Timestamp, "unparsable timestamp", err)
	}

	c := models.CanonicalCandle{
		Symbol:     symbol,
		Source:     raw.Source,
		ObservedAt: observedAt,
		RawKey:     raw.StableKey(),
	}
	if !raw.FetchedAt.IsZero() {
		c.FetchedAt = raw.FetchedAt.UTC()
	}

	prices := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{m.Fields.Open, &c.Open},
		{m.Fields.High, &c.High},
		{m.Fields.Low, &c.Low},
		{m.Fields.Close, &c.Close},
	}
	for _, p := range prices {
		v, ok := present(raw, p.field)
		if !ok {
			return fail(p.field, "missing price", nil)
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fail(p.field, "non-numeric price", err)
		}
		*p.dst = d
	}

	if c.Volume, err = optionalDecimal(raw, m.Fields.Volume); err != nil {
		return fail(m.Fields.Volume, "non-numeric volume", err)
	}
	if c.VWAP, err = optionalDecimal(raw, m.Fields.VWAP); err != nil {
		return fail(m.Fields.VWAP, "non-numeric vwap", err)
	}
	if m.Fields.Count != "" {
		if v, ok := present(raw, m.Fields.Count); ok {
			cnt, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fail(m.Fields.Count, "non-integer count", err)
			}
			c.TradeCount = &cnt
		}
	}
	return c, nil
}

// present returns the trimmed field value; empty values count as absent.
func present(raw models.RawObservation, field string) (string, bool) {
	if field == "" {
		return "", false
	}
	v, ok := raw.Field(field)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func optionalDecimal(raw models.RawObservation, field string) (decimal.NullDecimal, error) {
	v, ok := present(raw, field)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func canonicalSymbol(s string, aliases map[string]string) string {
	s = strings.TrimSpace(s)
	if a, ok := aliases[s]; ok {
		return a
	}
	if a, ok := aliases[strings.ToUpper(s)]; ok {
		return a
	}
	return strings.ToUpper(s)
}

func parseTimestamp(v, format string) (time.Time, error) {
	switch format {
	case TimestampRFC3339:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, err
		}
		if !inTimestampRange(t) {
			return time.Time{}, errors.New("timestamp out of range")
		}
		return t.UTC(), nil
	case TimestampUnixSeconds, TimestampUnixMillis:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return time.Time{}, err
		}
		limit, scale := maxUnixSeconds, decimal.NewFromInt(int64(time.Second))
		if format == TimestampUnixMillis {
			limit, scale = maxUnixMillis, decimal.NewFromInt(int64(time.Millisecond))
		}
		if d.Abs().GreaterThan(limit) {
			return time.Time{}, errors.New("timestamp out of range")
		}
		return time.Unix(0, d.Mul(scale).IntPart()).UTC(), nil
	default:
		return time.Time{}, errors.New("unsupported timestamp format " + format)
	}
}
