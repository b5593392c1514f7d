package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source identifies an upstream market-data provider.
type Source string

const (
	SourceCoinGecko Source = "coingecko"
	SourceKraken    Source = "kraken"
)

// IsValid reports whether s is a known provider.
func (s Source) IsValid() bool {
	switch s {
	case SourceCoinGecko, SourceKraken:
		return true
	default:
		return false
	}
}

// Sources returns every known provider in a stable order.
func Sources() []Source { return []Source{SourceCoinGecko, SourceKraken} }

// RawObservation is one provider observation as fetched. Fields keeps the
// provider-native field names and their textual values untouched; parsing
// happens in the normalizer.
type RawObservation struct {
	Source    Source
	Symbol    string
	FetchedAt time.Time // zero when the fetch instant is unknown
	Fields    map[string]string
}

// Field returns the raw value for a provider field and whether it was present.
func (r RawObservation) Field(name string) (string, bool) {
	if r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// StableKey serializes the observation deterministically: source, symbol and
// the fields sorted by name, each part length-prefixed so that separators
// inside values cannot make two payloads collide.
func (r RawObservation) StableKey() string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	writeKeyPart(&b, string(r.Source))
	writeKeyPart(&b, r.Symbol)
	for _, k := range keys {
		b.WriteByte('|')
		writeKeyPart(&b, k)
		writeKeyPart(&b, r.Fields[k])
	}
	return b.String()
}

func writeKeyPart(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// RawBatch is the closed input of one transform run.
type RawBatch struct {
	AsOf         time.Time // reference instant for the future-skew check; zero disables it
	Observations []RawObservation
}

// CountBySource returns the number of observations per provider.
func (b RawBatch) CountBySource() map[Source]int {
	out := make(map[Source]int, 2)
	for _, o := range b.Observations {
		out[o.Source]++
	}
	return out
}
