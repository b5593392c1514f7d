package transform

import (
	"testing"
	"time"

	"TrustBoard/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketStart(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		interval time.Duration
		want     time.Time
	}{
		{"hourly", time.Date(2024, 1, 1, 10, 47, 0, 0, time.UTC), time.Hour, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"on boundary", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), time.Hour, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"five minutes", time.Date(2024, 1, 1, 10, 47, 59, 999, time.UTC), 5 * time.Minute, time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC)},
		{"non utc input", time.Date(2024, 1, 1, 12, 47, 0, 0, time.FixedZone("EET", 2*3600)), time.Hour, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"epoch anchored seven minutes", time.Unix(7*60*3+30, 0), 7 * time.Minute, time.Unix(7*60*3, 0)},
		{"before epoch", time.Unix(-1, 0), time.Hour, time.Unix(-3600, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketStart(tt.at, tt.interval)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestAlignAssignsBucketsWithoutMerging(t *testing.T) {
	cs := []models.CanonicalCandle{
		candle("BTC-USD", models.SourceKraken, time.Time{}, "1", "1", "1", "1"),
		candle("BTC-USD", models.SourceKraken, time.Time{}, "2", "2", "2", "2"),
	}
	cs[0].ObservedAt = t0.Add(5 * time.Minute)
	cs[1].ObservedAt = t0.Add(50 * time.Minute)

	out, rejected := Enforcer{}.Align(cs, time.Hour)
	require.Empty(t, rejected)
	require.Len(t, out, 2, "the enforcer must not merge candles sharing a bucket")
	for _, c := range out {
		assert.True(t, c.BucketStart.Equal(t0))
	}
}

func TestAlignDoesNotFillGaps(t *testing.T) {
	cs := []models.CanonicalCandle{
		candle("BTC-USD", models.SourceKraken, time.Time{}, "1", "1", "1", "1"),
		candle("BTC-USD", models.SourceKraken, time.Time{}, "1", "1", "1", "1"),
	}
	cs[0].ObservedAt = t0
	cs[1].ObservedAt = t0.Add(5 * time.Hour)

	out, _ := Enforcer{}.Align(cs, time.Hour)
	assert.Len(t, out, 2)
}

func TestAlignRejectsOutOfRange(t *testing.T) {
	e := Enforcer{
		Earliest:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxFutureSkew: 10 * time.Minute,
	}.WithAsOf(t0)

	early := candle("BTC-USD", models.SourceKraken, time.Time{}, "1", "1", "1", "1")
	early.ObservedAt = time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)
	future := early
	future.ObservedAt = t0.Add(11 * time.Minute)
	skewOK := early
	skewOK.ObservedAt = t0.Add(10 * time.Minute)

	out, rejected := e.Align([]models.CanonicalCandle{early, future, skewOK}, time.Hour)
	require.Len(t, out, 1)
	assert.True(t, out[0].BucketStart.Equal(t0))
	require.Len(t, rejected, 2)
	for _, err := range rejected {
		assert.ErrorIs(t, err, ErrAlignment)
	}
}

func TestAlignRejectsUnrepresentableTimes(t *testing.T) {
	ancient := candle("BTC-USD", models.SourceKraken, time.Time{}, "1", "1", "1", "1")
	ancient.ObservedAt = time.Date(1500, 1, 1, 10, 47, 0, 0, time.UTC)
	distant := ancient
	distant.ObservedAt = time.Date(2300, 1, 1, 10, 47, 0, 0, time.UTC)

	out, rejected := Enforcer{}.Align([]models.CanonicalCandle{ancient, distant}, time.Hour)
	assert.Empty(t, out)
	require.Len(t, rejected, 2)
	for _, err := range rejected {
		assert.ErrorIs(t, err, ErrAlignment)
	}
}
