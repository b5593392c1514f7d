package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustBoard/internal/domain/models"
)

func TestQualityReport(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 1, 2, 0, 30, 0, 0, time.UTC)
	// last complete bucket is 2024-01-01 23:00; one day = 24 buckets from 00:00
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for h := 0; h < 24; h++ {
		if h == 5 || h == 6 {
			continue // gap
		}
		c := storedCandle(models.SourceKraken, day.Add(time.Duration(h)*time.Hour), "100")
		if h == 10 {
			c.IsAnomaly, c.AnomalyReason = true, "close_deviation"
		}
		if h == 23 {
			c.Close = dec("110")
		}
		store.put(c)
	}
	store.put(storedCandle(models.SourceCoinGecko, day.Add(22*time.Hour), "100"))
	store.put(storedCandle(models.SourceCoinGecko, day.Add(23*time.Hour), "99"))
	// outside the window
	store.put(storedCandle(models.SourceKraken, day.Add(-time.Hour), "1"))

	uc := NewQualityUseCase(store, time.Hour, 2*time.Hour)
	uc.now = func() time.Time { return now }

	rep, err := uc.Quality(context.Background(), "BTC-USD", 1)
	require.NoError(t, err)

	assert.True(t, rep.From.Equal(day))
	assert.True(t, rep.To.Equal(day.Add(23*time.Hour)))
	require.Len(t, rep.Sources, 2)

	gecko, kraken := rep.Sources[0], rep.Sources[1]
	assert.Equal(t, models.SourceCoinGecko, gecko.Source)
	assert.Equal(t, 2, gecko.Rows)
	assert.InDelta(t, 22.0/24.0, gecko.MissingRate, 1e-9)

	assert.Equal(t, 22, kraken.Rows)
	assert.Equal(t, 24, kraken.Expected)
	assert.InDelta(t, 2.0/24.0, kraken.MissingRate, 1e-9)
	assert.InDelta(t, 1.0/22.0, kraken.AnomalyRate, 1e-9)
	assert.True(t, kraken.LastBucket.Equal(day.Add(23*time.Hour)))
	assert.Equal(t, 90*time.Minute, kraken.Freshness)
	require.NotNil(t, kraken.PriceChange)
	assert.InDelta(t, 0.10, *kraken.PriceChange, 1e-9)
	assert.True(t, kraken.LatestClose.Equal(dec("110")))

	require.NotNil(t, rep.MaxDivergence)
	assert.InDelta(t, 11.0/99.0, *rep.MaxDivergence, 1e-9)
	assert.False(t, rep.Stale)
}

func TestQualityStaleWhenSourceSilent(t *testing.T) {
	store := newMemStore()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.put(storedCandle(models.SourceKraken, day, "100"))

	uc := NewQualityUseCase(store, time.Hour, 2*time.Hour)
	uc.now = func() time.Time { return day.Add(12 * time.Hour) }

	rep, err := uc.Quality(context.Background(), "BTC-USD", 1)
	require.NoError(t, err)
	assert.True(t, rep.Stale)
	assert.Nil(t, rep.MaxDivergence)
	assert.Equal(t, 1.0, rep.Sources[0].MissingRate)
}

func TestQualityValidates(t *testing.T) {
	uc := NewQualityUseCase(newMemStore(), time.Hour, time.Hour)
	_, err := uc.Quality(context.Background(), "", 1)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = uc.Quality(context.Background(), "BTC-USD", 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
