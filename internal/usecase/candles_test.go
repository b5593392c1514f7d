package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustBoard/internal/domain/models"
)

func TestGetCandles(t *testing.T) {
	store := newMemStore()
	for h := 0; h < 5; h++ {
		store.put(storedCandle(models.SourceKraken, t0.Add(time.Duration(h)*time.Hour), "100"))
		store.put(storedCandle(models.SourceCoinGecko, t0.Add(time.Duration(h)*time.Hour), "100"))
	}
	uc := NewCandlesUseCase(store)

	res, err := uc.GetCandles(context.Background(), GetCandlesParams{
		Symbol: "BTC-USD",
		Source: models.SourceKraken,
		From:   t0.Add(time.Hour),
		To:     t0.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	for _, c := range res.Candles {
		assert.Equal(t, models.SourceKraken, c.Source)
	}

	res, err = uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "BTC-USD", Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)

	res, err = uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "ETH-USD"})
	require.NoError(t, err)
	assert.NotNil(t, res.Candles)
	assert.Equal(t, 0, res.Count)
}

func TestGetCandlesValidation(t *testing.T) {
	uc := NewCandlesUseCase(newMemStore())
	cases := []GetCandlesParams{
		{},
		{Symbol: "BTC-USD", Source: "binance"},
		{Symbol: "BTC-USD", From: t0.Add(time.Hour), To: t0},
	}
	for _, p := range cases {
		_, err := uc.GetCandles(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	}
}
