package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustBoard/internal/domain/models"
	pkgkafka "TrustBoard/pkg/kafka"
)

func TestKafkaCandlesHandlerUpserts(t *testing.T) {
	store := newMemStore()
	metrics := newFakeMetrics()
	h := NewKafkaCandlesHandler("trustboard.candles", store, metrics)
	loads := 0
	h.OnLoad(func(context.Context) { loads++ })

	c := storedCandle(models.SourceKraken, t0, "100.25")
	c.IsAnomaly, c.AnomalyReason = true, "close_deviation"
	body, err := json.Marshal(models.CandleEvent{RunID: "r1", IntervalSec: 3600, Candle: c})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), body))
	require.NoError(t, h.Handle(context.Background(), body)) // redelivery

	require.Len(t, store.rows, 1)
	got := store.rows[c.Key()]
	assert.True(t, got.Close.Equal(dec("100.25")))
	assert.Equal(t, int64(3600), got.IntervalSec)
	assert.Equal(t, "close_deviation", got.AnomalyReason)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, metrics.records["sink/kraken"])
	assert.Equal(t, "trustboard.candles", h.Topic())
}

func TestKafkaCandlesHandlerBadPayloadIsPermanent(t *testing.T) {
	h := NewKafkaCandlesHandler("t", newMemStore(), nil)

	err := h.Handle(context.Background(), []byte("{not json"))
	assert.True(t, errors.Is(err, pkgkafka.ErrPermanent))

	err = h.Handle(context.Background(), []byte(`{"run_id":"r","interval_sec":3600,"candle":{"symbol":"BTC-USD","source":"nowhere"}}`))
	assert.True(t, errors.Is(err, pkgkafka.ErrPermanent))
}

func TestKafkaCandlesHandlerStoreErrorIsRetryable(t *testing.T) {
	store := newMemStore()
	store.failNext = errors.New("db down")
	h := NewKafkaCandlesHandler("t", store, nil)

	body, _ := json.Marshal(models.CandleEvent{RunID: "r", IntervalSec: 60, Candle: storedCandle(models.SourceKraken, t0, "1")})
	err := h.Handle(context.Background(), body)
	require.Error(t, err)
	assert.False(t, errors.Is(err, pkgkafka.ErrPermanent))
}
