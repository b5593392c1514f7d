package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	pkgkafka "TrustBoard/pkg/kafka"
)

// KafkaCandlesHandler consumes candle events and upserts them into a store.
// Upserts are idempotent, so redelivery after a crash is harmless.
type KafkaCandlesHandler struct {
	topic   string
	store   drepo.CandleStore
	metrics drepo.Metrics
	onLoad  func(context.Context)
	now     func() time.Time
}

func NewKafkaCandlesHandler(topic string, store drepo.CandleStore, metrics drepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, store: store, metrics: metrics, now: time.Now}
}

// OnLoad registers a callback run after each successful upsert.
func (h *KafkaCandlesHandler) OnLoad(fn func(context.Context)) { h.onLoad = fn }

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.CandleEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("%w: decode candle event: %v", pkgkafka.ErrPermanent, err)
	}
	c := ev.Candle
	if c.Symbol == "" || !c.Source.IsValid() || c.BucketStart.IsZero() || ev.IntervalSec <= 0 {
		return fmt.Errorf("%w: incomplete candle event (run %s)", pkgkafka.ErrPermanent, ev.RunID)
	}

	start := h.now()
	if _, err := h.store.Upsert(ctx, []models.CanonicalCandle{c}, ev.IntervalSec, start.UTC()); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordStageDuration("sink", h.now().Sub(start))
		h.metrics.RecordRecords("sink", c.Source, 1)
	}
	if h.onLoad != nil {
		h.onLoad(ctx)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
