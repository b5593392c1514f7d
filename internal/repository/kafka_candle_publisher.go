package repository

import (
	"context"
	"strconv"

	"TrustBoard/internal/domain/models"
	pkgkafka "TrustBoard/pkg/kafka"
)

// KafkaCandlePublisher implements BatchPublisher on a Kafka topic.
type KafkaCandlePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaCandlePublisher creates the publisher. It owns the producer.
func NewKafkaCandlePublisher(producer *pkgkafka.Producer, topic string) *KafkaCandlePublisher {
	return &KafkaCandlePublisher{producer: producer, topic: topic}
}

// PublishBatch sends one message per candle in a single write.
func (p *KafkaCandlePublisher) PublishBatch(ctx context.Context, runID string, candles []models.CanonicalCandle, intervalSec int64) error {
	if len(candles) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, candleMessages(runID, candles, intervalSec))
}

func candleMessages(runID string, candles []models.CanonicalCandle, intervalSec int64) []pkgkafka.Message {
	msgs := make([]pkgkafka.Message, len(candles))
	for i, c := range candles {
		msgs[i] = pkgkafka.Message{
			Key: []byte(c.Series().String()),
			Value: models.CandleEvent{
				RunID:       runID,
				IntervalSec: intervalSec,
				Candle:      c,
			},
			Headers: map[string]string{
				"run_id":       runID,
				"interval_sec": strconv.FormatInt(intervalSec, 10),
			},
		}
	}
	return msgs
}

func (p *KafkaCandlePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
