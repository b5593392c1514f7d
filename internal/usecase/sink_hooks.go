package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	pkgkafka "TrustBoard/pkg/kafka"
	applogger "TrustBoard/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// SinkFailureRecorder counts sink messages the consumer gave up on.
type SinkFailureRecorder interface {
	RecordSinkFailure(reason string)
}

// NewSinkHooks builds the consumer hooks for the sink: a guard that parks
// empty payloads without retrying, and a failure hook that logs the message
// coordinates and counts the failure.
func NewSinkHooks(l *applogger.Logger, rec SinkFailureRecorder) pkgkafka.ConsumerHook {
	if l == nil {
		l = applogger.Nop()
	}
	guard := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			if len(bytes.TrimSpace(data)) == 0 {
				return ctx, km, data, fmt.Errorf("%w: empty payload on %s", pkgkafka.ErrPermanent, topic)
			}
			return ctx, km, data, nil
		},
	}
	failures := pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			permanent := errors.Is(err, pkgkafka.ErrPermanent)
			reason := "transient"
			if permanent {
				reason = "permanent"
			}
			if rec != nil {
				rec.RecordSinkFailure(reason)
			}
			l.Warn("sink message failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Time("message_time", km.Time),
				applogger.Bool("permanent", permanent),
				applogger.Any("headers", headerMap(km)),
				applogger.Error(err),
			)
		},
	}
	return pkgkafka.NewHookChain(guard, failures)
}

func headerMap(km kafka.Message) map[string]string {
	out := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
