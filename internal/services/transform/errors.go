package transform

import (
	"errors"
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
)

var (
	// ErrNoInput aborts a run whose raw batch is absent or empty.
	ErrNoInput = errors.New("transform: no raw input")

	ErrNormalization = errors.New("normalization error")
	ErrAlignment     = errors.New("alignment error")
)

// NormalizationError reports a raw record that cannot be mapped to a canonical candle.
type NormalizationError struct {
	Source models.Source
	Symbol string
	Field  string
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("normalize %s/%s", e.Source, e.Symbol)
	if e.Field != "" {
		msg += " field " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// AlignmentError reports a record whose timestamp falls outside the accepted range.
type AlignmentError struct {
	Source models.Source
	Symbol string
	At     time.Time
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("align %s/%s at %s: %s", e.Source, e.Symbol, e.At.UTC().Format(time.RFC3339), e.Reason)
}

func (e *AlignmentError) Is(target error) bool { return target == ErrAlignment }

// rejectionFor converts a dropped-record error into its reported form.
func rejectionFor(err error) models.Rejection {
	var ne *NormalizationError
	if errors.As(err, &ne) {
		return models.Rejection{Kind: models.RejectNormalization, Source: ne.Source, Symbol: ne.Symbol, Reason: ne.Error()}
	}
	var ae *AlignmentError
	if errors.As(err, &ae) {
		return models.Rejection{Kind: models.RejectAlignment, Source: ae.Source, Symbol: ae.Symbol, Reason: ae.Error()}
	}
	return models.Rejection{Kind: "unknown", Reason: err.Error()}
}
