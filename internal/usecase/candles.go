package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
)

// ErrInvalidQuery marks caller mistakes; handlers map it to 400.
var ErrInvalidQuery = errors.New("invalid query")

// CandlesUseCase serves stored candles to the read API.
type CandlesUseCase struct {
	store drepo.CandleStore
}

func NewCandlesUseCase(store drepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol string
	Source models.Source
	From   time.Time
	To     time.Time
	Limit  int
}

type GetCandlesResult struct {
	Symbol  string                `json:"symbol"`
	Source  string                `json:"source,omitempty"`
	From    time.Time             `json:"from"`
	To      time.Time             `json:"to"`
	Count   int                   `json:"count"`
	Candles []models.StoredCandle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidQuery)
	}
	if p.Source != "" && !p.Source.IsValid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidQuery, p.Source)
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return nil, fmt.Errorf("%w: from must be <= to", ErrInvalidQuery)
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	candles, err := uc.store.Query(ctx, drepo.CandleQuery{
		Symbol: p.Symbol,
		Source: p.Source,
		From:   p.From,
		To:     p.To,
		Limit:  p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if candles == nil {
		candles = []models.StoredCandle{}
	}

	return &GetCandlesResult{
		Symbol:  p.Symbol,
		Source:  string(p.Source),
		From:    p.From,
		To:      p.To,
		Count:   len(candles),
		Candles: candles,
	}, nil
}
