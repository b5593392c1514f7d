package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("kraken", 2, 1))
	assert.True(t, l.Allow("kraken", 2, 1))
	assert.False(t, l.Allow("kraken", 2, 1))
	assert.True(t, l.Allow("coingecko", 1, 1), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("kraken", 2, 1))
	assert.False(t, l.Allow("kraken", 2, 1))
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	assert.NoError(t, l.Wait(context.Background(), "k", 1, 0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, "k", 1, 0.001), context.DeadlineExceeded)
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := New()
	start := time.Now()
	assert.NoError(t, l.Wait(context.Background(), "k", 1, 50))
	assert.NoError(t, l.Wait(context.Background(), "k", 1, 50))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
