package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrustBoard/internal/domain/models"
	"TrustBoard/pkg/config"
)

type stubRunner struct {
	err      error
	replayed string
	runs     int
}

func (s *stubRunner) RunOnce(context.Context) (*models.RunReport, error) {
	s.runs++
	if s.err != nil {
		return nil, s.err
	}
	return &models.RunReport{RunID: "r-1", Mode: ModeRun}, nil
}

func (s *stubRunner) Replay(_ context.Context, runID string) (*models.RunReport, error) {
	s.replayed = runID
	if s.err != nil {
		return nil, s.err
	}
	return &models.RunReport{RunID: runID, Mode: ModeReplay}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestRunModes(t *testing.T) {
	r := &stubRunner{}
	app := New(Deps{Config: testConfig(), Runner: r})

	require.NoError(t, app.Run(context.Background(), ModeRun, ""))
	assert.Equal(t, 1, r.runs)

	require.NoError(t, app.Run(context.Background(), ModeReplay, "r-7"))
	assert.Equal(t, "r-7", r.replayed)
}

func TestReplayNeedsRunID(t *testing.T) {
	r := &stubRunner{}
	app := New(Deps{Config: testConfig(), Runner: r})

	require.Error(t, app.Run(context.Background(), ModeReplay, ""))
	assert.Empty(t, r.replayed)
}

func TestRunFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	app := New(Deps{Config: testConfig(), Runner: &stubRunner{err: boom}})

	assert.ErrorIs(t, app.Run(context.Background(), ModeRun, ""), boom)
}

func TestUnknownMode(t *testing.T) {
	app := New(Deps{Config: testConfig(), Runner: &stubRunner{}})
	assert.Error(t, app.Run(context.Background(), "backfill", ""))
}

func TestSinkNeedsConsumer(t *testing.T) {
	app := New(Deps{Config: testConfig(), Runner: &stubRunner{}})
	assert.Error(t, app.Run(context.Background(), ModeSink, ""))
}

func TestServeStopsOnContextCancel(t *testing.T) {
	app := New(Deps{Config: testConfig(), Runner: &stubRunner{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, ModeServe, "") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
