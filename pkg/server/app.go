package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TrustBoard/internal/domain/models"
	"TrustBoard/pkg/config"
	xhttp "TrustBoard/pkg/http"
	pkgkafka "TrustBoard/pkg/kafka"
	applogger "TrustBoard/pkg/logger"
	"TrustBoard/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Modes the binary can run in.
const (
	ModeRun    = "run"
	ModeReplay = "replay"
	ModeServe  = "serve"
	ModeSink   = "sink"
)

// Runner executes one ETL pass.
type Runner interface {
	RunOnce(ctx context.Context) (*models.RunReport, error)
	Replay(ctx context.Context, runID string) (*models.RunReport, error)
}

// Deps groups what the App drives. Consumer and SinkHandler are nil when no
// Kafka brokers are configured.
type Deps struct {
	Config      *config.Config
	Logger      *applogger.Logger
	Runner      Runner
	HTTPHandler xhttp.Handler
	Consumer    *pkgkafka.Consumer
	SinkHandler pkgkafka.MessageHandler
	Registry    prometheus.Gatherer
	Pusher      *metrics.Pusher
}

// App encapsulates the entire application lifecycle.
type App struct {
	d Deps
	l *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{d: d, l: l}
}

// Run executes the given mode. run and replay return when the pass is done;
// serve and sink block until ctx is cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context, mode, runID string) error {
	switch mode {
	case ModeRun, ModeReplay:
		return a.runOnce(ctx, mode, runID)
	case ModeServe:
		return a.serve(ctx)
	case ModeSink:
		return a.sink(ctx)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (a *App) runOnce(ctx context.Context, mode, runID string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		rep *models.RunReport
		err error
	)
	if mode == ModeReplay {
		if runID == "" {
			return errors.New("replay needs -run-id")
		}
		rep, err = a.d.Runner.Replay(ctx, runID)
	} else {
		rep, err = a.d.Runner.RunOnce(ctx)
	}

	if perr := a.d.Pusher.Push(mode); perr != nil {
		a.l.Warn("metrics push failed", applogger.Error(perr))
	}
	if err != nil {
		return err
	}
	a.l.Info("etl finished",
		applogger.String("run_id", rep.RunID),
		applogger.Int("loaded", rep.Loaded),
		applogger.Int("flagged", rep.Stats.Flagged),
		applogger.Int("rejected", rep.Stats.Rejected),
	)
	return nil
}

func (a *App) serve(ctx context.Context) error {
	cfg := a.d.Config
	srv := xhttp.NewServer(a.d.HTTPHandler, a.l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Path, a.d.Registry),
	)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("http server start: %w", err)
	}

	a.wait(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout())
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.l.Info("shutdown complete")
	return nil
}

func (a *App) sink(ctx context.Context) error {
	if a.d.Consumer == nil || a.d.SinkHandler == nil {
		return errors.New("sink mode needs kafka.brokers")
	}
	a.d.Consumer.RegisterHandler(a.d.SinkHandler)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.d.Consumer.Start(runCtx); err != nil {
		return fmt.Errorf("kafka consumer start: %w", err)
	}
	a.l.Info("kafka sink started", applogger.String("topic", a.d.SinkHandler.Topic()))

	a.wait(ctx)

	shutdownCtx, done := context.WithTimeout(context.Background(), a.d.Config.Server.ShutdownTimeout)
	defer done()
	if err := a.d.Consumer.Stop(shutdownCtx); err != nil {
		a.l.Warn("kafka consumer stop error", applogger.Error(err))
		return err
	}
	a.l.Info("shutdown complete")
	return nil
}

// wait blocks until ctx ends or SIGINT/SIGTERM arrives.
func (a *App) wait(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case s := <-sigCh:
		a.l.Info("shutdown signal received", applogger.String("signal", s.String()))
	}
}
