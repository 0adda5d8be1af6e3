package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StaffPulse/internal/usecase"
	"StaffPulse/pkg/config"
	xhttp "StaffPulse/pkg/http"
	pkgkafka "StaffPulse/pkg/kafka"
	applogger "StaffPulse/pkg/logger"
	"StaffPulse/pkg/queue"
)

// App owns the process lifecycle: HTTP server, snapshot consumer, audit retry
// queue and shutdown.
// Infrastructure clients are closed by the cleanup func returned from DI.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	http      *xhttp.Server
	consumer  *pkgkafka.Consumer
	snapshots *usecase.SnapshotHandler
	audit     queue.Service
}

// New builds the App. consumer and snapshots may be nil when Kafka is disabled,
// audit when retries are disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	http *xhttp.Server,
	consumer *pkgkafka.Consumer,
	snapshots *usecase.SnapshotHandler,
	audit queue.Service,
) *App {
	return &App{cfg: cfg, log: log, http: http, consumer: consumer, snapshots: snapshots, audit: audit}
}

// Run starts every trigger and blocks until SIGINT/SIGTERM, ctx cancellation
// or an HTTP listener failure.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.audit != nil {
		if err := a.audit.Start(); err != nil {
			return fmt.Errorf("audit retry queue: %w", err)
		}
	}

	if a.consumer != nil && a.snapshots != nil {
		a.consumer.RegisterHandler(a.snapshots)
		if err := a.consumer.Start(); err != nil {
			a.shutdown()
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("snapshot consumer started",
			applogger.String("topic", a.snapshots.Topic()),
			applogger.Strings("brokers", a.cfg.Kafka.Brokers))
	}

	if err := a.http.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.http.Err():
	}
	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	// Last: cycles drained above may still have queued audit retries.
	if a.audit != nil {
		if err := a.audit.Stop(ctx); err != nil {
			a.log.Warn("audit retry queue stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
