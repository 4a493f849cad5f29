// Package supervisor owns the ordered startup, health gate, and
// signal-driven graceful shutdown of every long-lived component,
// generalized from this codebase's infrastructure/service/runner.go
// Run() shape (ordered init, http.Server lifecycle, signal-triggered
// shutdown with a bounded context) with the Marble/TEE-specific
// machinery stripped out.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/broadcast"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/cache"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/chain"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/ingestion"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/ranking"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/storage"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/watermark"
)

// Config wires every component whose lifecycle the Supervisor owns.
// Startup order follows spec.md §4.11: watermark → token registry →
// cache → persistence → dashboard service → broadcast hub → chain
// client → ingestion scheduler → periodic snapshot timer. The token
// registry and dashboard service have no explicit lifecycle (they are
// ready as soon as constructed), so only the components with a real
// Start/Stop are represented here. No periodic snapshot timer is
// started; the ranking scheduler is the only periodic job here.
type Config struct {
	Storage   *storage.Storage
	Cache     *cache.Store
	Watermark *watermark.Tracker
	Pool      *chain.Pool
	Scheduler *ingestion.Scheduler
	Writer    *ingestion.Writer
	Hub       *broadcast.Hub
	Ranking   *ranking.Scheduler

	HTTPServer *http.Server

	ShutdownTimeout time.Duration
	Logger          *logging.Logger
}

// Supervisor runs the startup sequence, blocks until a termination
// signal (or an explicit Stop call), then runs the shutdown sequence.
type Supervisor struct {
	cfg Config
	log *logging.Logger
}

// New builds a Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	return &Supervisor{cfg: cfg, log: cfg.Logger.WithComponent("supervisor")}
}

// SetHTTPServer attaches the HTTP server after construction, since the
// server's handler is typically built from a router that itself needs
// the Supervisor as its health checker — a small circular dependency
// broken by wiring the server in after New returns.
func (sv *Supervisor) SetHTTPServer(srv *http.Server) {
	sv.cfg.HTTPServer = srv
}

// Healthy implements httpapi.HealthChecker: the post-chain-client gate
// from spec.md §4.11 — persistence, cache-or-degraded, chain connected,
// broadcast running.
func (sv *Supervisor) Healthy() (bool, map[string]interface{}) {
	detail := map[string]interface{}{}

	dbOK := sv.cfg.Storage != nil && sv.cfg.Storage.DB().Ping() == nil
	detail["persistence"] = dbOK

	cacheHealth := sv.cfg.Cache.Health(context.Background())
	detail["cache"] = map[string]interface{}{"connected": cacheHealth.Connected, "degradedModeOK": true}

	chainOK := sv.cfg.Pool != nil && sv.cfg.Pool.HealthyCount() > 0
	detail["chain"] = chainOK

	broadcastOK := sv.cfg.Hub != nil
	detail["broadcast"] = broadcastOK

	ok := dbOK && chainOK && broadcastOK
	return ok, detail
}

// Run executes the full startup sequence, blocks until SIGINT/SIGTERM,
// then runs the shutdown sequence. It returns any fatal startup error;
// a clean shutdown returns nil.
func (sv *Supervisor) Run(ctx context.Context) error {
	if err := sv.startup(ctx); err != nil {
		sv.log.WithError(err).Error("startup failed, aborting")
		sv.shutdown(context.Background())
		return fmt.Errorf("supervisor: startup: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		sv.log.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
		sv.log.Info("context cancelled, shutting down")
	}

	sv.shutdown(context.Background())
	return nil
}

// startup runs the ordered component bring-up and the post-chain-client
// health gate. The watermark tracker, token registry, cache, storage,
// and dashboard service are all ready as soon as they are constructed
// (no Start call), so startup here only needs to bring up the
// components with real background work: the chain pool's health
// checker, the ingestion scheduler/writer, and the ranking scheduler.
func (sv *Supervisor) startup(ctx context.Context) error {
	sv.log.Info("starting chain pool health checks")
	sv.cfg.Pool.Start(ctx)

	if ok, detail := sv.Healthy(); !ok {
		return fmt.Errorf("health gate failed after chain client start: %+v", detail)
	}

	sv.log.Info("starting ingestion writer")
	sv.cfg.Writer.Start(ctx)

	sv.log.Info("starting ingestion scheduler")
	if err := sv.cfg.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion scheduler: %w", err)
	}

	if sv.cfg.Ranking != nil {
		sv.log.Info("starting periodic ranking recompute")
		if err := sv.cfg.Ranking.Start(ctx); err != nil {
			return fmt.Errorf("start ranking scheduler: %w", err)
		}
	}

	if sv.cfg.HTTPServer != nil {
		go func() {
			sv.log.WithFields(map[string]interface{}{"addr": sv.cfg.HTTPServer.Addr}).Info("http server listening")
			if err := sv.cfg.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sv.log.WithError(err).Error("http server error")
			}
		}()
	}

	sv.log.Info("startup complete")
	return nil
}

// shutdown runs the exact sequence spec.md §4.11 names: stop periodic
// timer → stop scheduler (stop polling, drain queue, persist watermark)
// → disconnect chain client → stop broadcast hub (notify + close) →
// disconnect persistence and cache.
func (sv *Supervisor) shutdown(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, sv.cfg.ShutdownTimeout)
	defer cancel()

	if sv.cfg.HTTPServer != nil {
		if err := sv.cfg.HTTPServer.Shutdown(ctx); err != nil {
			sv.log.WithError(err).Warn("http server shutdown error")
		}
	}

	if sv.cfg.Ranking != nil {
		sv.log.Info("stopping periodic ranking recompute")
		sv.cfg.Ranking.Stop()
	}

	sv.log.Info("stopping ingestion scheduler")
	if sv.cfg.Scheduler != nil {
		sv.cfg.Scheduler.Stop()
	}
	if sv.cfg.Writer != nil {
		sv.log.Info("draining write queue")
		sv.cfg.Writer.Flush(ctx)
		sv.cfg.Writer.Stop()
	}

	sv.log.Info("disconnecting chain client")
	if sv.cfg.Pool != nil {
		sv.cfg.Pool.Stop()
	}

	sv.log.Info("stopping broadcast hub")
	if sv.cfg.Hub != nil {
		sv.cfg.Hub.Close()
	}

	sv.log.Info("disconnecting persistence and cache")
	if sv.cfg.Storage != nil {
		if err := sv.cfg.Storage.Close(); err != nil {
			sv.log.WithError(err).Warn("storage close error")
		}
	}
	if sv.cfg.Cache != nil {
		if err := sv.cfg.Cache.Close(); err != nil {
			sv.log.WithError(err).Warn("cache close error")
		}
	}

	sv.log.Info("shutdown complete")
}
