// Command monitor is the ERC-20 transfer ingestion/analytics pipeline
// entrypoint: it loads configuration, wires every component in the
// startup order spec.md §4.11 names, and hands control to the
// Supervisor for health-gated startup and signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/broadcast"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/cache"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/chain"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/config"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/dashboard"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/httpapi"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/ingestion"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/metrics"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/ranking"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/stats"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/storage"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/supervisor"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/token"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/watermark"
)

const serviceVersion = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "monitor"})
	ctx := context.Background()

	// --- watermark (depends on storage, but the tracker itself is
	// constructed before any component reads through it) ---
	db, err := storage.Open(cfg.PostgresDSN())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}
	wmStore := watermark.NewPostgresStore(db.DB())
	wm := watermark.NewTracker(wmStore, cfg.ChainID)

	// --- token registry ---
	tokens, err := db.ListTokens(ctx)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Warn("no tokens configured in the tokens table; ingestion will decode nothing until tokens are added")
		tokens = []models.Token{}
	}
	registry := token.NewRegistry(tokens)

	// --- cache ---
	cacheStore := cache.New(cache.Config{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: "txmon",
	}, log)

	// --- dashboard service ---
	dash := dashboard.New(db, cacheStore, wm, log)

	// --- broadcast hub ---
	hub := broadcast.New(broadcast.Config{
		PingInterval: cfg.BroadcastPingInterval,
		SendBuffer:   cfg.BroadcastSendBuffer,
	}, log)

	// --- chain client (pool) ---
	pool, err := chain.NewPool(&chain.PoolConfig{
		Endpoints:           cfg.RPCEndpoints,
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  cfg.RPCTimeout,
		MaxConsecutiveFails: 3,
	})
	if err != nil {
		return fmt.Errorf("build chain pool: %w", err)
	}

	// --- ingestion scheduler + queue + writer ---
	queue := ingestion.NewQueue(cfg.QueueCapacity)
	scheduler := ingestion.NewScheduler(ingestion.SchedulerConfig{
		PollInterval:             cfg.PollInterval,
		BatchSize:                cfg.BatchSize,
		MaxBlocksPerPoll:         cfg.MaxBlocksPerPoll,
		MaxRetries:               cfg.MaxRetries,
		RetryBaseDelay:           cfg.RetryBaseDelay,
		RateLimitBackoff:         cfg.RateLimitBackoff,
		BlockSaveInterval:        cfg.BlockSaveInterval,
		CatchUpMaxGap:            cfg.CatchUpMaxGap,
		CatchUpMaxBlocks:         cfg.CatchUpMaxBlocks,
		CatchUpBatchSize:         cfg.CatchUpBatchSize,
		CatchUpBatchDelay:        cfg.CatchUpBatchDelay,
		IgnoreZeroValueTransfers: cfg.IgnoreZeroValueTransfers,
	}, pool, registry, wm, queue, log)

	statsEngine := stats.NewEngine(cfg.WhaleThresholdUSD)
	writer := ingestion.NewWriter(db.DB(), statsEngine, hub, queue, wm, cfg.BatchSize, cfg.ProcessingInterval, log)

	// --- ranking engine + periodic recompute ---
	rankEngine := ranking.NewEngine(db, log)
	rankPublisher := ranking.NewPublisher(cacheStore)
	rankScheduler := ranking.NewScheduler(rankEngine, rankPublisher, registry, cronSpecFor(cfg.RankingInterval), log)

	// --- metrics ---
	m := metrics.New("msq-tx-monitor", serviceVersion)

	sv := supervisor.New(supervisor.Config{
		Storage:         db,
		Cache:           cacheStore,
		Watermark:       wm,
		Pool:            pool,
		Scheduler:       scheduler,
		Writer:          writer,
		Hub:             hub,
		Ranking:         rankScheduler,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          log,
	})

	router := httpapi.New(httpapi.Config{
		Dashboard:      dash,
		Hub:            hub,
		Health:         sv,
		Metrics:        m,
		Logger:         log,
		RateLimitRPS:   cfg.APIRateLimit,
		RateLimitBurst: cfg.APIRateBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	sv.SetHTTPServer(httpServer)

	return sv.Run(ctx)
}

// cronSpecFor turns a recompute interval into a robfig/cron/v3
// "@every Nm" descriptor. The interval is truncated to whole minutes,
// and intervals below a minute round up to one minute.
func cronSpecFor(interval time.Duration) string {
	minutes := int(interval.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("@every %dm", minutes)
}
