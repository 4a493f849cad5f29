// Package config loads pipeline configuration from environment variables,
// following the DefaultConfig/LoadFromEnv/Validate pattern used across
// this codebase's services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the ingestion, statistics, cache, ranking,
// dashboard, and broadcast pipeline.
type Config struct {
	ChainID      string
	RPCEndpoints []string // primary first, remaining are backups
	RPCTimeout   time.Duration

	StartBlock      uint64
	Confirmations   uint64
	BatchSize       int
	PollInterval    time.Duration
	ProcessingInterval time.Duration
	RetryBaseDelay  time.Duration
	MaxRetries      int
	QueueCapacity   int

	IgnoreZeroValueTransfers  bool
	RequestDelay              time.Duration
	CatchUpBatchSize          int
	CatchUpBatchDelay         time.Duration
	CatchUpMaxGap             uint64
	CatchUpMaxBlocks          uint64
	MaxBlocksPerPoll          uint64
	RateLimitBackoff          time.Duration
	BlockSaveInterval         uint64
	EnableTxDetails           bool
	DisableIndividualTokenFallback bool

	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool

	WhaleThresholdUSD   float64
	DormancyThresholdHr int
	RankingInterval     time.Duration

	HTTPAddr        string
	APIRateLimit    float64
	APIRateBurst    int
	RPCRateLimit    float64
	RPCRateBurst    int

	BroadcastPingInterval time.Duration
	BroadcastSendBuffer   int

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with conservative, self-contained
// defaults suitable for local development against a public Polygon RPC.
func DefaultConfig() *Config {
	return &Config{
		ChainID:      "137",
		RPCEndpoints: []string{"https://polygon-rpc.com"},
		RPCTimeout:   10 * time.Second,

		StartBlock:         0,
		Confirmations:      12,
		BatchSize:          100,
		PollInterval:       5 * time.Second,
		ProcessingInterval: 2 * time.Second,
		RetryBaseDelay:     1 * time.Second,
		MaxRetries:         5,
		QueueCapacity:      1000,

		IgnoreZeroValueTransfers:       true,
		RequestDelay:                   0,
		CatchUpBatchSize:               100,
		CatchUpBatchDelay:              200 * time.Millisecond,
		CatchUpMaxGap:                  100000,
		CatchUpMaxBlocks:               10000,
		MaxBlocksPerPoll:               1000,
		RateLimitBackoff:               30 * time.Second,
		BlockSaveInterval:              10,
		EnableTxDetails:                false,
		DisableIndividualTokenFallback: false,

		PostgresPort:    5432,
		PostgresDB:      "tx_monitor",
		PostgresUser:    "postgres",
		PostgresSSLMode: "disable",

		RedisAddr:    "localhost:6379",
		RedisDB:      0,
		CacheEnabled: true,

		WhaleThresholdUSD:   100000,
		DormancyThresholdHr: 720,
		RankingInterval:     15 * time.Minute,

		HTTPAddr:     ":8080",
		APIRateLimit: 20,
		APIRateBurst: 40,
		RPCRateLimit: 10,
		RPCRateBurst: 20,

		BroadcastPingInterval: 30 * time.Second,
		BroadcastSendBuffer:   256,

		LogLevel:  "info",
		LogFormat: "json",

		ShutdownTimeout: 15 * time.Second,
	}
}

// LoadFromEnv builds a Config from defaults overridden by MONITOR_*
// environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("MONITOR_CHAIN_ID"); v != "" {
		cfg.ChainID = v
	}
	if v := os.Getenv("MONITOR_RPC_ENDPOINTS"); v != "" {
		cfg.RPCEndpoints = splitCSV(v)
	}
	if v := os.Getenv("MONITOR_RPC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RPCTimeout = d
		}
	}
	if v := os.Getenv("MONITOR_START_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.StartBlock = n
		}
	}
	if v := os.Getenv("MONITOR_CONFIRMATIONS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Confirmations = n
		}
	}
	if v := os.Getenv("MONITOR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("MONITOR_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("MONITOR_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetryBaseDelay = d
		}
	}
	if v := os.Getenv("MONITOR_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("MONITOR_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueCapacity = n
		}
	}
	if v := os.Getenv("MONITOR_PROCESSING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProcessingInterval = d
		}
	}
	if v := os.Getenv("MONITOR_IGNORE_ZERO_VALUE_TRANSFERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IgnoreZeroValueTransfers = b
		}
	}
	if v := os.Getenv("MONITOR_REQUEST_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestDelay = d
		}
	}
	if v := os.Getenv("MONITOR_CATCH_UP_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CatchUpBatchSize = n
		}
	}
	if v := os.Getenv("MONITOR_CATCH_UP_BATCH_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CatchUpBatchDelay = d
		}
	}
	if v := os.Getenv("MONITOR_CATCH_UP_MAX_GAP"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.CatchUpMaxGap = n
		}
	}
	if v := os.Getenv("MONITOR_CATCH_UP_MAX_BLOCKS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.CatchUpMaxBlocks = n
		}
	}
	if v := os.Getenv("MONITOR_MAX_BLOCKS_PER_POLL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MaxBlocksPerPoll = n
		}
	}
	if v := os.Getenv("MONITOR_RATE_LIMIT_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimitBackoff = d
		}
	}
	if v := os.Getenv("MONITOR_BLOCK_SAVE_INTERVAL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.BlockSaveInterval = n
		}
	}
	if v := os.Getenv("MONITOR_ENABLE_TX_DETAILS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableTxDetails = b
		}
	}
	if v := os.Getenv("MONITOR_DISABLE_INDIVIDUAL_TOKEN_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DisableIndividualTokenFallback = b
		}
	}

	if v := os.Getenv("MONITOR_POSTGRES_HOST"); v != "" {
		cfg.PostgresHost = v
	}
	if v := os.Getenv("MONITOR_POSTGRES_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PostgresPort = n
		}
	}
	if v := os.Getenv("MONITOR_POSTGRES_DB"); v != "" {
		cfg.PostgresDB = v
	}
	if v := os.Getenv("MONITOR_POSTGRES_USER"); v != "" {
		cfg.PostgresUser = v
	}
	if v := os.Getenv("MONITOR_POSTGRES_PASSWORD"); v != "" {
		cfg.PostgresPassword = v
	}
	if v := os.Getenv("MONITOR_POSTGRES_SSLMODE"); v != "" {
		cfg.PostgresSSLMode = v
	}

	if v := os.Getenv("MONITOR_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("MONITOR_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MONITOR_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("MONITOR_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CacheEnabled = b
		}
	}

	if v := os.Getenv("MONITOR_WHALE_THRESHOLD_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.WhaleThresholdUSD = f
		}
	}
	if v := os.Getenv("MONITOR_DORMANCY_THRESHOLD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DormancyThresholdHr = n
		}
	}
	if v := os.Getenv("MONITOR_RANKING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RankingInterval = d
		}
	}

	if v := os.Getenv("MONITOR_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MONITOR_API_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.APIRateLimit = f
		}
	}
	if v := os.Getenv("MONITOR_API_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIRateBurst = n
		}
	}
	if v := os.Getenv("MONITOR_RPC_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RPCRateLimit = f
		}
	}
	if v := os.Getenv("MONITOR_RPC_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCRateBurst = n
		}
	}

	if v := os.Getenv("MONITOR_BROADCAST_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BroadcastPingInterval = d
		}
	}
	if v := os.Getenv("MONITOR_BROADCAST_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BroadcastSendBuffer = n
		}
	}

	if v := os.Getenv("MONITOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MONITOR_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("MONITOR_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent and
// sufficient to start the pipeline.
func (c *Config) Validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("MONITOR_POSTGRES_HOST required")
	}
	if c.CacheEnabled && c.RedisAddr == "" {
		return fmt.Errorf("MONITOR_REDIS_ADDR required when cache is enabled")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// PostgresDSN builds a lib/pq-compatible connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
