package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"content-engine"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres  Postgres
	Redis     Redis
	Rebalance Rebalance
	Dedup     Dedup
	Metrics   Metrics
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN renders the keyword/value connection string understood by pgx.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.MaxConns)
}

// Redis holds dedup state storage configuration.
type Redis struct {
	Addr     string        `env:"REDIS_ADDR,notEmpty"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	Prefix   string        `env:"REDIS_KEY_PREFIX" envDefault:"dedup"`
	StateTTL time.Duration `env:"DEDUP_STATE_TTL" envDefault:"0s"`
}

// Rebalance governs the pack rebalancing job.
type Rebalance struct {
	ContentType   string        `env:"REBALANCE_CONTENT_TYPE" envDefault:"quiz_set"`
	Strategy      string        `env:"REBALANCE_STRATEGY" envDefault:"pool"`
	TargetSize    int           `env:"REBALANCE_TARGET_SIZE" envDefault:"10"`
	BatchSize     int           `env:"REBALANCE_BATCH_SIZE" envDefault:"50"`
	Workers       int           `env:"REBALANCE_WORKERS" envDefault:"4"`
	GroupTimeout  time.Duration `env:"REBALANCE_GROUP_TIMEOUT" envDefault:"30s"`
	StrictArchive bool          `env:"REBALANCE_STRICT_ARCHIVE" envDefault:"false"`
	CleanupEmpty  bool          `env:"REBALANCE_CLEANUP_EMPTY" envDefault:"true"`
	Interval      time.Duration `env:"REBALANCE_INTERVAL" envDefault:"1h"`
}

// Dedup configures content selection.
type Dedup struct {
	Strategy       string        `env:"DEDUP_STRATEGY" envDefault:"smart_marker"`
	DefaultCount   int           `env:"DEDUP_DEFAULT_COUNT" envDefault:"10"`
	MaxCount       int           `env:"DEDUP_MAX_COUNT" envDefault:"50"`
	MaxSeen        int           `env:"DEDUP_MAX_SEEN" envDefault:"5000"`
	ReshuffleEvery time.Duration `env:"DEDUP_RESHUFFLE_EVERY" envDefault:"0s"`
	GoldenWindow   time.Duration `env:"DEDUP_GOLDEN_WINDOW" envDefault:"1h"`
}

// Metrics configures Prometheus exposition.
type Metrics struct {
	Namespace      string `env:"METRICS_NAMESPACE" envDefault:"jazzypop"`
	PushgatewayURL string `env:"METRICS_PUSHGATEWAY_URL" envDefault:""`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Rebalance.TargetSize <= 0 {
		return nil, fmt.Errorf("parse config: REBALANCE_TARGET_SIZE must be positive")
	}
	if cfg.Dedup.DefaultCount > cfg.Dedup.MaxCount {
		return nil, fmt.Errorf("parse config: DEDUP_DEFAULT_COUNT exceeds DEDUP_MAX_COUNT")
	}
	return cfg, nil
}
