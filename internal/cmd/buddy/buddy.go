// Package buddy parses buddy service flags and launches the service.
package buddy

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/safezone/internal/platform/cmd"
	"github.com/louisbranch/safezone/internal/platform/logging"
	server "github.com/louisbranch/safezone/internal/services/buddy/app"
)

// Config holds buddy command configuration.
type Config struct {
	Port              int           `env:"SAFEZONE_BUDDY_PORT" envDefault:"8095"`
	DBPath            string        `env:"SAFEZONE_BUDDY_DB_PATH" envDefault:"data/buddy.db"`
	SweepInterval     time.Duration `env:"SAFEZONE_SWEEP_INTERVAL" envDefault:"1m"`
	CheckInPoints     int           `env:"SAFEZONE_CHECK_IN_POINTS" envDefault:"5"`
	CompletionPoints  int           `env:"SAFEZONE_COMPLETION_POINTS" envDefault:"25"`
	Locale            string        `env:"SAFEZONE_LOCALE" envDefault:"en"`
	RedisAddr         string        `env:"SAFEZONE_REDIS_ADDR"`
	RedisLockPrefix   string        `env:"SAFEZONE_REDIS_LOCK_PREFIX" envDefault:"safezone:lock:"`
	NATSURL           string        `env:"SAFEZONE_NATS_URL"`
	NATSSubjectPrefix string        `env:"SAFEZONE_NATS_SUBJECT_PREFIX" envDefault:"safezone.notifications"`
	LogLevel          string        `env:"SAFEZONE_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The buddy gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Missed check-in sweep interval (0 disables)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for shared session locks")
	fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS URL for realtime notifications")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.CheckInPoints < 0 || cfg.CompletionPoints < 0 {
		return Config{}, fmt.Errorf("point awards must not be negative")
	}
	if cfg.SweepInterval < 0 {
		return Config{}, fmt.Errorf("sweep interval must not be negative")
	}
	return cfg, nil
}

// Run starts the buddy gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logging.Service(logger, entrypoint.ServiceBuddy)

	options := entrypoint.RunOptions{Logger: logger}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceBuddy, options, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			DBPath:            cfg.DBPath,
			SweepInterval:     cfg.SweepInterval,
			CheckInPoints:     cfg.CheckInPoints,
			CompletionPoints:  cfg.CompletionPoints,
			Locale:            cfg.Locale,
			RedisAddr:         cfg.RedisAddr,
			RedisLockPrefix:   cfg.RedisLockPrefix,
			NATSURL:           cfg.NATSURL,
			NATSSubjectPrefix: cfg.NATSSubjectPrefix,
			Logger:            logger,
		})
	})
}
