// Package seed parses seed flags and loads demo users and sessions into the
// local buddy database.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	entrypoint "github.com/louisbranch/safezone/internal/platform/cmd"
	"github.com/louisbranch/safezone/internal/platform/logging"
	buddydomain "github.com/louisbranch/safezone/internal/services/buddy/domain"
	buddysqlite "github.com/louisbranch/safezone/internal/services/buddy/storage/sqlite"
	pointsdomain "github.com/louisbranch/safezone/internal/services/points/domain"
	"go.uber.org/zap"
)

// Config holds seed command configuration.
type Config struct {
	DBPath        string `env:"SAFEZONE_BUDDY_DB_PATH" envDefault:"data/buddy.db"`
	WelcomePoints int    `env:"SAFEZONE_SEED_WELCOME_POINTS" envDefault:"10"`
	DemoSession   bool   `env:"SAFEZONE_SEED_DEMO_SESSION" envDefault:"true"`
	LogLevel      string `env:"SAFEZONE_LOG_LEVEL" envDefault:"info"`
}

// DemoUser is one directory record written by the seed.
type DemoUser struct {
	ID          string
	DisplayName string
}

// DemoUsers lists the users every seeded database starts with.
var DemoUsers = []DemoUser{
	{ID: "ana", DisplayName: "Ana Cruz"},
	{ID: "ben", DisplayName: "Ben Reyes"},
	{ID: "cara", DisplayName: "Cara Santos"},
	{ID: "dan", DisplayName: "Dante Lim"},
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.IntVar(&cfg.WelcomePoints, "welcome-points", cfg.WelcomePoints, "Points granted to each newly registered demo user")
	fs.BoolVar(&cfg.DemoSession, "demo-session", cfg.DemoSession, "Start a demo buddy session between ana and ben")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return Config{}, errors.New("db path is required")
	}
	if cfg.WelcomePoints < 0 {
		return Config{}, errors.New("welcome points must not be negative")
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logging.Service(logger, entrypoint.ServiceSeed)

	store, err := buddysqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close store: %v\n", err)
		}
	}()

	logf := logging.Printf(logger)
	points := pointsdomain.NewService(store.Points(), pointsdomain.DefaultLadder(), nil, nil)
	for _, user := range DemoUsers {
		created, err := seedUser(ctx, store, points, user, cfg.WelcomePoints)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
		if created {
			fmt.Fprintf(out, "registered %s (%s)\n", user.ID, user.DisplayName)
		} else {
			fmt.Fprintf(out, "kept %s (%s)\n", user.ID, user.DisplayName)
		}
		logf("seeded user %s", user.ID)
	}

	if !cfg.DemoSession {
		return nil
	}
	sessions := buddydomain.NewService(store, store.Points(), buddydomain.WithLogger(logger))
	result, err := sessions.CreateSession(ctx, buddydomain.CreateSessionInput{
		InitiatorID:            "ana",
		BuddyID:                "ben",
		CheckInIntervalMinutes: 30,
		Location:               "Plaza Park",
		Destination:            "Home",
	})
	switch {
	case errors.Is(err, buddydomain.ErrActiveSessionExists):
		fmt.Fprintln(out, "demo session already active for ana and ben")
		return nil
	case err != nil:
		return fmt.Errorf("seed demo session: %w", err)
	}
	fmt.Fprintf(out, "started demo session %s\n", result.Session.ID)
	logger.Info("seeded demo session", zap.String("session_id", result.Session.ID))
	return nil
}

// seedUser registers user once; reruns keep existing balances untouched.
func seedUser(ctx context.Context, store *buddysqlite.Store, points *pointsdomain.Service, user DemoUser, welcomePoints int) (bool, error) {
	_, err := store.Points().GetUser(ctx, user.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pointsdomain.ErrUserNotFound) {
		return false, err
	}
	if _, err := points.RegisterUser(ctx, user.ID, user.DisplayName, welcomePoints); err != nil {
		return false, err
	}
	return true, nil
}
