package seed

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	buddysqlite "github.com/louisbranch/safezone/internal/services/buddy/storage/sqlite"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/buddy.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.WelcomePoints != 10 || !cfg.DemoSession {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("SAFEZONE_BUDDY_DB_PATH", "env.db")
	t.Setenv("SAFEZONE_SEED_WELCOME_POINTS", "3")

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db-path", "flag.db", "-demo-session=false"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "flag.db" || cfg.WelcomePoints != 3 || cfg.DemoSession {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseConfigRejectsNegativeWelcomePoints(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-welcome-points", "-1"}); err == nil {
		t.Fatal("expected error for negative welcome points")
	}
}

func TestRunSeedsUsersAndDemoSessionOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed", "buddy.db")
	cfg := Config{DBPath: path, WelcomePoints: 10, DemoSession: true, LogLevel: "error"}
	ctx := context.Background()

	var first bytes.Buffer
	if err := Run(ctx, cfg, &first, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !strings.Contains(first.String(), "registered dan (Dante Lim)") {
		t.Fatalf("missing registration line: %q", first.String())
	}
	if !strings.Contains(first.String(), "started demo session") {
		t.Fatalf("missing session line: %q", first.String())
	}

	var second bytes.Buffer
	if err := Run(ctx, cfg, &second, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(second.String(), "kept ana (Ana Cruz)") {
		t.Fatalf("expected existing users kept: %q", second.String())
	}
	if !strings.Contains(second.String(), "demo session already active") {
		t.Fatalf("expected active session notice: %q", second.String())
	}

	store, err := buddysqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	user, err := store.Points().GetUser(ctx, "ben")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Points != 10 {
		t.Fatalf("expected welcome bonus paid once, got %d", user.Points)
	}
	session, found, err := store.FindActiveSessionForPair(ctx, "ana", "ben")
	if err != nil || !found {
		t.Fatalf("find active session: found=%v err=%v", found, err)
	}
	if session.Location != "Plaza Park" {
		t.Fatalf("unexpected session: %+v", session)
	}
}
