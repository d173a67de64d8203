package db

import (
	"context"
	"path/filepath"
	"testing"

	"research/backend/internal/config"
)

func TestBuildDSNForLibsqlAddsToken(t *testing.T) {
	dsn, err := buildDSN("libsql://research.example.turso.io", "abc123")
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if dsn != "libsql://research.example.turso.io?authToken=abc123" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestBuildDSNKeepsExistingToken(t *testing.T) {
	dsn, err := buildDSN("libsql://research.example.turso.io?authToken=inline", "other")
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if dsn != "libsql://research.example.turso.io?authToken=inline" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestBuildDSNForFileURL(t *testing.T) {
	dsn, err := buildDSN("file:local.db", "ignored")
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if dsn != "file:local.db" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestBuildDSNRejectsEmpty(t *testing.T) {
	if _, err := buildDSN("  ", ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestDriverFor(t *testing.T) {
	if got := driverFor("file:runs.db"); got != "sqlite" {
		t.Fatalf("expected sqlite, got %s", got)
	}
	if got := driverFor("libsql://x.turso.io"); got != "libsql" {
		t.Fatalf("expected libsql, got %s", got)
	}
}

func TestOpenAndMigrateLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	database, err := Open(config.Config{DatabaseURL: "file:" + path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), database); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}

	var name string
	if err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'research_runs'`).Scan(&name); err != nil {
		t.Fatalf("expected research_runs table: %v", err)
	}
}
