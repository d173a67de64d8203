package runlog

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"research/backend/internal/db"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database)
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	created, err := store.Create(context.Background(), Run{
		Objective:         "python testing best practices",
		Status:            "degraded",
		Warnings:          []string{"relevance analysis used keyword heuristic"},
		NumQueries:        2,
		DocumentsFound:    7,
		DocumentsSelected: 3,
		Provider:          "google",
		Model:             "gemini-2.0-flash",
		StartedAt:         started,
		FinishedAt:        started.Add(1500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Objective != "python testing best practices" || got.Status != "degraded" {
		t.Fatalf("unexpected run: %+v", got)
	}
	if len(got.Warnings) != 1 || got.DocumentsFound != 7 || got.DocumentsSelected != 3 || got.NumQueries != 2 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.FinishedAt.Sub(got.StartedAt) != 1500*time.Millisecond {
		t.Fatalf("unexpected timestamps: %v %v", got.StartedAt, got.FinishedAt)
	}
}

func TestCreateDefaultsTimestampsAndWarnings(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	created, err := store.Create(context.Background(), Run{Objective: "o", Status: "failed", FailedStage: "search", Error: "boom"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Warnings == nil || len(got.Warnings) != 0 {
		t.Fatalf("expected empty warnings, got %v", got.Warnings)
	}
	if !got.StartedAt.Equal(fixed) || !got.FinishedAt.Equal(fixed) {
		t.Fatalf("expected defaulted timestamps, got %v %v", got.StartedAt, got.FinishedAt)
	}
	if got.FailedStage != "search" || got.Error != "boom" {
		t.Fatalf("unexpected failure fields: %+v", got)
	}
}

func TestCreateRejectsUnknownStatus(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create(context.Background(), Run{Objective: "o", Status: "weird"}); err == nil {
		t.Fatal("expected status check to fail")
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
