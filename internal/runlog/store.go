// Package runlog persists a summary of each research run. Raw context is
// never stored; the objective is kept because it is echoed in the result.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("research run not found")

type Run struct {
	ID                string    `json:"id"`
	Objective         string    `json:"objective"`
	Status            string    `json:"status"`
	FailedStage       string    `json:"failed_stage,omitempty"`
	Error             string    `json:"error,omitempty"`
	Warnings          []string  `json:"warnings"`
	NumQueries        int       `json:"num_queries"`
	DocumentsFound    int       `json:"documents_found"`
	DocumentsSelected int       `json:"documents_selected"`
	Provider          string    `json:"provider,omitempty"`
	Model             string    `json:"model,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) Store {
	return Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores run under a fresh id and returns the stored copy.
func (s Store) Create(ctx context.Context, run Run) (Run, error) {
	run.ID = uuid.NewString()
	if run.Warnings == nil {
		run.Warnings = []string{}
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()

	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return Run{}, fmt.Errorf("encode warnings: %w", err)
	}

	query := `
INSERT INTO research_runs (
  id, objective, status, failed_stage, error, warnings,
  num_queries, documents_found, documents_selected, provider, model,
  started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Objective,
		run.Status,
		run.FailedStage,
		run.Error,
		string(warnings),
		run.NumQueries,
		run.DocumentsFound,
		run.DocumentsSelected,
		run.Provider,
		run.Model,
		run.StartedAt.Format(time.RFC3339Nano),
		run.FinishedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Run{}, fmt.Errorf("create research run: %w", err)
	}

	return run, nil
}

func (s Store) Get(ctx context.Context, id string) (Run, error) {
	query := `
SELECT id, objective, status, failed_stage, error, warnings,
  num_queries, documents_found, documents_selected, provider, model,
  started_at, finished_at
FROM research_runs
WHERE id = ?;
`
	var (
		out        Run
		warnings   string
		startedAt  string
		finishedAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&out.ID,
		&out.Objective,
		&out.Status,
		&out.FailedStage,
		&out.Error,
		&warnings,
		&out.NumQueries,
		&out.DocumentsFound,
		&out.DocumentsSelected,
		&out.Provider,
		&out.Model,
		&startedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get research run: %w", err)
	}

	if err := json.Unmarshal([]byte(warnings), &out.Warnings); err != nil {
		return Run{}, fmt.Errorf("decode warnings: %w", err)
	}
	if out.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if out.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return out, nil
}
