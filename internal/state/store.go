// Package state persists the cross-instance restore workflow's progress so
// an interrupted run resumes from the phase it reached instead of forcing
// a manual re-run from the start. Phases advance strictly forward:
// PendingDelete → Deleted → CooldownElapsed → Restoring → Online.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// Phase is one durable step of the restore workflow.
type Phase string

const (
	PhasePendingDelete   Phase = "PendingDelete"
	PhaseDeleted         Phase = "Deleted"
	PhaseCooldownElapsed Phase = "CooldownElapsed"
	PhaseRestoring       Phase = "Restoring"
	PhaseOnline          Phase = "Online"
)

// Terminal reports whether a phase ends the workflow.
func (p Phase) Terminal() bool {
	return p == PhaseOnline
}

// Run is one recorded workflow execution.
type Run struct {
	ID        string    `db:"id"`
	TargetDB  string    `db:"target_db"`
	Phase     Phase     `db:"phase"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ErrNoRun is returned when no resumable run exists for a target database.
var ErrNoRun = errors.New("state: no run found")

// Store is the sqlite-backed run store.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	target_db  TEXT NOT NULL,
	phase      TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// Open creates or opens the run store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: creating directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: opening %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a new run for a target database in the given phase and
// returns its ID.
func (s *Store) Begin(ctx context.Context, targetDB string, phase Phase, detail string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, target_db, phase, detail, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, targetDB, string(phase), detail, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("state: recording run for %s: %w", targetDB, err)
	}
	return id, nil
}

// Advance moves a run to a new phase.
func (s *Store) Advance(ctx context.Context, id string, phase Phase, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET phase = $1, detail = $2, updated_at = $3 WHERE id = $4`,
		string(phase), detail, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("state: advancing run %s to %s: %w", id, phase, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: advancing run %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("state: advancing run %s: %w", id, ErrNoRun)
	}
	return nil
}

// Current returns the most recent non-terminal run for a target database,
// or ErrNoRun when every recorded run has finished.
func (s *Store) Current(ctx context.Context, targetDB string) (Run, error) {
	var run Run
	err := s.db.QueryRowxContext(ctx,
		`SELECT id, target_db, phase, detail, created_at, updated_at
		 FROM runs
		 WHERE target_db = $1 AND phase != $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		targetDB, string(PhaseOnline),
	).StructScan(&run)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNoRun
		}
		return Run{}, fmt.Errorf("state: looking up run for %s: %w", targetDB, err)
	}
	return run, nil
}

// List returns all recorded runs, newest first.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, target_db, phase, detail, created_at, updated_at
		 FROM runs
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("state: listing runs: %w", err)
	}
	return runs, nil
}
