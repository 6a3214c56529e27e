package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("db: run not found")

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is the catalog row of one stored run.
type Entry struct {
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	Controller   string    `json:"controller"`
	Plant        string    `json:"plant"`
	Steps        int       `json:"steps"`
	Period       int       `json:"period"`
	Horizon      int       `json:"horizon"`
	InitialState float64   `json:"initial_state"`
	FinalState   float64   `json:"final_state"`
	Fallbacks    int       `json:"fallbacks"`
	// Cost is nil when the run did not record a quadratic cost.
	Cost   *float64 `json:"cost,omitempty"`
	RunDir string   `json:"run_dir"`
}

// Catalog indexes run directories so they can be listed without walking
// the filesystem.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// DB returns the underlying database handle.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// Record inserts or replaces the entry for e.RunID.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return errors.New("db: empty run id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs(run_id, created_at, controller, plant, steps, period, horizon, initial_state, final_state, fallbacks, cost, run_dir)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.CreatedAt.UTC().Format(timeLayout), e.Controller, e.Plant, e.Steps, e.Period, e.Horizon,
		e.InitialState, e.FinalState, e.Fallbacks, nullableFloat(e.Cost), e.RunDir); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record run: %w", err)
	}
	return nil
}

const selectRuns = `SELECT run_id, created_at, controller, plant, steps, period, horizon, initial_state, final_state, fallbacks, cost, run_dir FROM runs`

// List returns entries newest first. A limit <= 0 returns all of them.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	query := selectRuns + ` ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return entries, nil
}

func (c *Catalog) Get(ctx context.Context, runID string) (Entry, error) {
	row := c.db.QueryRowContext(ctx, selectRuns+` WHERE run_id=?`, runID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return e, err
}

// Delete removes the entry; a missing run is not an error.
func (c *Catalog) Delete(ctx context.Context, runID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		created string
		cost    sql.NullFloat64
	)
	if err := s.Scan(&e.RunID, &created, &e.Controller, &e.Plant, &e.Steps, &e.Period, &e.Horizon,
		&e.InitialState, &e.FinalState, &e.Fallbacks, &cost, &e.RunDir); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	e.CreatedAt = ts
	if cost.Valid {
		v := cost.Float64
		e.Cost = &v
	}
	return e, nil
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
