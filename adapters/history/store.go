// Package history persists completed estimation runs in a local SQLite
// database so past totals can be listed, re-exported, and pruned.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"plancost/core/report"
	"plancost/internal/errors"
	"plancost/internal/logging"
)

// Config configures the run history store
type Config struct {
	// Path is the database file path
	Path string

	// WALMode enables write-ahead logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultConfig returns the default store configuration for a path
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// Entry is the summary row recorded for one estimation run
type Entry struct {
	RunID            string          `json:"run_id"`
	GeneratedAt      time.Time       `json:"generated_at"`
	PlanPath         string          `json:"plan_path"`
	Currency         string          `json:"currency"`
	Total            decimal.Decimal `json:"total_monthly_cost"`
	Resources        int             `json:"resources"`
	Unresolved       int             `json:"unresolved"`
	Recommendations  int             `json:"recommendations"`
	ProjectedSavings decimal.Decimal `json:"projected_savings"`
}

// Store is the SQLite-backed run history
type Store struct {
	db        *sql.DB
	logger    *zap.Logger
	closeOnce sync.Once

	insertStmt    *sql.Stmt
	listStmt      *sql.Stmt
	getStmt       *sql.Stmt
	pruneAgeStmt  *sql.Stmt
	pruneKeepStmt *sql.Stmt
}

// NewStore opens (or creates) the history database at cfg.Path
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New(errors.TypeConfig, "history database path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.Storage("failed to open history database", err)
	}

	s := &Store{
		db:     db,
		logger: logging.Named("history"),
	}
	if err := s.initialize(cfg); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("history store opened",
		zap.String("path", cfg.Path),
		zap.Bool("wal_mode", cfg.WALMode))
	return s, nil
}

// initialize applies pragmas, creates the schema, and verifies the
// schema version.
func (s *Store) initialize(cfg Config) error {
	if cfg.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return errors.Storage("failed to enable WAL mode", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		return errors.Storage("failed to set busy timeout", err)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Storage("failed to create history schema", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return errors.Storage("failed to record schema version", err)
	}

	var version int
	err := s.db.QueryRow(getSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return errors.Storage("failed to read schema version", err)
	}
	if version != SchemaVersion {
		return errors.Storage(
			fmt.Sprintf("history schema version mismatch: expected %d, got %d", SchemaVersion, version), nil)
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO runs (run_id, generated_at, plan_path, currency, total,
			resources, unresolved, recommendations, projected_savings, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Storage("failed to prepare insert statement", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT run_id, generated_at, plan_path, currency, total,
			resources, unresolved, recommendations, projected_savings
		FROM runs
		ORDER BY generated_at DESC, run_id DESC
		LIMIT ?
	`)
	if err != nil {
		return errors.Storage("failed to prepare list statement", err)
	}

	s.getStmt, err = s.db.Prepare(`SELECT report FROM runs WHERE run_id = ?`)
	if err != nil {
		return errors.Storage("failed to prepare get statement", err)
	}

	s.pruneAgeStmt, err = s.db.Prepare(`DELETE FROM runs WHERE generated_at < ?`)
	if err != nil {
		return errors.Storage("failed to prepare age prune statement", err)
	}

	s.pruneKeepStmt, err = s.db.Prepare(`
		DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY generated_at DESC, run_id DESC LIMIT ?
		)
	`)
	if err != nil {
		return errors.Storage("failed to prepare count prune statement", err)
	}

	return nil
}

// Record persists a completed run with its full report
func (s *Store) Record(ctx context.Context, rep *report.CostReport, planPath string) error {
	if rep == nil {
		return errors.New(errors.TypeInternal, "cannot record a nil report")
	}

	unresolved := 0
	for _, est := range rep.Estimates {
		if !est.Resolved() {
			unresolved++
		}
	}
	savings := decimal.Zero
	for _, rec := range rep.Recommendations {
		savings = savings.Add(rec.Savings)
	}

	raw, err := json.Marshal(rep)
	if err != nil {
		return errors.Storage("failed to encode report", err)
	}

	_, err = s.insertStmt.ExecContext(ctx,
		rep.RunID,
		rep.GeneratedAt.UTC(),
		planPath,
		rep.Currency,
		rep.Total.String(),
		len(rep.Estimates),
		unresolved,
		len(rep.Recommendations),
		savings.String(),
		string(raw),
	)
	if err != nil {
		return errors.Storage("failed to record run", err)
	}

	s.logger.Debug("recorded run",
		zap.String("run_id", rep.RunID),
		zap.String("total", rep.Total.String()))
	return nil
}

// List returns the most recent runs, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.listStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, errors.Storage("failed to list runs", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			total, saving string
		)
		if err := rows.Scan(&e.RunID, &e.GeneratedAt, &e.PlanPath, &e.Currency, &total,
			&e.Resources, &e.Unresolved, &e.Recommendations, &saving); err != nil {
			return nil, errors.Storage("failed to scan run row", err)
		}
		if e.Total, err = decimal.NewFromString(total); err != nil {
			return nil, errors.Storage(fmt.Sprintf("malformed total %q for run %s", total, e.RunID), err)
		}
		if e.ProjectedSavings, err = decimal.NewFromString(saving); err != nil {
			return nil, errors.Storage(fmt.Sprintf("malformed savings %q for run %s", saving, e.RunID), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("failed to iterate run rows", err)
	}
	return entries, nil
}

// Get returns the full stored report for a run id
func (s *Store) Get(ctx context.Context, runID string) (*report.CostReport, error) {
	var raw string
	err := s.getStmt.QueryRowContext(ctx, runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run", runID)
	}
	if err != nil {
		return nil, errors.Storage("failed to load run", err)
	}

	var rep report.CostReport
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return nil, errors.Storage(fmt.Sprintf("malformed stored report for run %s", runID), err)
	}
	return &rep, nil
}

// PruneOlderThan deletes runs generated before the cutoff and returns
// the deleted count.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.pruneAgeStmt.ExecContext(ctx, cutoff.UTC())
	if err != nil {
		return 0, errors.Storage("failed to prune runs by age", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Storage("failed to count pruned runs", err)
	}
	return deleted, nil
}

// PruneToCount keeps only the newest keep runs and returns the deleted
// count.
func (s *Store) PruneToCount(ctx context.Context, keep int64) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.pruneKeepStmt.ExecContext(ctx, keep)
	if err != nil {
		return 0, errors.Storage("failed to prune runs by count", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Storage("failed to count pruned runs", err)
	}
	return deleted, nil
}

// Close releases the prepared statements and the database handle.
// Close is idempotent.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.insertStmt, s.listStmt, s.getStmt, s.pruneAgeStmt, s.pruneKeepStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})
	return closeErr
}
