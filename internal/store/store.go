package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/cloudmodeler/ardsync/internal/mapping"
	"github.com/cloudmodeler/ardsync/pkg/types"
)

// Store persists runs, run items, rule sets, platform configurations and the
// audit log in a single SQLite database. All access is single-row reads and
// updates keyed by id; no multi-row transactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, applies the schema and seeds
// the read-only template rule sets.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedTemplates(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			source_config_id TEXT NOT NULL DEFAULT '',
			target_config_id TEXT NOT NULL DEFAULT '',
			project_name TEXT NOT NULL,
			status TEXT NOT NULL,
			overwrite INTEGER NOT NULL DEFAULT 0,
			total_items INTEGER NOT NULL DEFAULT 0,
			created_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			epics_created INTEGER NOT NULL DEFAULT 0,
			epics_failed INTEGER NOT NULL DEFAULT 0,
			features_created INTEGER NOT NULL DEFAULT 0,
			features_failed INTEGER NOT NULL DEFAULT 0,
			stories_created INTEGER NOT NULL DEFAULT 0,
			stories_failed INTEGER NOT NULL DEFAULT 0,
			deleted_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			duration_millis INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sync_run_items (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			name TEXT NOT NULL,
			item_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			target_id INTEGER NOT NULL DEFAULT 0,
			target_url TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_items_run ON sync_run_items(run_id)`,
		`CREATE TABLE IF NOT EXISTS rule_sets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			scope TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			template_name TEXT NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0,
			rules TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS platform_configs (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			name TEXT NOT NULL,
			base_url TEXT NOT NULL,
			token TEXT NOT NULL,
			organization TEXT NOT NULL DEFAULT '',
			workspace_id TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// templateNames are the process templates a template-level rule set is
// seeded for. The seeded rules are the built-in defaults; administrators
// author project rule sets on top.
var templateNames = []string{"Agile", "Scrum", "Basic"}

func (s *Store) seedTemplates() error {
	rules, err := json.Marshal(mapping.BuiltinRuleSet().Rules)
	if err != nil {
		return fmt.Errorf("failed to encode template rules: %w", err)
	}
	now := time.Now().UTC()
	for _, name := range templateNames {
		_, err := s.db.Exec(
			`INSERT INTO rule_sets (id, name, scope, template_name, rules, created_at, updated_at)
			 SELECT ?, ?, ?, ?, ?, ?, ?
			 WHERE NOT EXISTS (SELECT 1 FROM rule_sets WHERE scope = ? AND template_name = ?)`,
			uuid.NewString(), name+" template", string(types.RuleSetScopeTemplate), name,
			string(rules), now, now,
			string(types.RuleSetScopeTemplate), name)
		if err != nil {
			return fmt.Errorf("failed to seed template rule set %s: %w", name, err)
		}
	}
	return nil
}

// --- runs ---

// CreateRun inserts the aggregate run record.
func (s *Store) CreateRun(ctx context.Context, run *types.SyncRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, source_config_id, target_config_id, project_name, status,
			overwrite, total_items, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SourceConfigID, run.TargetConfigID, run.ProjectName, string(run.Status),
		run.Overwrite, run.TotalItems, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// SetRunStatus updates a run's status.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status types.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ? WHERE id = ?`, string(status), runID)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// FinishRun writes a run's terminal state.
func (s *Store) FinishRun(ctx context.Context, runID string, status types.RunStatus, errorMessage string, finishedAt time.Time, durationMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, error_message = ?, finished_at = ?, duration_millis = ?
		 WHERE id = ?`,
		string(status), errorMessage, finishedAt, durationMillis, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// counterColumns whitelists the incrementable run columns.
var counterColumns = map[types.RunCounter]string{
	types.CounterCreated:         "created_count",
	types.CounterFailed:          "failed_count",
	types.CounterEpicsCreated:    "epics_created",
	types.CounterEpicsFailed:     "epics_failed",
	types.CounterFeaturesCreated: "features_created",
	types.CounterFeaturesFailed:  "features_failed",
	types.CounterStoriesCreated:  "stories_created",
	types.CounterStoriesFailed:   "stories_failed",
	types.CounterDeleted:         "deleted_count",
}

// IncrementCounter adds delta to one run counter. The read-current/add/
// write-back shape is deliberate: a run has exactly one writer.
func (s *Store) IncrementCounter(ctx context.Context, runID string, counter types.RunCounter, delta int) error {
	column, ok := counterColumns[counter]
	if !ok {
		return fmt.Errorf("unknown run counter %q", counter)
	}
	var current int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM sync_runs WHERE id = ?`, column), runID).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read counter %s: %w", column, err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sync_runs SET %s = ? WHERE id = ?`, column), current+delta, runID)
	if err != nil {
		return fmt.Errorf("failed to write counter %s: %w", column, err)
	}
	return nil
}

// CreateRunItem inserts one per-item outcome row.
func (s *Store) CreateRunItem(ctx context.Context, item *types.SyncRunItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_run_items (id, run_id, source_id, name, item_type, outcome,
			target_id, target_url, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.RunID, item.SourceID, item.Name, string(item.ItemType), string(item.Outcome),
		item.TargetID, item.TargetURL, item.ErrorMessage, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run item: %w", err)
	}
	return nil
}

// CreateAuditEntry inserts one audit log row.
func (s *Store) CreateAuditEntry(ctx context.Context, runID, operation, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, run_id, operation, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, operation, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*types.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_config_id, target_config_id, project_name, status, overwrite,
			total_items, created_count, failed_count, epics_created, epics_failed,
			features_created, features_failed, stories_created, stories_failed,
			deleted_count, error_message, started_at, finished_at, duration_millis
		 FROM sync_runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*types.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_config_id, target_config_id, project_name, status, overwrite,
			total_items, created_count, failed_count, epics_created, epics_failed,
			features_created, features_failed, stories_created, stories_failed,
			deleted_count, error_message, started_at, finished_at, duration_millis
		 FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*types.SyncRun, error) {
	var run types.SyncRun
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.SourceConfigID, &run.TargetConfigID, &run.ProjectName,
		&status, &run.Overwrite, &run.TotalItems, &run.CreatedCount, &run.FailedCount,
		&run.EpicsCreated, &run.EpicsFailed, &run.FeaturesCreated, &run.FeaturesFailed,
		&run.StoriesCreated, &run.StoriesFailed, &run.DeletedCount, &run.ErrorMessage,
		&run.StartedAt, &finishedAt, &run.DurationMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = types.RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListRunItems returns the per-item rows of one run in insertion order.
func (s *Store) ListRunItems(ctx context.Context, runID string) ([]*types.SyncRunItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source_id, name, item_type, outcome, target_id, target_url,
			error_message, created_at
		 FROM sync_run_items WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run items: %w", err)
	}
	defer rows.Close()

	var items []*types.SyncRunItem
	for rows.Next() {
		var item types.SyncRunItem
		var itemType, outcome string
		if err := rows.Scan(&item.ID, &item.RunID, &item.SourceID, &item.Name, &itemType,
			&outcome, &item.TargetID, &item.TargetURL, &item.ErrorMessage, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run item: %w", err)
		}
		item.ItemType = types.ItemType(itemType)
		item.Outcome = types.ItemOutcome(outcome)
		items = append(items, &item)
	}
	return items, rows.Err()
}
