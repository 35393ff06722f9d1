package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.RecordStore = (*Store)(nil)

// DefaultFile is the database file name inside the data directory.
const DefaultFile = "records.db"

// Store is a SQLite-backed record store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens the database at path, creating it and running
// migrations as needed. If path is empty, defaults to
// ~/.ctitrans/data/records.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".ctitrans", "data", DefaultFile)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: path,
		now:  time.Now,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_records.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// SaveRun stores or updates a run.
func (s *Store) SaveRun(ctx context.Context, run domain.StoredRun) error {
	if run.ID == "" {
		return fmt.Errorf("%w: run ID is required", domain.ErrInvalidInput)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			started_at = excluded.started_at
	`, run.ID, run.Source, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// SavePass stores or updates a pass of a run.
func (s *Store) SavePass(ctx context.Context, runID string, pass *domain.PassInfo) error {
	metadata, err := marshalMap(pass.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO passes (run_id, number, source, aggregate, packages, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, number) DO UPDATE SET
			source = excluded.source,
			aggregate = excluded.aggregate,
			packages = excluded.packages,
			metadata = excluded.metadata
	`, runID, pass.Number, pass.Source, boolToInt(pass.Aggregate), len(pass.Packages), metadata)
	if err != nil {
		return fmt.Errorf("saving pass: %w", err)
	}
	return nil
}

// SaveGroups stores the records of groups in one transaction.
func (s *Store) SaveGroups(ctx context.Context, runID string, pass int, groups []domain.RecordGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (run_id, pass, object_type, observable_id, indicator_id, fields, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, group := range groups {
		var observableID, indicatorID string
		if group.Observable != nil {
			observableID = group.Observable.ID
		}
		if group.Indicator != nil {
			indicatorID = group.Indicator.ID
		}
		metadata, err := marshalMap(group.Metadata)
		if err != nil {
			return err
		}
		for _, rec := range group.Records {
			fields, err := json.Marshal(rec.Flatten())
			if err != nil {
				return fmt.Errorf("marshalling record: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, runID, pass, group.ObjectType,
				nullString(observableID), nullString(indicatorID), string(fields), metadata, now); err != nil {
				return fmt.Errorf("saving record: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}
	return nil
}

// ListRuns returns the stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]domain.StoredRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, started_at FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StoredRun
	for rows.Next() {
		var run domain.StoredRun
		if err := rows.Scan(&run.ID, &run.Source, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRecords returns the records of a run in insertion order.
func (s *Store) ListRecords(ctx context.Context, runID, objectType string) ([]domain.StoredRecord, error) {
	query := `
		SELECT id, run_id, pass, object_type, observable_id, indicator_id, fields, metadata, created_at
		FROM records WHERE run_id = ?`
	args := []any{runID}
	if objectType != "" {
		query += ` AND object_type = ?`
		args = append(args, objectType)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []domain.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*domain.StoredRecord, error) {
	var (
		rec                       domain.StoredRecord
		observableID, indicatorID sql.NullString
		fields                    string
		metadata                  sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Pass, &rec.ObjectType,
		&observableID, &indicatorID, &fields, &metadata, &rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	rec.ObservableID = observableID.String
	rec.IndicatorID = indicatorID.String
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshalling fields: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}
	return &rec, nil
}

// marshalMap encodes m as JSON, or NULL when empty.
func marshalMap(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
