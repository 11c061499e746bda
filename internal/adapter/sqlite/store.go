// Package sqlite persists incident tables in a single SQLite file.
//
// Every table write is a full replacement performed in one transaction:
// the old table is dropped, recreated from the inferred column layout, and
// refilled. A failure anywhere rolls back to the previous generation, so a
// table is either fully replaced or untouched.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/rnli-heatmap/internal/domain"

	// Registers the cgo-free "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

const registryTable = "table_groups"

var (
	// ErrTableNotFound reports a read from a table that has never been written.
	ErrTableNotFound = errors.New("table not found")
	// ErrTypeMismatch reports a value that cannot be stored in its column.
	ErrTypeMismatch = errors.New("value does not match column type")
	// ErrReservedTable reports an attempt to overwrite the registry.
	ErrReservedTable = errors.New("reserved table name")
)

// Store wraps the SQLite handle.
// It implements pipeline.TableWriter and pipeline.CoordinateSource.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// TableInfo is one registry entry describing the current generation of a table.
type TableInfo struct {
	Group    string
	Name     string
	RunID    string
	RowCount int64
	LoadedAt time.Time
}

// Rows is a full table read in insertion order.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Open creates or opens the store at path, creating parent directories as
// needed, and ensures the table registry exists.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return open(ctx, path, logger)
}

// OpenExisting opens a store that must already exist on disk. Readers use it
// so a wrong path fails instead of silently creating an empty database.
func OpenExisting(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return open(ctx, path, logger)
}

func open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect store: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.applyPragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.ensureRegistry(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("store opened", "path", path)
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyPragmas(ctx context.Context) error {
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("apply journal_mode: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) ensureRegistry(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+registryTable+` (
  group_name TEXT    NOT NULL,
  table_name TEXT    NOT NULL,
  run_id     TEXT    NOT NULL,
  row_count  INTEGER NOT NULL,
  loaded_at  TEXT    NOT NULL,
  PRIMARY KEY (group_name, table_name)
)`)
	if err != nil {
		return fmt.Errorf("create table registry: %w", err)
	}
	return nil
}

// ReplaceTable drops and recreates t.Name with t.Columns, inserts every
// record in order, and records the generation under group, all in one
// transaction.
func (s *Store) ReplaceTable(ctx context.Context, group, runID string, t domain.Table) (err error) {
	if strings.EqualFold(t.Name, registryTable) || strings.HasPrefix(strings.ToLower(t.Name), "sqlite_") {
		return fmt.Errorf("%w: %s", ErrReservedTable, t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("replace table %s: no columns", t.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", t.Name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(t.Name)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	if _, err = tx.ExecContext(ctx, createTableSQL(t)); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(t))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", t.Name, err)
	}
	defer stmt.Close()

	for i, rec := range t.Records {
		args, convErr := rowValues(t.Columns, rec)
		if convErr != nil {
			err = fmt.Errorf("table %s row %d: %w", t.Name, i, convErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s row %d: %w", t.Name, i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO `+registryTable+` (group_name, table_name, run_id, row_count, loaded_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (group_name, table_name) DO UPDATE SET
  run_id = excluded.run_id,
  row_count = excluded.row_count,
  loaded_at = excluded.loaded_at`,
		group, t.Name, runID, len(t.Records), domain.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("register table %s: %w", t.Name, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", t.Name, err)
	}

	s.logger.Debug("table replaced", "group", group, "table", t.Name, "rows", len(t.Records), "columns", len(t.Columns))
	return nil
}

// LoadCoordinates reads the Latitude and Longitude columns of every row in
// table. Row order is whatever the engine returns.
func (s *Store) LoadCoordinates(ctx context.Context, table string) (domain.CoordinateList, error) {
	if err := s.requireTable(ctx, table); err != nil {
		return domain.CoordinateList{}, err
	}

	q := fmt.Sprintf("SELECT %s, %s FROM %s",
		quoteIdent(domain.FieldLatitude), quoteIdent(domain.FieldLongitude), quoteIdent(table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return domain.CoordinateList{}, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	coords := domain.CoordinateList{Lats: []float64{}, Lons: []float64{}}
	for i := 0; rows.Next(); i++ {
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&lat, &lon); err != nil {
			return domain.CoordinateList{}, fmt.Errorf("%s row %d: %w", table, i, err)
		}
		if !lat.Valid || !lon.Valid {
			return domain.CoordinateList{}, fmt.Errorf("%s row %d: null coordinate", table, i)
		}
		coords.Append(lat.Float64, lon.Float64)
	}
	if err := rows.Err(); err != nil {
		return domain.CoordinateList{}, fmt.Errorf("scan %s: %w", table, err)
	}
	return coords, nil
}

// Tables lists the registry entries for a group ordered by table name.
func (s *Store) Tables(ctx context.Context, group string) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name, run_id, row_count, loaded_at
FROM `+registryTable+`
WHERE group_name = ?
ORDER BY table_name`, group)
	if err != nil {
		return nil, fmt.Errorf("query table registry: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		info := TableInfo{Group: group}
		var loadedAt string
		if err := rows.Scan(&info.Name, &info.RunID, &info.RowCount, &loadedAt); err != nil {
			return nil, fmt.Errorf("scan table registry: %w", err)
		}
		info.LoadedAt, err = time.Parse(time.RFC3339Nano, loadedAt)
		if err != nil {
			return nil, fmt.Errorf("parse loaded_at for %s: %w", info.Name, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ReadRows reads a whole table in insertion order.
func (s *Store) ReadRows(ctx context.Context, table string) (Rows, error) {
	if err := s.requireTable(ctx, table); err != nil {
		return Rows{}, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" ORDER BY rowid")
	if err != nil {
		return Rows{}, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("columns of %s: %w", table, err)
	}

	out := Rows{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, fmt.Errorf("scan %s: %w", table, err)
		}
		out.Values = append(out.Values, vals)
	}
	return out, rows.Err()
}

func (s *Store) requireTable(ctx context.Context, table string) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table).Scan(&n)
	if err != nil {
		return fmt.Errorf("look up table %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s in %s", ErrTableNotFound, table, s.path)
	}
	return nil
}
