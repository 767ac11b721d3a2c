// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// TablePrefix names every generation table.
const TablePrefix = "records_"

// maxQueryParams keeps IN lists under SQLite's variable limit.
const maxQueryParams = 500

var tableNamePattern = regexp.MustCompile(`^records_[0-9a-f]{32}$`)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// The generations table holds at most one row with active = 1; flipping it is the
// durable commit point of an index swap.
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL UNIQUE,
		record_count INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		activated_at TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_generations_active ON generations(active) WHERE active = 1;
	`
	_, err := db.Exec(schema)
	return err
}

// TableName returns the record table for a generation id.
func TableName(id string) string {
	return TablePrefix + strings.ReplaceAll(id, "-", "")
}

func checkTable(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid generation table name: %q", table)
	}
	return nil
}

// CreateGeneration creates an empty, inactive record table for id.
func (s *SQLiteStorage) CreateGeneration(ctx context.Context, id string) (*Generation, error) {
	gen := &Generation{ID: id, Table: TableName(id)}
	if err := checkTable(gen.Table); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id INTEGER PRIMARY KEY,
			date TEXT NOT NULL,
			text TEXT NOT NULL
		)`, gen.Table)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", gen.Table, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO generations (id, table_name, created_at) VALUES (?, ?, ?)`,
		gen.ID, gen.Table, time.Now(),
	); err != nil {
		return nil, fmt.Errorf("failed to register generation: %w", err)
	}
	return gen, tx.Commit()
}

// InsertRecords writes records into the generation table in one transaction.
// A later record with the same id replaces an earlier one. Returns the number of
// distinct records stored.
func (s *SQLiteStorage) InsertRecords(ctx context.Context, gen *Generation, records []models.Record) (int, error) {
	if err := checkTable(gen.Table); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (id, date, text) VALUES (?, ?, ?)`, gen.Table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Date, r.Text); err != nil {
			return 0, fmt.Errorf("failed to insert record %d: %w", r.ID, err)
		}
	}
	var count int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, gen.Table)).Scan(&count); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE generations SET record_count = ? WHERE id = ?`, count, gen.ID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	gen.RecordCount = count
	return count, nil
}

// ActivateGeneration marks gen as the only active generation.
func (s *SQLiteStorage) ActivateGeneration(ctx context.Context, gen *Generation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE generations SET active = 0 WHERE active = 1`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE generations SET active = 1, activated_at = ? WHERE id = ?`, time.Now(), gen.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("generation not found: %s", gen.ID)
	}
	return tx.Commit()
}

// ActiveGeneration returns the active generation, or nil if none has been activated.
func (s *SQLiteStorage) ActiveGeneration(ctx context.Context) (*Generation, error) {
	var gen Generation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, table_name, record_count FROM generations WHERE active = 1`,
	).Scan(&gen.ID, &gen.Table, &gen.RecordCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// DropGeneration drops the generation table and forgets the generation.
func (s *SQLiteStorage) DropGeneration(ctx context.Context, gen *Generation) error {
	if err := checkTable(gen.Table); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, gen.Table)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE table_name = ?`, gen.Table); err != nil {
		return err
	}
	return tx.Commit()
}

// ListGenerationTables returns every record table present in the database.
func (s *SQLiteStorage) ListGenerationTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'records\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if checkTable(name) == nil {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

// GetRecords returns the records with the given ids, keyed by id. Missing ids are absent.
func (s *SQLiteStorage) GetRecords(ctx context.Context, gen *Generation, ids []int64) (map[int64]*models.Record, error) {
	if err := checkTable(gen.Table); err != nil {
		return nil, err
	}
	out := make(map[int64]*models.Record, len(ids))
	for start := 0; start < len(ids); start += maxQueryParams {
		end := start + maxQueryParams
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT id, date, text FROM %s WHERE id IN (%s)`, gen.Table, placeholders), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r models.Record
			if err := rows.Scan(&r.ID, &r.Date, &r.Text); err != nil {
				rows.Close()
				return nil, err
			}
			out[r.ID] = &r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountRecords returns the number of rows in the generation table.
func (s *SQLiteStorage) CountRecords(ctx context.Context, gen *Generation) (int, error) {
	if err := checkTable(gen.Table); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, gen.Table)).Scan(&count)
	return count, err
}

// TableExists reports whether table is present.
func (s *SQLiteStorage) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	return n > 0, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
