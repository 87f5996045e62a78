// SQLite Persister.
//
// Information Hiding:
// - SQLite connection management hidden behind Persister
// - Schema details encapsulated
// - Record stored as one JSON document row, replaced in a transaction

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const recordName = "conversations"

// SqlitePersister stores the record in a SQLite database file.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqlitePersister struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqlitePersister, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlitePersister(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqlitePersister, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return newSqlitePersister(db)
}

func newSqlitePersister(db *sql.DB) (*SqlitePersister, error) {
	p := &SqlitePersister{db: db}
	if err := p.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

// Close closes the database connection.
func (p *SqlitePersister) Close() error {
	return p.db.Close()
}

func (p *SqlitePersister) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load reads the record row.
func (p *SqlitePersister) Load(ctx context.Context) (Record, error) {
	var body string
	err := p.db.QueryRowContext(ctx,
		"SELECT body FROM records WHERE name = ?", recordName,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if record == nil {
		record = Record{}
	}
	return record, nil
}

// Save replaces the record row in a single transaction.
func (p *SqlitePersister) Save(ctx context.Context, record Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (name, body, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		recordName, string(body))
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Quarantine renames the record row to conversations.corrupt-<suffix>.
func (p *SqlitePersister) Quarantine(ctx context.Context, suffix string) (string, error) {
	dest := recordName + ".corrupt-" + suffix
	res, err := p.db.ExecContext(ctx,
		"UPDATE records SET name = ? WHERE name = ?", dest, recordName)
	if err != nil {
		return "", fmt.Errorf("failed to move record aside: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", ErrNoRecord
	}
	return "records/" + dest, nil
}

// Verify SqlitePersister implements Persister and Quarantiner
var (
	_ Persister   = (*SqlitePersister)(nil)
	_ Quarantiner = (*SqlitePersister)(nil)
)
