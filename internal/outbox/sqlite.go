package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/pennypincher/pennypincher/internal/common"
	"github.com/pennypincher/pennypincher/internal/model"
)

// Store is the durable persistence layer behind the queue. Each
// operation is independently transactional; no handle state is shared
// across calls beyond the open database.
type Store interface {
	Add(ctx context.Context, m *model.QueuedMutation) error
	Get(ctx context.Context, id string) (*model.QueuedMutation, error)
	List(ctx context.Context) ([]model.QueuedMutation, error)
	Update(ctx context.Context, m *model.QueuedMutation) error
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const outboxSchema = `
	CREATE TABLE IF NOT EXISTS queued_mutations (
		id TEXT PRIMARY KEY,
		mutation TEXT NOT NULL,
		variables TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_queued_mutations_timestamp
		ON queued_mutations(timestamp);`

// NewSQLiteStore opens (or creates) the outbox database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path", common.ErrInvalidConfig)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create outbox directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping outbox database: %w", err)
	}

	if _, err := db.Exec(outboxSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize outbox schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add persists a new queued mutation.
func (s *SQLiteStore) Add(ctx context.Context, m *model.QueuedMutation) error {
	if err := validateMutation(m); err != nil {
		return err
	}

	variables, err := json.Marshal(m.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode mutation variables: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queued_mutations (id, mutation, variables, timestamp, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Mutation, string(variables), m.Timestamp, m.RetryCount, nullable(m.LastError),
	)
	if err != nil {
		return fmt.Errorf("failed to insert queued mutation: %w", err)
	}
	return nil
}

// Get returns a single entry by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.QueuedMutation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mutation, variables, timestamp, retry_count, last_error
		FROM queued_mutations
		WHERE id = ?`, id)

	m, err := scanMutation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: queued mutation %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queued mutation: %w", err)
	}
	return m, nil
}

// List returns all pending entries, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.QueuedMutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mutation, variables, timestamp, retry_count, last_error
		FROM queued_mutations
		ORDER BY timestamp, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queued mutations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued mutation: %w", err)
		}
		entries = append(entries, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queued mutations: %w", err)
	}
	return entries, nil
}

// Update rewrites the retry bookkeeping for an existing entry.
func (s *SQLiteStore) Update(ctx context.Context, m *model.QueuedMutation) error {
	if err := validateMutation(m); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE queued_mutations
		SET retry_count = ?, last_error = ?
		WHERE id = ?`,
		m.RetryCount, nullable(m.LastError), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queued mutation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: queued mutation %s", common.ErrNotFound, m.ID)
	}
	return nil
}

// Remove deletes an entry. Removing an absent id is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queued_mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queued mutation: %w", err)
	}
	return nil
}

// Count returns the number of pending entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_mutations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued mutations: %w", err)
	}
	return count, nil
}

// Clear removes every pending entry.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_mutations`); err != nil {
		return fmt.Errorf("failed to clear queued mutations: %w", err)
	}
	return nil
}

func scanMutation(scan func(dest ...any) error) (*model.QueuedMutation, error) {
	var (
		m         model.QueuedMutation
		variables string
		lastError sql.NullString
		timestamp time.Time
	)
	if err := scan(&m.ID, &m.Mutation, &variables, &timestamp, &m.RetryCount, &lastError); err != nil {
		return nil, err
	}
	m.Timestamp = timestamp
	if lastError.Valid {
		m.LastError = lastError.String
	}
	if err := json.Unmarshal([]byte(variables), &m.Variables); err != nil {
		return nil, fmt.Errorf("failed to decode mutation variables: %w", err)
	}
	return &m, nil
}

func validateMutation(m *model.QueuedMutation) error {
	if m == nil {
		return fmt.Errorf("queued mutation cannot be nil")
	}
	if m.ID == "" {
		return fmt.Errorf("queued mutation missing id")
	}
	if m.Mutation == "" {
		return fmt.Errorf("queued mutation missing operation name")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("queued mutation missing timestamp")
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
