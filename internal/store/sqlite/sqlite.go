package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hospital-ms/chatrelay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user       TEXT NOT NULL,
	text       TEXT NOT NULL,
	time       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// SQLiteLog implements store.MessageLog on top of SQLite.
type SQLiteLog struct {
	db     *sql.DB
	limit  int
	closed atomic.Bool
}

// New opens the database at dbPath and applies the schema.
// ":memory:" gives a private database that lives as long as the log.
func New(dbPath string, limit int) (*SQLiteLog, error) {
	return NewWithSetup(dbPath, limit, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup instead of the built-in schema.
func NewWithSetup(dbPath string, limit int, setup func(*sql.DB) error) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", withPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection serializes writers. For ":memory:" that connection is the
	// database: it must never be closed or recycled while the log is open.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if limit < 0 {
		limit = 0
	}
	return &SQLiteLog{db: db, limit: limit}, nil
}

func withPragmas(dbPath string) string {
	if isMemory(dbPath) {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.HasPrefix(dbPath, ":memory:?") || strings.Contains(dbPath, "mode=memory")
}

// Append inserts msg and trims rows beyond the configured limit.
func (s *SQLiteLog) Append(ctx context.Context, msg store.Message) error {
	if s.closed.Load() {
		return store.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO messages (user, text, time, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, msg.User, msg.Text, msg.Time, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if s.limit > 0 {
		trim := `
			DELETE FROM messages
			WHERE id <= (SELECT id FROM messages ORDER BY id DESC LIMIT 1 OFFSET ?)
		`
		if _, err := tx.ExecContext(ctx, trim, s.limit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Snapshot returns every retained message in insertion order.
func (s *SQLiteLog) Snapshot(ctx context.Context) ([]store.Message, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	query := `
		SELECT user, text, time, created_at
		FROM messages
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.User, &msg.Text, &msg.Time, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Len counts retained messages.
func (s *SQLiteLog) Len(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, store.ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteLog) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
