package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Sghirate/SlackSwarmBot/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
// An uncreatable or unwritable location fails here: without the cache no
// notification can be correlated, so the caller must treat this as fatal.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes access through Go's connection pool, preventing
	// "database is locked" errors when the intake server handles events in
	// parallel.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Review threads ---

func (s *SQLiteStore) GetThread(ctx context.Context, reviewID int) (*models.ThreadMapping, error) {
	m := &models.ThreadMapping{}
	err := s.db.QueryRowContext(ctx,
		"SELECT review_id, thread_ts, created_at FROM review_threads WHERE review_id = ?", reviewID,
	).Scan(&m.ReviewID, &m.ThreadTS, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread for review %d: %w", reviewID, err)
	}
	return m, nil
}

func (s *SQLiteStore) PutThread(ctx context.Context, reviewID int, threadTS string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO review_threads (review_id, thread_ts, created_at) VALUES (?, ?, ?)",
		reviewID, threadTS, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put thread for review %d: %w", reviewID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, reviewID int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM review_threads WHERE review_id = ?", reviewID)
	if err != nil {
		return fmt.Errorf("delete thread for review %d: %w", reviewID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no thread cached for review %d", reviewID)
	}
	return nil
}

func (s *SQLiteStore) ListThreads(ctx context.Context) ([]*models.ThreadMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT review_id, thread_ts, created_at FROM review_threads ORDER BY review_id")
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var threads []*models.ThreadMapping
	for rows.Next() {
		m := &models.ThreadMapping{}
		if err := rows.Scan(&m.ReviewID, &m.ThreadTS, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, m)
	}
	return threads, rows.Err()
}

// --- User mappings ---

func (s *SQLiteStore) GetUserMapping(ctx context.Context, userID string) (*models.UserMapping, error) {
	m := &models.UserMapping{}
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, slack_id, created_at FROM user_mappings WHERE user_id = ?", userID,
	).Scan(&m.UserID, &m.SlackID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping for user %s: %w", userID, err)
	}
	return m, nil
}

func (s *SQLiteStore) PutUserMapping(ctx context.Context, userID, slackID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO user_mappings (user_id, slack_id, created_at) VALUES (?, ?, ?)",
		userID, slackID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put mapping for user %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteUserMapping(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM user_mappings WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete mapping for user %s: %w", userID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no mapping cached for user %s", userID)
	}
	return nil
}

func (s *SQLiteStore) ListUserMappings(ctx context.Context) ([]*models.UserMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, slack_id, created_at FROM user_mappings ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list user mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []*models.UserMapping
	for rows.Next() {
		m := &models.UserMapping{}
		if err := rows.Scan(&m.UserID, &m.SlackID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
