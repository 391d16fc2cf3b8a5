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

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS moderation_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		banned_words_json TEXT NOT NULL,
		rate_limit INTEGER NOT NULL,
		maintenance INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// LoadSettings retrieves the saved settings, or nil if none were saved.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (*Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT banned_words_json, rate_limit, maintenance
		FROM moderation_settings WHERE id = 1`)

	var wordsJSON string
	var rateLimit, maintenance int
	if err := row.Scan(&wordsJSON, &rateLimit, &maintenance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var words []string
	if err := json.Unmarshal([]byte(wordsJSON), &words); err != nil {
		return nil, fmt.Errorf("decode banned words: %w", err)
	}

	return &Settings{
		BannedWords: words,
		RateLimit:   rateLimit,
		Maintenance: maintenance != 0,
	}, nil
}

// SaveSettings persists the settings, replacing any previous values.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings *Settings) error {
	wordsJSON, err := json.Marshal(settings.BannedWords)
	if err != nil {
		return fmt.Errorf("encode banned words: %w", err)
	}

	maintenance := 0
	if settings.Maintenance {
		maintenance = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO moderation_settings (id, banned_words_json, rate_limit, maintenance, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			banned_words_json = excluded.banned_words_json,
			rate_limit = excluded.rate_limit,
			maintenance = excluded.maintenance,
			updated_at = excluded.updated_at`,
		string(wordsJSON), settings.RateLimit, maintenance, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
