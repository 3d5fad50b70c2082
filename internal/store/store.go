// Package store provides durable SQLite-backed storage for assistant
// question/response exchanges.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lintmend/lintmend/internal/util"
)

// Suggestion is one persisted exchange with the assistant.
type Suggestion struct {
	ID        int64           `json:"id"`
	File      string          `json:"file"`
	Question  string          `json:"question"`
	Response  ResponsePayload `json:"response"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResponsePayload is the JSON document held in the response column. It
// stays a wrapper object so the column can grow fields without a schema
// change.
type ResponsePayload struct {
	Response string `json:"response"`
}

// Store persists suggestions in a single SQLite database.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS suggestions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL,
	question TEXT NOT NULL,
	response JSON NOT NULL,
	model TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suggestions_file ON suggestions(file);
`

// Open opens (creating if needed) the suggestion database at path.
// ":memory:" opens an ephemeral database for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := util.EnsureDir(dir); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// An in-memory database exists per connection, so the pool must
		// never hand out a second one.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location this store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Add inserts a suggestion and returns its row id.
func (s *Store) Add(ctx context.Context, file, question, response, model string) (int64, error) {
	if file == "" {
		return 0, errors.New("file is required")
	}
	if question == "" {
		return 0, errors.New("question is required")
	}

	payload, err := json.Marshal(ResponsePayload{Response: response})
	if err != nil {
		return 0, fmt.Errorf("marshal response: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (file, question, response, model, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		file, question, string(payload), model, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert suggestion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("suggestion id: %w", err)
	}
	return id, nil
}

// Record satisfies the assistant's persistence hook.
func (s *Store) Record(ctx context.Context, file, question, response, model string) error {
	_, err := s.Add(ctx, file, question, response, model)
	return err
}

// Get retrieves one suggestion by id. A missing id returns (nil, nil).
func (s *Store) Get(ctx context.Context, id int64) (*Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sg  Suggestion
		raw string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file, question, response, model, created_at
		FROM suggestions
		WHERE id = ?`, id,
	).Scan(&sg.ID, &sg.File, &sg.Question, &raw, &sg.Model, &sg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &sg.Response); err != nil {
		return nil, fmt.Errorf("decode response for suggestion %d: %w", id, err)
	}
	return &sg, nil
}

// List returns suggestions newest first. A non-empty file filters to that
// file's exchanges.
func (s *Store) List(ctx context.Context, file string) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, file, question, response, model, created_at
		FROM suggestions
		ORDER BY created_at DESC, id DESC`
	args := []any{}
	if file != "" {
		query = `
		SELECT id, file, question, response, model, created_at
		FROM suggestions
		WHERE file = ?
		ORDER BY created_at DESC, id DESC`
		args = append(args, file)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var (
			sg  Suggestion
			raw string
		)
		if err := rows.Scan(&sg.ID, &sg.File, &sg.Question, &raw, &sg.Model, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &sg.Response); err != nil {
			return nil, fmt.Errorf("decode response for suggestion %d: %w", sg.ID, err)
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return out, nil
}

// Update replaces the stored response for a suggestion.
func (s *Store) Update(ctx context.Context, id int64, response string) error {
	payload, err := json.Marshal(ResponsePayload{Response: response})
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE suggestions SET response = ? WHERE id = ?`,
		string(payload), id,
	)
	if err != nil {
		return fmt.Errorf("update suggestion: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("suggestion not found: %d", id)
	}
	return nil
}

// Delete removes a suggestion by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete suggestion: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("suggestion not found: %d", id)
	}
	return nil
}
