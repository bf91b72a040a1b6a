package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store handles task persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a task store with a SQLite backend.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		notes      TEXT NOT NULL DEFAULT '',
		due        TEXT,
		done       INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(done, due);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7, falling back to v4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Create persists a new task. ID and timestamps are filled in.
func (s *Store) Create(ctx context.Context, t *Task) error {
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if t.ID == "" {
		t.ID = NewID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	var due any
	if t.Due != nil {
		due = t.Due.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, notes, due, done, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Notes, due, t.Done,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get returns a task by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, notes, due, done, created_at, updated_at FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns tasks ordered by due date (tasks without one last),
// then creation time. When openOnly is true, done tasks are excluded.
func (s *Store) List(ctx context.Context, openOnly bool) ([]*Task, error) {
	query := `SELECT id, title, notes, due, done, created_at, updated_at FROM tasks`
	if openOnly {
		query += ` WHERE done = 0`
	}
	query += ` ORDER BY due IS NULL, due, created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Complete marks a task done. Returns ErrNotFound for unknown ids.
func (s *Store) Complete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET done = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return checkAffected(res)
}

// Delete removes a task. Returns ErrNotFound for unknown ids.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var due sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &t.Notes, &due, &t.Done, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		parsed, err := time.Parse(time.RFC3339, due.String)
		if err != nil {
			return nil, fmt.Errorf("parse due %q: %w", due.String, err)
		}
		t.Due = &parsed
	}
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}
