package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/valet-agent/valet/internal/llm"
)

// SQLiteStore is a SQLite-backed conversation store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a conversation database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT PRIMARY KEY,
		created_at      TEXT NOT NULL,
		last_message_at TEXT NOT NULL,
		token_count     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		seq             INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		tool_calls      TEXT,
		tool_call_id    TEXT,
		timestamp       TEXT NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS summaries (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		timestamp       TEXT NOT NULL,
		original_count  INTEGER NOT NULL,
		kept_count      INTEGER NOT NULL,
		tokens_before   INTEGER NOT NULL,
		tokens_after    INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON summaries(conversation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// newID generates a UUIDv7, falling back to v4 if the clock source fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Load returns the conversation with the given id, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_message_at, token_count FROM conversations WHERE id = ?`, id)

	var c Conversation
	var createdAt, lastAt string
	if err := row.Scan(&c.ID, &createdAt, &lastAt, &c.TokenCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if c.LastMessageAt, err = parseTime(lastAt); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	if c.Messages, err = s.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	if c.Summaries, err = s.loadSummaries(ctx, id); err != nil {
		return nil, err
	}

	return &c, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, timestamp
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var toolCalls, toolCallID sql.NullString
		var ts string
		if err := rows.Scan(&m.Role, &m.Content, &toolCalls, &toolCallID, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			var calls []llm.ToolCall
			if err := json.Unmarshal([]byte(toolCalls.String), &calls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
			m.ToolCalls = calls
		}
		m.ToolCallID = toolCallID.String
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) loadSummaries(ctx context.Context, conversationID string) ([]SummaryMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, original_count, kept_count, tokens_before, tokens_after
		 FROM summaries WHERE conversation_id = ? ORDER BY timestamp`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	defer rows.Close()

	var sums []SummaryMetadata
	for rows.Next() {
		var sm SummaryMetadata
		var ts string
		if err := rows.Scan(&ts, &sm.OriginalCount, &sm.KeptCount, &sm.TokensBefore, &sm.TokensAfter); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if sm.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sums = append(sums, sm)
	}
	return sums, rows.Err()
}

// Save persists the full conversation state in one transaction. The
// message list is replaced wholesale because summarization rewrites
// history; summary metadata rows are append-only.
func (s *SQLiteStore) Save(ctx context.Context, c *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at, last_message_at, token_count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_message_at = excluded.last_message_at,
		                               token_count = excluded.token_count`,
		c.ID, formatTime(c.CreatedAt), formatTime(c.LastMessageAt), c.TokenCount)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, m := range c.Messages {
		var toolCalls any
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, seq, role, content, tool_calls, tool_call_id, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(), c.ID, i, m.Role, m.Content, toolCalls, m.ToolCallID, formatTime(m.Timestamp))
		if err != nil {
			return fmt.Errorf("save message: %w", err)
		}
	}

	// Summary rows are append-only; re-sync by replacing, which keeps
	// Save idempotent for a given in-memory state.
	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE conversation_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear summaries: %w", err)
	}
	for _, sm := range c.Summaries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO summaries (id, conversation_id, timestamp, original_count, kept_count, tokens_before, tokens_after)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID(), c.ID, formatTime(sm.Timestamp), sm.OriginalCount, sm.KeptCount, sm.TokensBefore, sm.TokensAfter)
		if err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// CreateNew creates and persists an empty conversation.
func (s *SQLiteStore) CreateNew(ctx context.Context) (*Conversation, error) {
	now := time.Now().UTC()
	c := &Conversation{
		ID:            newID(),
		CreatedAt:     now,
		LastMessageAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at, last_message_at, token_count) VALUES (?, ?, ?, 0)`,
		c.ID, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
