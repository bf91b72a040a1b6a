package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink is an append-only SQLite store for execution traces.
// Aggregate columns are flattened for cheap windowed queries; the full
// iteration detail rides along as JSON.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) a trace database at dbPath.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate trace schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_input      TEXT NOT NULL,
		final_text      TEXT NOT NULL,
		model           TEXT NOT NULL,
		started_at      TEXT NOT NULL,
		completed_at    TEXT NOT NULL,
		duration_ms     INTEGER NOT NULL,
		input_tokens    INTEGER NOT NULL,
		output_tokens   INTEGER NOT NULL,
		cost_usd        REAL NOT NULL,
		iteration_count INTEGER NOT NULL,
		iterations_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_started ON executions(started_at);
	CREATE INDEX IF NOT EXISTS idx_executions_conversation ON executions(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save persists an execution trace. If ex.ID is empty, a UUIDv7 is
// generated.
func (s *SQLiteSink) Save(ctx context.Context, ex *Execution) error {
	if ex.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate trace ID: %w", err)
		}
		ex.ID = id.String()
	}

	iterations, err := json.Marshal(ex.Iterations)
	if err != nil {
		return fmt.Errorf("encode iterations: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions
			(id, conversation_id, user_input, final_text, model,
			 started_at, completed_at, duration_ms,
			 input_tokens, output_tokens, cost_usd,
			 iteration_count, iterations_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID,
		ex.ConversationID,
		ex.UserInput,
		ex.FinalText,
		ex.Model,
		ex.StartedAt.UTC().Format(time.RFC3339Nano),
		ex.CompletedAt.UTC().Format(time.RFC3339Nano),
		ex.Duration.Milliseconds(),
		ex.InputTokens,
		ex.OutputTokens,
		ex.CostUSD,
		len(ex.Iterations),
		string(iterations),
	)
	if err != nil {
		return fmt.Errorf("insert execution trace: %w", err)
	}
	return nil
}

// Summarize returns aggregated totals for executions within [start, end).
func (s *SQLiteSink) Summarize(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM executions
		 WHERE started_at >= ? AND started_at < ?`,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	)

	var sum Summary
	if err := row.Scan(&sum.TotalRuns, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD); err != nil {
		return nil, fmt.Errorf("query trace summary: %w", err)
	}
	return &sum, nil
}

// SummarizeByModel returns per-model aggregated totals for executions
// within [start, end).
func (s *SQLiteSink) SummarizeByModel(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM executions
		 WHERE started_at >= ? AND started_at < ?
		 GROUP BY model
		 ORDER BY SUM(cost_usd) DESC`,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query trace summary by model: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var model string
		var sum Summary
		if err := rows.Scan(&model, &sum.TotalRuns, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan trace summary: %w", err)
		}
		result[model] = &sum
	}
	return result, rows.Err()
}
