package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/warechat/warechat/internal/safety"
)

// DefaultQueryTimeout bounds a single warehouse query.
const DefaultQueryTimeout = 30 * time.Second

// Outcome is the raw result of one executed statement. Column order matches
// the backend's result set and is identical across all rows; ColumnTypes
// carries the backend type name per column so display formatting can convert
// values without guessing.
type Outcome struct {
	Columns     []string
	ColumnTypes []string
	Rows        []map[string]any
	Elapsed     time.Duration
}

// ExecutionError wraps a backend failure and preserves how long the query
// ran before failing.
type ExecutionError struct {
	Err     error
	Elapsed time.Duration
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed after %s: %s", e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs vetted SELECT statements with a hard per-query timeout. It
// re-checks every statement against the safety gate before touching the
// database, so a caller that skips validation still cannot execute writes.
type Executor struct {
	db      *sql.DB
	gate    *safety.Gate
	timeout time.Duration
	logger  *slog.Logger
}

func NewExecutor(db *sql.DB, gate *safety.Gate, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, gate: gate, timeout: timeout, logger: logger}
}

// Execute runs one statement and materializes its full result set. A
// statement the gate rejects never reaches the database.
func (e *Executor) Execute(ctx context.Context, sqlText string) (Outcome, error) {
	if verdict := e.gate.Check(sqlText); !verdict.Accepted {
		return Outcome{}, fmt.Errorf("refusing to execute rejected SQL: %s", verdict.Reason)
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(queryCtx, sqlText)
	if err != nil {
		return Outcome{}, &ExecutionError{Err: err, Elapsed: time.Since(start)}
	}
	defer func() { _ = rows.Close() }()

	outcome, err := collect(rows)
	if err != nil {
		return Outcome{}, &ExecutionError{Err: err, Elapsed: time.Since(start)}
	}
	outcome.Elapsed = time.Since(start)

	e.logger.Debug("warehouse query executed",
		slog.Int("rows", len(outcome.Rows)),
		slog.Duration("elapsed", outcome.Elapsed),
	)
	return outcome, nil
}

func collect(rows *sql.Rows) (Outcome, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Outcome{}, fmt.Errorf("read result columns: %w", err)
	}
	if len(columns) == 0 {
		return Outcome{Columns: []string{}, ColumnTypes: []string{}, Rows: []map[string]any{}}, nil
	}

	columnTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil && len(types) == len(columns) {
		for i, ct := range types {
			columnTypes[i] = ct.DatabaseTypeName()
		}
	}

	outcome := Outcome{
		Columns:     columns,
		ColumnTypes: columnTypes,
		Rows:        []map[string]any{},
	}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return Outcome{}, fmt.Errorf("scan result row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = values[i]
		}
		outcome.Rows = append(outcome.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Outcome{}, fmt.Errorf("iterate result rows: %w", err)
	}
	return outcome, nil
}
