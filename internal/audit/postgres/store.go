// Package postgres persists audit records in the service's own database,
// never in the analytics warehouse.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warechat/warechat/internal/audit"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit db: %w", err)
	}
	return nil
}

func (s *Store) Write(ctx context.Context, rec audit.Record) error {
	query := `
INSERT INTO query_audit (
	id, created_at, question, generated_sql, accepted, reason,
	executed, error_kind, error_text, row_count, tokens_used, elapsed_ms
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if _, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.CreatedAt,
		rec.Question,
		rec.GeneratedSQL,
		rec.Accepted,
		rec.Reason,
		rec.Executed,
		rec.ErrorKind,
		rec.ErrorText,
		rec.RowCount,
		rec.TokensUsed,
		rec.Elapsed.Milliseconds(),
	); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, question, generated_sql, accepted, reason,
	executed, error_kind, error_text, row_count, tokens_used, elapsed_ms
FROM query_audit
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]audit.Record, 0)
	for rows.Next() {
		var rec audit.Record
		var elapsedMs int64
		if err := rows.Scan(
			&rec.ID,
			&rec.CreatedAt,
			&rec.Question,
			&rec.GeneratedSQL,
			&rec.Accepted,
			&rec.Reason,
			&rec.Executed,
			&rec.ErrorKind,
			&rec.ErrorText,
			&rec.RowCount,
			&rec.TokensUsed,
			&elapsedMs,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
