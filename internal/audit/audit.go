// Package audit records every question that reaches the pipeline, whether
// or not it produced an executable query.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Record is one pipeline run. Reason carries the gate's verdict reason
// verbatim; ErrorKind and ErrorText are empty for successful runs.
type Record struct {
	ID           string
	CreatedAt    time.Time
	Question     string
	GeneratedSQL string
	Accepted     bool
	Reason       string
	Executed     bool
	ErrorKind    string
	ErrorText    string
	RowCount     int
	TokensUsed   int
	Elapsed      time.Duration
}

// NewRecord stamps identity and creation time; the pipeline fills in the
// rest as the run progresses.
func NewRecord(question string) Record {
	return Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Question:  question,
	}
}

// Sink persists audit records. Write failures must not fail the pipeline
// run they describe; callers log and move on.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// LogSink emits audit records to the structured log. It is the default for
// deployments without an audit database.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, rec Record) error {
	s.logger.InfoContext(ctx, "audit record",
		slog.String("id", rec.ID),
		slog.String("question", rec.Question),
		slog.String("generated_sql", rec.GeneratedSQL),
		slog.Bool("accepted", rec.Accepted),
		slog.String("reason", rec.Reason),
		slog.Bool("executed", rec.Executed),
		slog.String("error_kind", rec.ErrorKind),
		slog.Int("row_count", rec.RowCount),
		slog.Int("tokens_used", rec.TokensUsed),
		slog.Duration("elapsed", rec.Elapsed),
	)
	return nil
}
