// Package pipeline orchestrates one question-to-answer run: generate SQL,
// vet it, execute it, shape the result and decorate it with a summary. The
// orchestrator is the only place internal faults become user-facing
// outcomes; nothing escapes it except a complete Result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warechat/warechat/internal/audit"
	"github.com/warechat/warechat/internal/format"
	"github.com/warechat/warechat/internal/nl2sql"
	"github.com/warechat/warechat/internal/observability"
	"github.com/warechat/warechat/internal/safety"
	"github.com/warechat/warechat/internal/schema"
	"github.com/warechat/warechat/internal/warehouse"
)

// Failure kinds, one per stage that can fail.
const (
	KindGeneration = "generation"
	KindUnsafe     = "unsafe"
	KindExecution  = "execution"
)

// Result is the single outcome of a pipeline run. Exactly one is produced
// per invocation, failed or not.
type Result struct {
	Question      string                `json:"question"`
	GeneratedSQL  string                `json:"generated_sql,omitempty"`
	DisplaySQL    string                `json:"display_sql,omitempty"`
	Outcome       *format.DisplayResult `json:"result,omitempty"`
	Summary       string                `json:"summary,omitempty"`
	ErrorKind     string                `json:"error_kind,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	TokensUsed    int                   `json:"tokens_used"`
	ExecutionTime time.Duration         `json:"-"`
}

func (r Result) Failed() bool {
	return r.ErrorKind != ""
}

// Dependencies are the collaborators a pipeline needs. All are required
// except Sink, which defaults to the structured log.
type Dependencies struct {
	Schemas   *schema.Store
	Generator nl2sql.Generator
	Gate      *safety.Gate
	Executor  *warehouse.Executor
	Sink      audit.Sink
	Logger    *slog.Logger
	MaxRows   int
}

type Pipeline struct {
	schemas   *schema.Store
	generator nl2sql.Generator
	gate      *safety.Gate
	executor  *warehouse.Executor
	sink      audit.Sink
	logger    *slog.Logger
	maxRows   int
}

func New(deps Dependencies) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := deps.Sink
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}
	maxRows := deps.MaxRows
	if maxRows <= 0 {
		maxRows = format.DefaultMaxRows
	}
	return &Pipeline{
		schemas:   deps.Schemas,
		generator: deps.Generator,
		gate:      deps.Gate,
		executor:  deps.Executor,
		sink:      sink,
		logger:    logger,
		maxRows:   maxRows,
	}
}

// Run processes one user turn. History belongs to the caller and is read
// once at the start; the schema snapshot taken here is held for the whole
// run even if a reload lands mid-flight.
func (p *Pipeline) Run(ctx context.Context, question string, history []nl2sql.Turn) Result {
	start := time.Now()
	rec := audit.NewRecord(question)
	result := Result{Question: question}

	catalog, err := p.schemas.Snapshot(ctx)
	if err != nil {
		return p.finish(ctx, rec, p.fail(result, KindGeneration, "schema catalog unavailable: "+err.Error()), start)
	}

	generation, err := p.generator.GenerateSQL(ctx, nl2sql.Request{
		Question: question,
		History:  history,
		Schema:   catalog.PromptText(),
	})
	if err != nil {
		p.logger.WarnContext(ctx, "sql generation failed", slog.String("error", err.Error()))
		return p.finish(ctx, rec, p.fail(result, KindGeneration, "could not generate a query for this question"), start)
	}
	result.GeneratedSQL = generation.SQL
	result.TokensUsed = generation.TokensUsed
	rec.GeneratedSQL = generation.SQL
	rec.TokensUsed = generation.TokensUsed
	observability.AddGenerationTokens(generation.TokensUsed)

	verdict := p.gate.Check(generation.SQL)
	rec.Accepted = verdict.Accepted
	rec.Reason = verdict.Reason
	if !verdict.Accepted {
		observability.IncrementGateRejection()
		return p.finish(ctx, rec, p.fail(result, KindUnsafe, verdict.Reason), start)
	}

	outcome, err := p.executor.Execute(ctx, generation.SQL)
	if err != nil {
		var execErr *warehouse.ExecutionError
		if errors.As(err, &execErr) {
			result.ExecutionTime = execErr.Elapsed
			rec.Elapsed = execErr.Elapsed
		}
		return p.finish(ctx, rec, p.fail(result, KindExecution, err.Error()), start)
	}
	rec.Executed = true
	rec.Elapsed = outcome.Elapsed
	result.ExecutionTime = outcome.Elapsed
	observability.ObserveQueryExecution(outcome.Elapsed)

	display := format.Format(outcome, p.maxRows)
	result.Outcome = &display
	result.DisplaySQL = format.PrettySQL(generation.SQL)
	rec.RowCount = display.RowCount

	if display.RowCount > 0 {
		summary, err := p.generator.SummarizeResults(ctx, question, display.Columns, display.Rows)
		if err != nil {
			// Summaries are decoration; a failed one never fails the run.
			p.logger.WarnContext(ctx, "result summary failed", slog.String("error", err.Error()))
		} else {
			result.Summary = summary
		}
	}

	return p.finish(ctx, rec, result, start)
}

func (p *Pipeline) fail(result Result, kind, message string) Result {
	result.ErrorKind = kind
	result.ErrorMessage = message
	return result
}

func (p *Pipeline) finish(ctx context.Context, rec audit.Record, result Result, start time.Time) Result {
	rec.ErrorKind = result.ErrorKind
	rec.ErrorText = result.ErrorMessage

	outcome := "ok"
	if result.Failed() {
		outcome = result.ErrorKind
	}
	observability.ObservePipelineRun(outcome, time.Since(start))

	if err := p.sink.Write(ctx, rec); err != nil {
		p.logger.WarnContext(ctx, "audit write failed",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
	return result
}
