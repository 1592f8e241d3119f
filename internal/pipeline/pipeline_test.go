package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/warechat/warechat/internal/audit"
	"github.com/warechat/warechat/internal/nl2sql"
	"github.com/warechat/warechat/internal/safety"
	"github.com/warechat/warechat/internal/schema"
	"github.com/warechat/warechat/internal/warehouse"
)

const testDocument = `
tables:
  - name: warehouse.fact_player_stats
    columns:
      - name: full_name
        type: text
      - name: num_hr
        type: integer
`

type staticSource struct{}

func (staticSource) Fetch(context.Context) ([]byte, schema.Marker, error) {
	return []byte(testDocument), schema.Marker{ModTime: time.Unix(1, 0)}, nil
}

func (staticSource) Stat(context.Context) (schema.Marker, error) {
	return schema.Marker{ModTime: time.Unix(1, 0)}, nil
}

type fakeGenerator struct {
	sql        string
	tokens     int
	genErr     error
	summary    string
	summaryErr error

	genCalls     int
	summaryCalls int
}

func (g *fakeGenerator) GenerateSQL(_ context.Context, req nl2sql.Request) (nl2sql.Generation, error) {
	g.genCalls++
	if !strings.Contains(req.Schema, "fact_player_stats") {
		return nl2sql.Generation{}, fmt.Errorf("schema not rendered")
	}
	if g.genErr != nil {
		return nl2sql.Generation{}, g.genErr
	}
	return nl2sql.Generation{SQL: g.sql, TokensUsed: g.tokens}, nil
}

func (g *fakeGenerator) SummarizeResults(context.Context, string, []string, []map[string]any) (string, error) {
	g.summaryCalls++
	if g.summaryErr != nil {
		return "", g.summaryErr
	}
	return g.summary, nil
}

type captureSink struct {
	records []audit.Record
}

func (s *captureSink) Write(_ context.Context, rec audit.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) last(t *testing.T) audit.Record {
	t.Helper()
	if len(s.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(s.records))
	}
	return s.records[0]
}

func newTestPipeline(t *testing.T, generator *fakeGenerator) (*Pipeline, sqlmock.Sqlmock, *captureSink) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	gate := safety.NewGate()
	sink := &captureSink{}
	p := New(Dependencies{
		Schemas:   schema.NewStore(staticSource{}, nil),
		Generator: generator,
		Gate:      gate,
		Executor:  warehouse.NewExecutor(db, gate, time.Second, nil),
		Sink:      sink,
	})
	return p, mock, sink
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestRunAnswersQuestionEndToEnd(t *testing.T) {
	query := "SELECT full_name, num_hr FROM warehouse.fact_player_stats ORDER BY num_hr DESC LIMIT 1;"
	generator := &fakeGenerator{sql: query, tokens: 321, summary: "Aaron Judge leads with 62 home runs."}
	p, mock, sink := newTestPipeline(t, generator)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("full_name").OfType("TEXT", ""),
		sqlmock.NewColumn("num_hr").OfType("INT8", int64(0)),
	).AddRow("Aaron Judge", int64(62))
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(rows)

	result := p.Run(context.Background(), "who leads in home runs", nil)
	if result.Failed() {
		t.Fatalf("run failed: %s %s", result.ErrorKind, result.ErrorMessage)
	}
	if result.GeneratedSQL != query {
		t.Fatalf("GeneratedSQL = %q", result.GeneratedSQL)
	}
	if !strings.HasPrefix(result.DisplaySQL, "SELECT") || !strings.Contains(result.DisplaySQL, "\nFROM") {
		t.Fatalf("DisplaySQL = %q", result.DisplaySQL)
	}
	if result.Outcome == nil || result.Outcome.RowCount != 1 {
		t.Fatalf("Outcome = %+v", result.Outcome)
	}
	if result.Summary != "Aaron Judge leads with 62 home runs." {
		t.Fatalf("Summary = %q", result.Summary)
	}
	if result.TokensUsed != 321 {
		t.Fatalf("TokensUsed = %d", result.TokensUsed)
	}

	rec := sink.last(t)
	if !rec.Accepted || !rec.Executed || rec.RowCount != 1 || rec.TokensUsed != 321 {
		t.Fatalf("audit record = %+v", rec)
	}
	if rec.GeneratedSQL != query {
		t.Fatalf("audit SQL = %q", rec.GeneratedSQL)
	}
	assertSQLMock(t, mock)
}

func TestRunGenerationFailureIsGeneric(t *testing.T) {
	generator := &fakeGenerator{genErr: &nl2sql.GenerationError{Err: fmt.Errorf("api key invalid")}}
	p, mock, sink := newTestPipeline(t, generator)

	result := p.Run(context.Background(), "anything", nil)
	if result.ErrorKind != KindGeneration {
		t.Fatalf("ErrorKind = %q", result.ErrorKind)
	}
	// Backend internals never leak to the end user.
	if strings.Contains(result.ErrorMessage, "api key") {
		t.Fatalf("ErrorMessage leaks internals: %q", result.ErrorMessage)
	}
	if result.TokensUsed != 0 {
		t.Fatalf("TokensUsed = %d", result.TokensUsed)
	}

	rec := sink.last(t)
	if rec.ErrorKind != KindGeneration || rec.GeneratedSQL != "" {
		t.Fatalf("audit record = %+v", rec)
	}
	assertSQLMock(t, mock)
}

func TestRunRejectsUnsafeSQLBeforeExecution(t *testing.T) {
	generator := &fakeGenerator{sql: "DELETE FROM warehouse.dim_player;"}
	p, mock, sink := newTestPipeline(t, generator)

	result := p.Run(context.Background(), "remove all players", nil)
	if result.ErrorKind != KindUnsafe {
		t.Fatalf("ErrorKind = %q", result.ErrorKind)
	}
	if !strings.Contains(result.ErrorMessage, "DELETE") {
		t.Fatalf("ErrorMessage = %q, want verbatim rejection reason", result.ErrorMessage)
	}

	rec := sink.last(t)
	if rec.Accepted || rec.Executed {
		t.Fatalf("audit record = %+v", rec)
	}
	if rec.Reason != result.ErrorMessage {
		t.Fatalf("audit reason = %q, result message = %q", rec.Reason, result.ErrorMessage)
	}
	// The statement must never reach the warehouse.
	assertSQLMock(t, mock)
}

func TestRunExecutionFailureIsAudited(t *testing.T) {
	query := "SELECT num_hr FROM warehouse.fact_player_stats;"
	generator := &fakeGenerator{sql: query}
	p, mock, sink := newTestPipeline(t, generator)

	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnError(fmt.Errorf("relation does not exist"))

	result := p.Run(context.Background(), "how many home runs", nil)
	if result.ErrorKind != KindExecution {
		t.Fatalf("ErrorKind = %q", result.ErrorKind)
	}
	if !strings.Contains(result.ErrorMessage, "relation does not exist") {
		t.Fatalf("ErrorMessage = %q", result.ErrorMessage)
	}

	rec := sink.last(t)
	if !rec.Accepted || rec.Executed {
		t.Fatalf("audit record = %+v", rec)
	}
	if rec.GeneratedSQL != query {
		t.Fatalf("audit SQL = %q", rec.GeneratedSQL)
	}
	assertSQLMock(t, mock)
}

func TestRunSkipsSummaryForEmptyResult(t *testing.T) {
	query := "SELECT full_name FROM warehouse.fact_player_stats WHERE num_hr > 100;"
	generator := &fakeGenerator{sql: query, summary: "should not be asked"}
	p, mock, _ := newTestPipeline(t, generator)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"full_name"}))

	result := p.Run(context.Background(), "who hit more than 100", nil)
	if result.Failed() {
		t.Fatalf("run failed: %s", result.ErrorMessage)
	}
	if result.Summary != "" {
		t.Fatalf("Summary = %q", result.Summary)
	}
	if generator.summaryCalls != 0 {
		t.Fatalf("summaryCalls = %d, want 0", generator.summaryCalls)
	}
	assertSQLMock(t, mock)
}

func TestRunSummaryFailureDegradesToEmpty(t *testing.T) {
	query := "SELECT COUNT(*) FROM warehouse.dim_player;"
	generator := &fakeGenerator{sql: query, summaryErr: fmt.Errorf("model overloaded")}
	p, mock, sink := newTestPipeline(t, generator)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(412)))

	result := p.Run(context.Background(), "how many players", nil)
	if result.Failed() {
		t.Fatalf("run failed: %s", result.ErrorMessage)
	}
	if result.Summary != "" {
		t.Fatalf("Summary = %q", result.Summary)
	}
	if rec := sink.last(t); !rec.Executed || rec.ErrorKind != "" {
		t.Fatalf("audit record = %+v", rec)
	}
	assertSQLMock(t, mock)
}
