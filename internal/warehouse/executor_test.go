package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/warechat/warechat/internal/safety"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestExecuteCollectsRowsAndTypes(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, safety.NewGate(), 0, nil)

	query := "SELECT full_name, num_hr FROM warehouse.fact_player_stats ORDER BY num_hr DESC LIMIT 2;"
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("full_name").OfType("TEXT", ""),
		sqlmock.NewColumn("num_hr").OfType("INT8", int64(0)),
	).
		AddRow("Aaron Judge", int64(62)).
		AddRow("Shohei Ohtani", int64(54))
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(rows)

	outcome, err := executor.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := outcome.Columns; len(got) != 2 || got[0] != "full_name" || got[1] != "num_hr" {
		t.Fatalf("Columns = %v", got)
	}
	if got := outcome.ColumnTypes; len(got) != 2 || got[0] != "TEXT" || got[1] != "INT8" {
		t.Fatalf("ColumnTypes = %v", got)
	}
	if len(outcome.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(outcome.Rows))
	}
	if outcome.Rows[0]["full_name"] != "Aaron Judge" || outcome.Rows[0]["num_hr"] != int64(62) {
		t.Fatalf("first row = %v", outcome.Rows[0])
	}
	assertSQLMock(t, mock)
}

func TestExecuteReturnsEmptyOutcomeForNoRows(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, safety.NewGate(), 0, nil)

	query := "SELECT player_sk FROM warehouse.dim_player WHERE full_name = 'nobody';"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(sqlmock.NewRows([]string{"player_sk"}))

	outcome, err := executor.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Rows == nil || len(outcome.Rows) != 0 {
		t.Fatalf("Rows = %#v, want empty non-nil", outcome.Rows)
	}
	if len(outcome.Columns) != 1 {
		t.Fatalf("Columns = %v", outcome.Columns)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRefusesRejectedSQL(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, safety.NewGate(), 0, nil)

	_, err := executor.Execute(context.Background(), "DELETE FROM warehouse.dim_player;")
	if err == nil {
		t.Fatal("expected error")
	}
	// The statement must never reach the database.
	assertSQLMock(t, mock)
}

func TestExecuteWrapsBackendFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, safety.NewGate(), 0, nil)

	query := "SELECT num_hr FROM warehouse.fact_player_stats;"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnError(fmt.Errorf("relation does not exist"))

	_, err := executor.Execute(context.Background(), query)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	if execErr.Elapsed < 0 {
		t.Fatalf("Elapsed = %s", execErr.Elapsed)
	}
	assertSQLMock(t, mock)
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := Open(context.Background(), DBConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
