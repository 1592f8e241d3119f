package nl2sql

import "context"

// Turn is one prior message in the conversation. History is owned by the
// caller and read once per pipeline run; this package never stores it.
type Turn struct {
	Role          string `json:"role"`
	Content       string `json:"content"`
	SQLQuery      string `json:"sql_query,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
}

// Request carries everything the generator needs for one turn: the user's
// question, bounded conversational history and the rendered schema.
type Request struct {
	Question string
	History  []Turn
	Schema   string
}

// Generation is the normalized output of a successful generator call.
type Generation struct {
	SQL        string
	TokensUsed int
}

// GenerationError wraps any failure of the external generator. It always
// represents zero tokens consumed.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "sql generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Generator converts natural language into candidate SQL and summarizes
// results. Its output is untrusted and must pass the safety gate before it
// reaches a database connection.
type Generator interface {
	GenerateSQL(ctx context.Context, req Request) (Generation, error)
	SummarizeResults(ctx context.Context, question string, columns []string, rows []map[string]any) (string, error)
}
