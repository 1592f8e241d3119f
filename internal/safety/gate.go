// Package safety decides whether generated SQL may be executed. The gate is
// a pure function over the SQL text: no I/O, no side effects, fail closed.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Verdict is the outcome of one gate check. Reason names the rule that
// rejected the statement so the caller can audit it verbatim.
type Verdict struct {
	Accepted bool
	Reason   string
}

// Destructive, DDL and DML keywords that are never allowed, matched as whole
// words so identifiers containing them (e.g. "updated_at") pass.
var blockedKeywords = []string{
	"DROP", "TRUNCATE", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE",
	"GRANT", "REVOKE", "EXECUTE", "EXEC", "MERGE", "UPSERT", "REPLACE",
	"RENAME", "MODIFY",
}

// File-access and shell-escape functions. Substring matching is enough here:
// these identifiers do not occur in legitimate warehouse queries.
var blockedFunctions = []string{
	"PG_READ_FILE", "PG_LS_DIR", "PG_STAT_FILE", "PG_READ_BINARY_FILE",
	"SYSTEM", "EXEC", "EVAL", "SHELL_EXEC", "PASSTHRU",
}

type injectionPattern struct {
	re   *regexp.Regexp
	name string
}

// Signatures of injection and exfiltration attempts layered onto an
// otherwise valid SELECT.
var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`--\s*$`), "trailing line comment"},
	{regexp.MustCompile(`/\*.*?\*/`), "block comment"},
	{regexp.MustCompile(`(?i)UNION\s+ALL`), "UNION ALL"},
	{regexp.MustCompile(`(?i)UNION\s+SELECT`), "UNION SELECT"},
	{regexp.MustCompile(`(?i)OR\s+1\s*=\s*1`), "OR 1=1 tautology"},
	{regexp.MustCompile(`(?i)OR\s+TRUE`), "OR TRUE tautology"},
	{regexp.MustCompile(`(?i)AND\s+1\s*=\s*1`), "AND 1=1 tautology"},
}

var keywordPatterns = buildKeywordPatterns()

func buildKeywordPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(blockedKeywords))
	for _, keyword := range blockedKeywords {
		patterns = append(patterns, regexp.MustCompile(`\b`+keyword+`\b`))
	}
	return patterns
}

// Gate runs the full check sequence. It is stateless and safe for
// concurrent use.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

// Check vets candidate SQL against every rule in order; the first rejection
// wins. The uppercased working copy exists only for comparisons; the text
// handed back for execution is never rewritten here.
func (g *Gate) Check(sqlText string) Verdict {
	normalized := strings.ToUpper(strings.TrimSpace(sqlText))

	for i, pattern := range keywordPatterns {
		if pattern.MatchString(normalized) {
			return reject(fmt.Sprintf("dangerous SQL keyword %q is not allowed", blockedKeywords[i]))
		}
	}
	for _, function := range blockedFunctions {
		if strings.Contains(normalized, function) {
			return reject(fmt.Sprintf("dangerous function %q is not allowed", function))
		}
	}
	for _, pattern := range injectionPatterns {
		if pattern.re.MatchString(normalized) {
			return reject(fmt.Sprintf("potentially dangerous SQL pattern detected: %s", pattern.name))
		}
	}

	stmts, _, err := parser.New().Parse(sqlText, "", "")
	if err != nil || len(stmts) == 0 {
		return reject("invalid SQL query")
	}
	if len(stmts) > 1 {
		return reject("multiple statements are not allowed")
	}
	if _, ok := stmts[0].(*ast.SelectStmt); !ok {
		return reject("only SELECT statements are allowed")
	}
	if containsNestedWrite(stmts[0]) {
		return reject("nested write statement is not allowed")
	}
	if countBareSeparators(sqlText) > 1 {
		return reject("multiple statements are not allowed")
	}

	return Verdict{Accepted: true, Reason: "query is safe"}
}

func reject(reason string) Verdict {
	return Verdict{Accepted: false, Reason: reason}
}

// writeDetector walks the parse tree depth-first and flags any data
// manipulation node other than SELECT, wherever it is nested.
type writeDetector struct {
	found bool
}

func (d *writeDetector) Enter(in ast.Node) (ast.Node, bool) {
	switch in.(type) {
	case *ast.InsertStmt, *ast.UpdateStmt, *ast.DeleteStmt, *ast.LoadDataStmt:
		d.found = true
		return in, true
	}
	return in, d.found
}

func (d *writeDetector) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

func containsNestedWrite(stmt ast.StmtNode) bool {
	detector := &writeDetector{}
	stmt.Accept(detector)
	return detector.found
}

// countBareSeparators counts semicolons outside single- and double-quoted
// literals. More than one means statement stacking.
func countBareSeparators(sqlText string) int {
	count := 0
	var quote byte
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c == '\\' {
				i++
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			count++
		}
	}
	return count
}
