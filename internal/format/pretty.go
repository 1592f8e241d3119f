package format

import (
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	restoreformat "github.com/pingcap/tidb/pkg/parser/format"
)

var clausePattern = regexp.MustCompile(
	`\s+(FROM|WHERE|GROUP BY|HAVING|ORDER BY|LIMIT|LEFT JOIN|RIGHT JOIN|INNER JOIN|CROSS JOIN|JOIN)\b`)

// PrettySQL reformats a statement for display: keywords uppercased and one
// clause per line. The executed SQL is never derived from this output; if
// the statement cannot be parsed it is returned trimmed and unchanged.
func PrettySQL(sqlText string) string {
	stmts, _, err := parser.New().Parse(sqlText, "", "")
	if err != nil || len(stmts) != 1 {
		return strings.TrimSpace(sqlText)
	}

	var b strings.Builder
	flags := restoreformat.RestoreStringSingleQuotes | restoreformat.RestoreKeyWordUppercase
	if err := stmts[0].Restore(restoreformat.NewRestoreCtx(flags, &b)); err != nil {
		return strings.TrimSpace(sqlText)
	}

	return clausePattern.ReplaceAllString(b.String(), "\n$1") + ";"
}
