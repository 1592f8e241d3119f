// Package format turns raw query outcomes into display-ready results and
// pretty-prints SQL for presentation. Nothing here touches the database.
package format

import (
	"strconv"
	"strings"
	"time"

	"github.com/warechat/warechat/internal/warehouse"
)

// DefaultMaxRows caps how many rows a display result carries.
const DefaultMaxRows = 100

// DisplayResult is the client-facing shape of a query result. RowCount is
// the true total; Rows holds at most the first maxRows of them.
type DisplayResult struct {
	Columns      []string         `json:"columns"`
	ColumnTypes  []string         `json:"column_types"`
	Rows         []map[string]any `json:"rows"`
	RowCount     int              `json:"row_count"`
	DisplayCount int              `json:"display_count"`
	Truncated    bool             `json:"truncated"`
}

// Format converts an outcome into a display result, truncating to maxRows
// and normalizing scalar values per the backend column type.
func Format(outcome warehouse.Outcome, maxRows int) DisplayResult {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	total := len(outcome.Rows)
	display := outcome.Rows
	if total > maxRows {
		display = display[:maxRows]
	}

	rows := make([]map[string]any, 0, len(display))
	for _, raw := range display {
		row := make(map[string]any, len(outcome.Columns))
		for i, column := range outcome.Columns {
			dbType := ""
			if i < len(outcome.ColumnTypes) {
				dbType = outcome.ColumnTypes[i]
			}
			row[column] = convertValue(raw[column], dbType)
		}
		rows = append(rows, row)
	}

	return DisplayResult{
		Columns:      outcome.Columns,
		ColumnTypes:  outcome.ColumnTypes,
		Rows:         rows,
		RowCount:     total,
		DisplayCount: len(rows),
		Truncated:    total > maxRows,
	}
}

// convertValue normalizes driver-specific scalars: byte slices become
// strings, exact numerics become float64, dates and timestamps become
// canonical text.
func convertValue(value any, dbType string) any {
	if value == nil {
		return nil
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	upper := strings.ToUpper(dbType)
	switch v := value.(type) {
	case string:
		if isExactNumeric(upper) {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return v
	case time.Time:
		if upper == "DATE" {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return value
	}
}

func isExactNumeric(dbType string) bool {
	return dbType == "NUMERIC" || dbType == "DECIMAL"
}
