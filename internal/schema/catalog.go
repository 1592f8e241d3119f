package schema

import (
	"fmt"
	"strings"
)

// Column describes one warehouse column as declared in the schema document.
type Column struct {
	Name        string
	DataType    string
	Nullable    bool
	Default     string
	Description string
}

// Table is an ordered set of columns. Column order follows the document so
// prompt rendering stays stable across loads.
type Table struct {
	Name        string
	Description string
	Columns     []Column
}

// Catalog is an immutable snapshot of the warehouse schema. It is replaced
// wholesale on reload, never mutated in place.
type Catalog struct {
	tables []Table
	byName map[string]int
}

func newCatalog(tables []Table) (*Catalog, error) {
	byName := make(map[string]int, len(tables))
	for i, table := range tables {
		if _, ok := byName[table.Name]; ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate table %q", table.Name)}
		}
		byName[table.Name] = i
	}
	return &Catalog{tables: tables, byName: byName}, nil
}

// Tables returns the tables in document order.
func (c *Catalog) Tables() []Table {
	return c.tables
}

// Table returns the named table, if present.
func (c *Catalog) Table(name string) (Table, bool) {
	index, ok := c.byName[name]
	if !ok {
		return Table{}, false
	}
	return c.tables[index], true
}

// TableCount returns the number of tables in the snapshot.
func (c *Catalog) TableCount() int {
	return len(c.tables)
}

// ColumnCount returns the total number of columns across all tables.
func (c *Catalog) ColumnCount() int {
	total := 0
	for _, table := range c.tables {
		total += len(table.Columns)
	}
	return total
}

// PromptText renders the catalog as the DATABASE SCHEMA block handed to the
// SQL generator: one line per column with type, nullability and default.
func (c *Catalog) PromptText() string {
	if len(c.tables) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("DATABASE SCHEMA:")
	for _, table := range c.tables {
		b.WriteString("\n\nTable: ")
		b.WriteString(table.Name)
		if desc := strings.TrimSpace(table.Description); desc != "" {
			b.WriteString("\nDescription: ")
			b.WriteString(desc)
		}
		for _, column := range table.Columns {
			b.WriteString("\n  - ")
			b.WriteString(column.Name)
			if column.DataType != "" {
				b.WriteString(": ")
				b.WriteString(column.DataType)
			}
			if column.Nullable {
				b.WriteString(" NULL")
			} else {
				b.WriteString(" NOT NULL")
			}
			if column.Default != "" {
				b.WriteString(" DEFAULT ")
				b.WriteString(column.Default)
			}
			if desc := strings.TrimSpace(column.Description); desc != "" {
				b.WriteString(" -- ")
				b.WriteString(desc)
			}
		}
	}
	b.WriteString("\n")
	return b.String()
}

// TableSummary lists the column names of one table.
type TableSummary struct {
	ColumnCount int      `json:"column_count"`
	Columns     []string `json:"columns"`
}

// Summary reports table and column counts for the loaded snapshot.
type Summary struct {
	TableCount   int                     `json:"table_count"`
	TotalColumns int                     `json:"total_columns"`
	Tables       map[string]TableSummary `json:"tables"`
}

// Summarize builds a Summary of the snapshot.
func (c *Catalog) Summarize() Summary {
	summary := Summary{
		TableCount:   c.TableCount(),
		TotalColumns: c.ColumnCount(),
		Tables:       make(map[string]TableSummary, len(c.tables)),
	}
	for _, table := range c.tables {
		names := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			names = append(names, column.Name)
		}
		summary.Tables[table.Name] = TableSummary{ColumnCount: len(table.Columns), Columns: names}
	}
	return summary
}
