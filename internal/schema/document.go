package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValidationError reports the first structural defect found in a schema
// document. The document is rejected wholesale; bad entries are never
// silently dropped.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid schema document: " + e.Reason
}

type columnDoc struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Nullable    *bool  `yaml:"nullable"`
	Default     string `yaml:"default"`
	Description string `yaml:"description"`
}

type tableDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Columns     yaml.Node `yaml:"columns"`
}

// Parse decodes a YAML schema document into a Catalog. The document must be
// a mapping with a `tables` collection, given either as a list of
// {name, columns} objects or as a mapping of table name to columns. Each
// column needs at least a name; type, nullable, default and description are
// optional with defaults of no type, nullable and empty.
func Parse(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, &ValidationError{Reason: "document is empty"}
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &ValidationError{Reason: "document must be a mapping"}
	}

	var tablesNode *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "tables" {
			tablesNode = doc.Content[i+1]
			break
		}
	}
	if tablesNode == nil {
		return nil, &ValidationError{Reason: "missing 'tables' key"}
	}

	var tables []Table
	switch tablesNode.Kind {
	case yaml.SequenceNode:
		for i, item := range tablesNode.Content {
			var table tableDoc
			if err := item.Decode(&table); err != nil {
				return nil, &ValidationError{Reason: fmt.Sprintf("table %d must be a mapping", i)}
			}
			if table.Name == "" {
				return nil, &ValidationError{Reason: fmt.Sprintf("table %d missing 'name'", i)}
			}
			if table.Columns.Kind != 0 && table.Columns.Kind != yaml.SequenceNode {
				return nil, &ValidationError{Reason: fmt.Sprintf("columns for table %q must be a list", table.Name)}
			}
			columns, err := decodeColumns(table.Name, table.Columns.Content)
			if err != nil {
				return nil, err
			}
			tables = append(tables, Table{Name: table.Name, Description: table.Description, Columns: columns})
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(tablesNode.Content); i += 2 {
			name := tablesNode.Content[i].Value
			columnsNode := tablesNode.Content[i+1]
			if columnsNode.Kind != yaml.SequenceNode {
				return nil, &ValidationError{Reason: fmt.Sprintf("columns for table %q must be a list", name)}
			}
			columns, err := decodeColumns(name, columnsNode.Content)
			if err != nil {
				return nil, err
			}
			tables = append(tables, Table{Name: name, Columns: columns})
		}
	default:
		return nil, &ValidationError{Reason: "'tables' must be a list or a mapping"}
	}

	return newCatalog(tables)
}

func decodeColumns(tableName string, nodes []*yaml.Node) ([]Column, error) {
	columns := make([]Column, 0, len(nodes))
	for i, node := range nodes {
		var column columnDoc
		if err := node.Decode(&column); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("column %d in table %q must be a mapping", i, tableName)}
		}
		if column.Name == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("column %d in table %q missing 'name'", i, tableName)}
		}
		nullable := true
		if column.Nullable != nil {
			nullable = *column.Nullable
		}
		columns = append(columns, Column{
			Name:        column.Name,
			DataType:    column.Type,
			Nullable:    nullable,
			Default:     column.Default,
			Description: column.Description,
		})
	}
	return columns, nil
}
