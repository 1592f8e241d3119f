// Package export serializes display results to parquet and optionally
// publishes them to object storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/warechat/warechat/internal/format"
	"github.com/warechat/warechat/internal/storage"
)

// Parquet encodes a display result into a parquet file. The file schema is
// derived from the backend column types; every column is optional because
// SQL results carry NULLs.
func Parquet(result format.DisplayResult) ([]byte, error) {
	if len(result.Columns) == 0 {
		return nil, fmt.Errorf("result has no columns")
	}

	group := parquet.Group{}
	for i, column := range result.Columns {
		group[column] = parquet.Optional(nodeForType(columnType(result, i)))
	}
	schema := parquet.NewSchema("query_result", group)

	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		encoded := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			encoded[column] = coerce(row[column], columnType(result, i))
		}
		rows = append(rows, encoded)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[map[string]any](buf, schema)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func columnType(result format.DisplayResult, i int) string {
	if i < len(result.ColumnTypes) {
		return result.ColumnTypes[i]
	}
	return ""
}

func nodeForType(dbType string) parquet.Node {
	switch kind(dbType) {
	case kindInt:
		return parquet.Int(64)
	case kindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

type typeKind int

const (
	kindString typeKind = iota
	kindInt
	kindFloat
	kindBool
)

func kind(dbType string) typeKind {
	switch upper := strings.ToUpper(dbType); {
	case strings.Contains(upper, "INT"):
		return kindInt
	case upper == "NUMERIC" || upper == "DECIMAL" || upper == "REAL" ||
		strings.Contains(upper, "FLOAT") || strings.Contains(upper, "DOUBLE"):
		return kindFloat
	case strings.Contains(upper, "BOOL"):
		return kindBool
	default:
		return kindString
	}
}

// coerce aligns a display value with its parquet column type. Values that
// cannot be aligned are stringified rather than dropped.
func coerce(value any, dbType string) any {
	if value == nil {
		return nil
	}
	switch kind(dbType) {
	case kindInt:
		switch v := value.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case float64:
			return int64(v)
		}
	case kindFloat:
		switch v := value.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	case kindBool:
		if v, ok := value.(bool); ok {
			return v
		}
	default:
		if v, ok := value.(string); ok {
			return v
		}
	}
	return fmt.Sprint(value)
}

// Uploader writes exported files to the shared object store.
type Uploader struct {
	store  storage.ObjectStore
	prefix string
}

func NewUploader(store storage.ObjectStore, prefix string) *Uploader {
	return &Uploader{store: store, prefix: strings.Trim(prefix, "/")}
}

// Upload stores an export under a date-partitioned timestamped key and
// returns the stored object's info.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte) (storage.ObjectInfo, error) {
	key, err := storage.BuildExportKey(u.prefix, name, time.Now())
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := u.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload export %s: %w", key, err)
	}
	return info, nil
}
