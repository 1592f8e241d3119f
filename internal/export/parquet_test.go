package export

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/warechat/warechat/internal/format"
	"github.com/warechat/warechat/internal/storage"
)

func sampleResult() format.DisplayResult {
	return format.DisplayResult{
		Columns:     []string{"full_name", "num_hr", "batting_avg"},
		ColumnTypes: []string{"TEXT", "INT8", "NUMERIC"},
		Rows: []map[string]any{
			{"full_name": "Aaron Judge", "num_hr": int64(62), "batting_avg": 0.311},
			{"full_name": "Shohei Ohtani", "num_hr": int64(54), "batting_avg": nil},
		},
		RowCount:     2,
		DisplayCount: 2,
	}
}

func TestParquetRoundTrip(t *testing.T) {
	data, err := Parquet(sampleResult())
	if err != nil {
		t.Fatalf("Parquet() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", file.NumRows())
	}

	fields := file.Schema().Fields()
	names := make(map[string]bool, len(fields))
	for _, field := range fields {
		names[field.Name()] = true
	}
	for _, column := range []string{"full_name", "num_hr", "batting_avg"} {
		if !names[column] {
			t.Fatalf("schema missing column %q, have %v", column, names)
		}
	}
}

func TestParquetRejectsColumnlessResult(t *testing.T) {
	if _, err := Parquet(format.DisplayResult{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParquetEmptyRowsStillProducesFile(t *testing.T) {
	result := sampleResult()
	result.Rows = nil
	data, err := Parquet(result)
	if err != nil {
		t.Fatalf("Parquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.OpenFile() error = %v", err)
	}
	if file.NumRows() != 0 {
		t.Fatalf("NumRows() = %d, want 0", file.NumRows())
	}
}

func TestCoerceStringifiesMismatches(t *testing.T) {
	if got := coerce(int64(5), "TEXT"); got != "5" {
		t.Fatalf("coerce(5, TEXT) = %v", got)
	}
	if got := coerce("62", "INT8"); got != "62" {
		t.Fatalf("coerce(\"62\", INT8) = %v", got)
	}
	if got := coerce(0.5, "DOUBLE"); got != 0.5 {
		t.Fatalf("coerce(0.5, DOUBLE) = %v", got)
	}
}

type capturingStore struct {
	key  string
	body []byte
	opts storage.PutOptions
}

func (s *capturingStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.key = key
	s.body = data
	s.opts = opts
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *capturingStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (s *capturingStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func TestUploaderWritesUnderPrefix(t *testing.T) {
	store := &capturingStore{}
	uploader := NewUploader(store, "/exports/")

	info, err := uploader.Upload(context.Background(), "homers", []byte("data"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(store.key, "exports/date=") || !strings.HasSuffix(store.key, "-homers.parquet") {
		t.Fatalf("key = %q", store.key)
	}
	if string(store.body) != "data" {
		t.Fatalf("body = %q", store.body)
	}
	if store.opts.ContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", store.opts.ContentType)
	}
	if info.Key != store.key {
		t.Fatalf("info.Key = %q, want %q", info.Key, store.key)
	}
}
