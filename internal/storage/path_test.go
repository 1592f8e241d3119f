package storage

import (
	"testing"
	"time"
)

func TestBuildExportKey(t *testing.T) {
	exportedAt := time.Date(2026, time.August, 1, 13, 30, 5, 0, time.UTC)
	key, err := BuildExportKey("exports", "homers", exportedAt)
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	want := "exports/date=2026-08-01/20260801T133005Z-homers.parquet"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestBuildExportKeyWithoutPrefix(t *testing.T) {
	key, err := BuildExportKey("", "homers", time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildExportKey() error = %v", err)
	}
	if key != "date=2026-08-01/20260801T000000Z-homers.parquet" {
		t.Fatalf("key = %q", key)
	}
}

func TestBuildExportKeyRejectsInvalidComponents(t *testing.T) {
	now := time.Now()
	if _, err := BuildExportKey("exports", "../escape", now); err == nil {
		t.Fatal("expected error for traversal in name")
	}
	if _, err := BuildExportKey("a/b", "homers", now); err == nil {
		t.Fatal("expected error for slash in prefix")
	}
	if _, err := BuildExportKey("exports", "", now); err == nil {
		t.Fatal("expected error for empty name")
	}
}
