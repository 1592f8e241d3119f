package schema

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/warechat/warechat/internal/storage"
)

// Marker is an opaque modification marker for a schema source. A snapshot is
// reloaded only when the source marker advances past the loaded one.
type Marker struct {
	ModTime time.Time
	ETag    string
}

// After reports whether m is newer than other.
func (m Marker) After(other Marker) bool {
	if m.ModTime.After(other.ModTime) {
		return true
	}
	return m.ETag != "" && m.ETag != other.ETag
}

// Source supplies the raw schema document and its modification marker.
type Source interface {
	Fetch(ctx context.Context) ([]byte, Marker, error)
	Stat(ctx context.Context) (Marker, error)
}

// FileSource reads the schema document from the local filesystem and uses
// the file mtime as the modification marker.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) ([]byte, Marker, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, Marker{}, fmt.Errorf("stat schema file %q: %w", s.Path, err)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, Marker{}, fmt.Errorf("read schema file %q: %w", s.Path, err)
	}
	return data, Marker{ModTime: info.ModTime()}, nil
}

func (s FileSource) Stat(_ context.Context) (Marker, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return Marker{}, fmt.Errorf("stat schema file %q: %w", s.Path, err)
	}
	return Marker{ModTime: info.ModTime()}, nil
}

// ObjectSource reads the schema document from the object store and uses the
// object's last-modified time and ETag as the modification marker.
type ObjectSource struct {
	Store storage.ObjectStore
	Key   string
}

func (s ObjectSource) Fetch(ctx context.Context) ([]byte, Marker, error) {
	info, err := s.Store.Stat(ctx, s.Key)
	if err != nil {
		return nil, Marker{}, fmt.Errorf("stat schema object %q: %w", s.Key, err)
	}
	reader, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return nil, Marker{}, fmt.Errorf("get schema object %q: %w", s.Key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, Marker{}, fmt.Errorf("read schema object %q: %w", s.Key, err)
	}
	return data, Marker{ModTime: info.LastModified, ETag: info.ETag}, nil
}

func (s ObjectSource) Stat(ctx context.Context) (Marker, error) {
	info, err := s.Store.Stat(ctx, s.Key)
	if err != nil {
		return Marker{}, fmt.Errorf("stat schema object %q: %w", s.Key, err)
	}
	return Marker{ModTime: info.LastModified, ETag: info.ETag}, nil
}
