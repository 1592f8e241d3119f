package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportKey places a result export under a date-partitioned prefix:
// <prefix>/date=YYYY-MM-DD/<timestamp>-<name>.parquet
func BuildExportKey(prefix, name string, exportedAt time.Time) (string, error) {
	if err := validateKeyComponent(name, "export name"); err != nil {
		return "", err
	}
	ts := exportedAt.UTC()
	key := path.Join(
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%s.parquet", ts.Format("20060102T150405Z"), name),
	)
	if prefix == "" {
		return key, nil
	}
	if err := validateKeyComponent(prefix, "export prefix"); err != nil {
		return "", err
	}
	return path.Join(prefix, key), nil
}

func validateKeyComponent(value, field string) error {
	if !keyComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
