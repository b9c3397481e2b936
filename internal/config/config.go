// Package config resolves fetchd's state directory and validates the
// CLI's numeric flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const dirName = "fetchd"

// GetStateDir returns the directory fetchd uses for logs, the job
// history database, and the instance lock. Honors XDG_CONFIG_HOME.
func GetStateDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, dirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+dirName)
	}
	return filepath.Join(home, "."+dirName)
}

// GetLogsDir returns the directory debug logs are written to.
func GetLogsDir() string {
	return filepath.Join(GetStateDir(), "logs")
}

// EnsureDirs creates the state directory tree if it does not exist.
func EnsureDirs() error {
	if err := os.MkdirAll(GetStateDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.MkdirAll(GetLogsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	return nil
}

var speedLimitPattern = regexp.MustCompile(`^\d+(k|K|m|M)?$`)

// ParseSpeedLimit parses the -l flag: digits optionally suffixed by
// k/K (x1024) or m/M (x1024^2). Zero is invalid.
func ParseSpeedLimit(s string) (int64, error) {
	if !speedLimitPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid speed limit %q: must match ^\\d+(k|K|m|M)?$", s)
	}

	suffix := s[len(s)-1]
	numPart := s
	multiplier := int64(1)
	if suffix == 'k' || suffix == 'K' || suffix == 'm' || suffix == 'M' {
		numPart = s[:len(s)-1]
		if suffix == 'k' || suffix == 'K' {
			multiplier = 1024
		} else {
			multiplier = 1024 * 1024
		}
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid speed limit %q: %w", s, err)
	}
	limit := n * multiplier
	if limit == 0 {
		return 0, fmt.Errorf("invalid speed limit %q: zero is not allowed", s)
	}
	return limit, nil
}

// ValidateConcurrency checks the -n flag: a non-negative integer.
func ValidateConcurrency(n int) error {
	if n < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", n)
	}
	return nil
}

// CleanOutputPath trims trailing separators so task filenames can be
// joined onto it unambiguously.
func CleanOutputPath(p string) string {
	return strings.TrimRight(p, "/\\")
}
