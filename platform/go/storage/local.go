package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalArchive writes job reports below a directory. Used for local runs and tests.
type LocalArchive struct {
	dir    string
	envKey string
	now    func() time.Time
}

// NewLocalArchive constructs an archive rooted at dir.
func NewLocalArchive(dir, envKey string) (*LocalArchive, error) {
	if dir == "" {
		return nil, errors.New("report directory is required")
	}
	return &LocalArchive{dir: dir, envKey: envKey, now: time.Now}, nil
}

// Archive writes the report as indented JSON and returns the file path.
func (a *LocalArchive) Archive(_ context.Context, job, runID string, report any) (string, error) {
	loc, err := ResolveReportLocation("", a.envKey, job, runID, a.now())
	if err != nil {
		return "", err
	}

	path := filepath.Join(a.dir, filepath.FromSlash(loc.FullPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Check verifies the directory can be created.
func (a *LocalArchive) Check(context.Context) error {
	return os.MkdirAll(a.dir, 0o755)
}
