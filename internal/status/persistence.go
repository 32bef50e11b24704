package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=persistence.go Persistence

// StatusFileName is the name of the status file in the data directory.
const StatusFileName = "last-run.json"

// Persistence stores run records.
type Persistence interface {
	// SaveStatus creates or replaces the record for status.RunID.
	SaveStatus(ctx context.Context, status *RunStatus) error

	// LoadLatest returns the most recently started run, or nil when no
	// run was ever recorded.
	LoadLatest(ctx context.Context) (*RunStatus, error)
}

// fileStatusPersistence keeps the latest run in a JSON file.
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence stores the latest run under basePath.
func NewFileStatusPersistence(basePath string) Persistence {
	return &fileStatusPersistence{basePath: basePath}
}

// SaveStatus writes the record atomically through a temporary file.
func (f *fileStatusPersistence) SaveStatus(_ context.Context, status *RunStatus) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status for run %s: %w", status.RunID, err)
	}

	filePath := filepath.Join(f.basePath, StatusFileName)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}
	return nil
}

// LoadLatest implements Persistence.
func (f *fileStatusPersistence) LoadLatest(_ context.Context) (*RunStatus, error) {
	filePath := filepath.Join(f.basePath, StatusFileName)

	// #nosec G304 -- path is built from the configured data directory
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status RunStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status file: %w", err)
	}
	return &status, nil
}
