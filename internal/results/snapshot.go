package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harrison/specrunner/internal/filelock"
	"github.com/harrison/specrunner/internal/models"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version int                `json:"version"`
	SavedAt time.Time          `json:"saved_at"`
	Files   models.TestResults `json:"files"`
}

// SaveSnapshot writes results to path as JSON under the path's file lock.
func SaveSnapshot(path string, results models.TestResults) error {
	data, err := json.MarshalIndent(snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Files:   results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results snapshot: %w", err)
	}

	if err := filelock.LockAndWrite(path, data); err != nil {
		return fmt.Errorf("failed to write results snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. A missing file
// yields empty results.
func LoadSnapshot(path string) (models.TestResults, error) {
	data, err := filelock.LockAndRead(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.TestResults{}, nil
		}
		return nil, fmt.Errorf("failed to read results snapshot: %w", err)
	}

	var snapshot snapshotFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse results snapshot %s: %w", path, err)
	}
	if snapshot.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported results snapshot version %d in %s", snapshot.Version, path)
	}

	results := models.TestResults{}
	for file, set := range snapshot.Files {
		if set == nil {
			continue
		}
		if set.Results == nil {
			set.Results = make(map[string]*models.LineResult)
		}
		results[file] = set
	}
	return results, nil
}
