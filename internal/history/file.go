package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vitalis-app/dockdash/internal/models"
)

// FilePersister stores the history as one JSON array file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so a crash mid-write leaves the previous file intact.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister for the given file path.
// The parent directory is created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the JSON array. A missing file yields no records.
func (p *FilePersister) Load(ctx context.Context) ([]models.HostMetrics, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	var records []models.HostMetrics
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing history file %s: %w", p.path, err)
	}
	return records, nil
}

// Save replaces the file with the given records.
func (p *FilePersister) Save(ctx context.Context, records []models.HostMetrics) error {
	if records == nil {
		records = []models.HostMetrics{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing history: %w", err)
	}
	if err := os.Chmod(tmpName, 0640); err != nil {
		return fmt.Errorf("setting history permissions: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (p *FilePersister) Close() error { return nil }
