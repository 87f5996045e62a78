// JSON file Persister.
//
// Information Hiding:
// - Record encoded as one JSON object keyed by conversation id
// - Writes go to a temp file in the same directory, fsync, then rename
// - Unknown fields in the file are ignored on load

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister stores the record as a JSON file.
type FilePersister struct {
	path string
	perm os.FileMode
}

// NewFilePersister creates a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path, perm: 0o600}
}

// Path returns the record file location.
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads and decodes the record file.
func (p *FilePersister) Load(ctx context.Context) (Record, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, p.path, err)
	}
	if record == nil {
		record = Record{}
	}
	return record, nil
}

// Save encodes the record and atomically replaces the file.
func (p *FilePersister) Save(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return writeFileAtomic(p.path, data, p.perm)
}

// Quarantine renames the record file to <path>.corrupt-<suffix>.
func (p *FilePersister) Quarantine(ctx context.Context, suffix string) (string, error) {
	dest := p.path + ".corrupt-" + suffix
	if err := os.Rename(p.path, dest); err != nil {
		return "", fmt.Errorf("failed to move record aside: %w", err)
	}
	return dest, nil
}

// writeFileAtomic leaves either the old file or the complete new one at path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}

	committed = true
	return nil
}

// Verify FilePersister implements Persister and Quarantiner
var (
	_ Persister   = (*FilePersister)(nil)
	_ Quarantiner = (*FilePersister)(nil)
)
