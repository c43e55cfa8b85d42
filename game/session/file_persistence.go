package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/qlink/game/engine"
)

const recordExt = ".txt"

// FilePersistence implements SessionPersistence using one text record per file
type FilePersistence struct {
	dir string
}

// NewFilePersistence creates a new file-based persistence layer rooted at dir
func NewFilePersistence(dir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	return &FilePersistence{dir: dir}, nil
}

// Dir returns the directory holding the records.
func (fp *FilePersistence) Dir() string { return fp.dir }

// Save writes the record through a temporary file so readers never see a partial record
func (fp *FilePersistence) Save(id string, rec *engine.Record) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(fp.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fp.getFilePath(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move record file: %w", err)
	}
	return nil
}

// Load reads and decodes a record file
func (fp *FilePersistence) Load(id string) (*engine.Record, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	data, err := os.ReadFile(fp.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	return decode(id, data)
}

// Delete removes a record file
func (fp *FilePersistence) Delete(id string) error {
	if !fp.Exists(id) {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err := os.Remove(fp.getFilePath(id)); err != nil {
		return fmt.Errorf("failed to remove record file: %w", err)
	}
	return nil
}

// ListAll returns the ids of all record files, sorted
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if id, ok := strings.CutSuffix(name, recordExt); ok && validID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists checks if a record file exists
func (fp *FilePersistence) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(fp.getFilePath(id))
	return err == nil
}

func (fp *FilePersistence) getFilePath(id string) string {
	return filepath.Join(fp.dir, id+recordExt)
}
