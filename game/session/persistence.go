package session

import (
	"bytes"
	"fmt"

	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
)

// SessionPersistence defines the interface for persisting game records.
// Both session snapshots and saved games use it.
type SessionPersistence interface {
	// Save persists a record under id, replacing any previous one
	Save(id string, rec *engine.Record) error

	// Load retrieves a record by id
	Load(id string) (*engine.Record, error)

	// Delete removes a record from storage
	Delete(id string) error

	// ListAll returns all persisted ids
	ListAll() ([]string, error)

	// Exists checks if a record exists in storage
	Exists(id string) bool
}

var (
	_ service.RecordStore = (*FilePersistence)(nil)
	_ service.RecordStore = (*RedisPersistence)(nil)
	_ service.RecordStore = (*PostgresPersistence)(nil)
)

// validID reports whether id is safe to use as a file name or key suffix.
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func encode(rec *engine.Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}
	return rec.MarshalText()
}

func decode(id string, data []byte) (*engine.Record, error) {
	rec, err := engine.DecodeRecord(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return rec, nil
}
