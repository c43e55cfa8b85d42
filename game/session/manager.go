package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
	ErrRecordNotFound       = errors.New("record not found")
)

// ConfigResolver picks the configuration for a session restored from a record.
type ConfigResolver func(mode engine.Mode) *engine.GameConfig

// Manager handles game session lifecycle
type Manager struct {
	sessions    map[string]*service.Session
	persistence SessionPersistence
	resolve     ConfigResolver
	mu          sync.RWMutex
}

var _ service.SessionManager = (*Manager)(nil)

// NewManager creates a new in-memory session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*service.Session),
		resolve:  engine.DefaultConfig,
	}
}

// NewManagerWithPersistence creates a session manager whose sessions survive
// restarts. resolve may be nil, in which case the built-in configs are used.
func NewManagerWithPersistence(persistence SessionPersistence, resolve ConfigResolver) *Manager {
	if resolve == nil {
		resolve = engine.DefaultConfig
	}
	return &Manager{
		sessions:    make(map[string]*service.Session),
		persistence: persistence,
		resolve:     resolve,
	}
}

// Create creates a new session with the given ID and configuration
func (m *Manager) Create(id, configID string, config *engine.GameConfig, opts ...engine.Option) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.generateSessionID()
	} else if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	id = strings.ToLower(id)

	if _, exists := m.sessions[id]; exists {
		return nil, ErrSessionAlreadyExists
	}

	eng, err := engine.NewSession(config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	now := time.Now()
	sess := &service.Session{
		ID:             id,
		ConfigID:       configID,
		Engine:         eng,
		Config:         config,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	m.sessions[id] = sess
	return sess, nil
}

// Get retrieves a session by ID (case-insensitive), restoring it from
// persistence when it is not in memory
func (m *Manager) Get(id string) (*service.Session, error) {
	id = strings.ToLower(id)

	m.mu.RLock()
	sess, exists := m.sessions[id]
	m.mu.RUnlock()
	if exists {
		return sess, nil
	}

	if m.persistence == nil || !m.persistence.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, exists := m.sessions[id]; exists {
		return sess, nil
	}
	sess, err := m.restore(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	m.sessions[id] = sess
	return sess, nil
}

// restore rebuilds a paused session from its persisted record.
func (m *Manager) restore(id string) (*service.Session, error) {
	rec, err := m.persistence.Load(id)
	if err != nil {
		return nil, err
	}

	config := m.resolve(rec.Mode)
	eng, err := engine.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := eng.Pause(); err != nil {
		return nil, err
	}
	if err := eng.Load(rec); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}

	now := time.Now()
	return &service.Session{
		ID:             id,
		ConfigID:       config.Name,
		Engine:         eng,
		Config:         config,
		CreatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

// List returns all sessions in memory
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess)
	}
	return result
}

// Delete shuts a session down and removes it from memory and persistence
func (m *Manager) Delete(id string) error {
	id = strings.ToLower(id)

	m.mu.Lock()
	sess, inMemory := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if inMemory {
		shutdown(sess)
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}

	if !inMemory {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// DeleteFromMemory shuts a session down and drops it from memory only
func (m *Manager) DeleteFromMemory(id string) error {
	id = strings.ToLower(id)

	m.mu.Lock()
	sess, exists := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	shutdown(sess)
	return nil
}

// CleanupExpiredSessions shuts down and removes sessions that haven't been
// accessed in the given duration
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*service.Session
	for id, sess := range m.sessions {
		if sess.Touched().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		shutdown(sess)
	}
	return len(expired)
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID generates a random unused 4-character session ID.
// Callers hold the write lock.
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 2)
	for {
		rand.Read(bytes)
		id := hex.EncodeToString(bytes)
		if _, taken := m.sessions[id]; !taken {
			return id
		}
	}
}

// LoadPersistedSessions restores every persisted session into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		id = strings.ToLower(id)
		if _, exists := m.sessions[id]; exists {
			continue
		}
		sess, err := m.restore(id)
		if err != nil {
			log.WithError(err).WithField("session", id).Warn("failed to load persisted session")
			continue
		}
		m.sessions[id] = sess
		loaded++
	}

	if loaded > 0 {
		log.WithField("count", loaded).Info("loaded persisted sessions")
	}
	return nil
}

// SaveAllSessions persists every unfinished session under its own id.
// Running sessions are paused for the save and resumed afterwards.
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	errorCount := 0
	for _, sess := range m.List() {
		var rec *engine.Record
		err := sess.Do(func(e engine.Engine) error {
			if e.Over() {
				return nil
			}
			var err error
			rec, err = saveRunning(e)
			return err
		})
		if err == nil && rec != nil {
			err = m.persistence.Save(sess.ID, rec)
		}
		if err != nil {
			log.WithError(err).WithField("session", sess.ID).Warn("failed to save session")
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}
	return nil
}

func saveRunning(e engine.Engine) (*engine.Record, error) {
	wasRunning := !e.Paused()
	if wasRunning {
		if err := e.Pause(); err != nil {
			return nil, err
		}
		defer e.Resume()
	}
	return e.Save()
}

func shutdown(sess *service.Session) {
	_ = sess.Do(func(e engine.Engine) error {
		e.Shutdown()
		return nil
	})
}
