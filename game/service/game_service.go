package service

import (
	"context"
	"sync"
	"time"

	"github.com/wricardo/qlink/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Input
	Move(ctx context.Context, sessionID string, player, dx, dy int) (*ActionResponse, error)
	Activate(ctx context.Context, sessionID string, player int, pos engine.Position) (*ActionResponse, error)
	Point(ctx context.Context, sessionID string, player int, pos engine.Position) (*ActionResponse, error)

	// Clock
	Pause(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	Resume(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	TickAll(ctx context.Context) []*TickUpdate

	// Persistence
	SaveGame(ctx context.Context, sessionID string) (*SaveInfo, error)
	LoadGame(ctx context.Context, sessionID, saveID string) (*engine.Snapshot, error)
	ExportRecord(ctx context.Context, sessionID string) ([]byte, error)
	ListSaves(ctx context.Context) ([]string, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.GameConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configID string, config *engine.GameConfig, opts ...engine.Option) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
}

// ConfigManager handles game configuration loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.GameConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.GameConfig
	DefaultFor(mode engine.Mode) *engine.GameConfig
	SaveConfig(name string, config *engine.GameConfig) error
}

// RecordStore keeps saved games, keyed by save id.
type RecordStore interface {
	Save(id string, rec *engine.Record) error
	Load(id string) (*engine.Record, error)
	Delete(id string) error
	ListAll() ([]string, error)
	Exists(id string) bool
}

// Session represents an active game session. The engine is not safe for
// concurrent use, so every access goes through Do.
type Session struct {
	ID             string
	ConfigID       string
	Engine         engine.Engine
	Config         *engine.GameConfig
	CreatedAt      time.Time
	LastAccessedAt time.Time

	mu sync.Mutex
}

// Do runs fn with exclusive access to the engine and marks the session accessed.
func (s *Session) Do(fn func(e engine.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAccessedAt = time.Now()
	return fn(s.Engine)
}

// Touched returns when the session was last accessed.
func (s *Session) Touched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastAccessedAt
}
