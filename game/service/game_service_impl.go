package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/qlink/game/engine"
)

// ErrSavesDisabled is returned by save operations when no record store is configured.
var ErrSavesDisabled = errors.New("saved games are not configured")

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	saves    RecordStore
}

// NewGameService creates a new game service instance. saves may be nil.
func NewGameService(sessions SessionManager, configs ConfigManager, saves RecordStore) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		saves:    saves,
	}
}

// resolveConfig picks the configuration for a new session.
func (s *gameServiceImpl) resolveConfig(req CreateSessionRequest) (string, *engine.GameConfig, error) {
	if req.Mode != "" {
		mode, err := engine.ParseMode(string(req.Mode))
		if err != nil {
			return "", nil, err
		}
		req.Mode = mode
	}

	if req.ConfigID == "" {
		config := s.configs.GetDefault()
		if req.Mode != "" {
			config = s.configs.DefaultFor(req.Mode)
		}
		return config.Name, config, nil
	}

	config, err := s.configs.LoadConfig(req.ConfigID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config %s: %w", req.ConfigID, err)
	}
	if req.Mode != "" && config.Mode != req.Mode {
		return "", nil, fmt.Errorf("%w: config %s is a %s game", engine.ErrModeMismatch, req.ConfigID, config.Mode)
	}
	return req.ConfigID, config, nil
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	configID, config, err := s.resolveConfig(req)
	if err != nil {
		return nil, err
	}

	var opts []engine.Option
	if req.Seed != nil {
		opts = append(opts, engine.WithSeed(*req.Seed))
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", configID, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.WithFields(log.Fields{"session": sess.ID, "config": configID, "mode": config.Mode}).Info("session created")
	return s.info(sess), nil
}

func (s *gameServiceImpl) info(sess *Session) *SessionInfo {
	info := &SessionInfo{
		ID:         sess.ID,
		ConfigName: sess.ConfigID,
		CreatedAt:  sess.CreatedAt,
		GameConfig: sess.Config,
	}
	_ = sess.Do(func(e engine.Engine) error {
		info.Mode = e.Mode()
		info.GameState = e.Snapshot()
		return nil
	})
	info.LastAccessedAt = sess.Touched()
	return info
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return s.info(sess), nil
}

// ListSessions returns all active sessions, oldest first
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	log.WithField("session", sessionID).Info("session deleted")
	return nil
}

// act runs one input against a session and packages the outcome.
func (s *gameServiceImpl) act(sessionID string, fn func(e engine.Engine) (*engine.ActionResult, error)) (*ActionResponse, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	var resp ActionResponse
	err = sess.Do(func(e engine.Engine) error {
		res, err := fn(e)
		if err != nil {
			return err
		}
		resp.Result = res
		resp.GameState = e.Snapshot()
		resp.Message = describe(res)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Result.GameOver {
		logGameOver(sessionID, resp.GameState.Result)
	}
	return &resp, nil
}

// Move steps a player's cursor by one cell
func (s *gameServiceImpl) Move(ctx context.Context, sessionID string, player, dx, dy int) (*ActionResponse, error) {
	return s.act(sessionID, func(e engine.Engine) (*engine.ActionResult, error) {
		return e.Move(player, dx, dy)
	})
}

// Activate selects or matches the tile at pos
func (s *gameServiceImpl) Activate(ctx context.Context, sessionID string, player int, pos engine.Position) (*ActionResponse, error) {
	return s.act(sessionID, func(e engine.Engine) (*engine.ActionResult, error) {
		return e.Activate(player, pos)
	})
}

// Point spends a player's teleport on pos
func (s *gameServiceImpl) Point(ctx context.Context, sessionID string, player int, pos engine.Position) (*ActionResponse, error) {
	return s.act(sessionID, func(e engine.Engine) (*engine.ActionResult, error) {
		return e.Point(player, pos)
	})
}

func (s *gameServiceImpl) withEngine(sessionID string, fn func(e engine.Engine) error) (*engine.Snapshot, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	var snap *engine.Snapshot
	err = sess.Do(func(e engine.Engine) error {
		if err := fn(e); err != nil {
			return err
		}
		snap = e.Snapshot()
		return nil
	})
	return snap, err
}

// Pause freezes the clock and every timer of a session
func (s *gameServiceImpl) Pause(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.withEngine(sessionID, func(e engine.Engine) error { return e.Pause() })
}

// Resume restarts a paused session
func (s *gameServiceImpl) Resume(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.withEngine(sessionID, func(e engine.Engine) error { return e.Resume() })
}

// GetGameState returns a snapshot of a session
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.withEngine(sessionID, func(engine.Engine) error { return nil })
}

// TickAll advances every running session by one second. Paused and finished
// sessions are skipped and produce no update.
func (s *gameServiceImpl) TickAll(ctx context.Context) []*TickUpdate {
	var updates []*TickUpdate
	for _, sess := range s.sessions.List() {
		if ctx.Err() != nil {
			break
		}
		var update *TickUpdate
		sess.mu.Lock()
		e := sess.Engine
		if !e.Paused() && !e.Over() {
			if err := e.Tick(); err != nil {
				log.WithError(err).WithField("session", sess.ID).Warn("tick failed")
			} else {
				update = &TickUpdate{SessionID: sess.ID, GameState: e.Snapshot(), Ended: e.Over()}
			}
		}
		sess.mu.Unlock()

		if update == nil {
			continue
		}
		if update.Ended {
			logGameOver(sess.ID, update.GameState.Result)
		}
		updates = append(updates, update)
	}
	return updates
}

// paused runs fn with the session paused, resuming afterwards when the
// session was running before.
func paused(e engine.Engine, fn func() error) error {
	if e.Over() {
		return engine.ErrSessionOver
	}
	wasRunning := !e.Paused()
	if wasRunning {
		if err := e.Pause(); err != nil {
			return err
		}
	}
	err := fn()
	if wasRunning {
		if rerr := e.Resume(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func (s *gameServiceImpl) capture(sessionID string) (*Session, *engine.Record, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session not found: %w", err)
	}
	var rec *engine.Record
	err = sess.Do(func(e engine.Engine) error {
		return paused(e, func() error {
			var err error
			rec, err = e.Save()
			return err
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return sess, rec, nil
}

// SaveGame stores the current state of a session under a fresh save id
func (s *gameServiceImpl) SaveGame(ctx context.Context, sessionID string) (*SaveInfo, error) {
	if s.saves == nil {
		return nil, ErrSavesDisabled
	}
	sess, rec, err := s.capture(sessionID)
	if err != nil {
		return nil, err
	}

	saveID := uuid.NewString()
	if err := s.saves.Save(saveID, rec); err != nil {
		return nil, fmt.Errorf("failed to store save %s: %w", saveID, err)
	}

	log.WithFields(log.Fields{"session": sess.ID, "save": saveID}).Info("game saved")
	return &SaveInfo{SaveID: saveID, SessionID: sess.ID, Mode: rec.Mode, SavedAt: time.Now()}, nil
}

// LoadGame replaces a session's state with a stored record
func (s *gameServiceImpl) LoadGame(ctx context.Context, sessionID, saveID string) (*engine.Snapshot, error) {
	if s.saves == nil {
		return nil, ErrSavesDisabled
	}
	rec, err := s.saves.Load(saveID)
	if err != nil {
		return nil, fmt.Errorf("failed to read save %s: %w", saveID, err)
	}

	snap, err := s.withEngine(sessionID, func(e engine.Engine) error {
		return paused(e, func() error { return e.Load(rec) })
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load save %s: %w", saveID, err)
	}

	log.WithFields(log.Fields{"session": sessionID, "save": saveID}).Info("game loaded")
	return snap, nil
}

// ExportRecord returns the text record of a session
func (s *gameServiceImpl) ExportRecord(ctx context.Context, sessionID string) ([]byte, error) {
	_, rec, err := s.capture(sessionID)
	if err != nil {
		return nil, err
	}
	return rec.MarshalText()
}

// ListSaves returns the ids of all stored records
func (s *gameServiceImpl) ListSaves(ctx context.Context) ([]string, error) {
	if s.saves == nil {
		return nil, ErrSavesDisabled
	}
	ids, err := s.saves.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list saves: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListConfigs returns available configurations
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig returns a configuration by name
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig stores a configuration under configName
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.GameConfig) error {
	if err := s.configs.SaveConfig(configName, config); err != nil {
		return err
	}
	log.WithField("config", configName).Info("config saved")
	return nil
}

func logGameOver(sessionID string, res *engine.Result) {
	if res == nil {
		return
	}
	log.WithFields(log.Fields{
		"session": sessionID,
		"reason":  res.Reason,
		"scores":  res.Scores,
		"winner":  res.Winner,
	}).Info("game over")
}
