package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/qlink/game/config"
	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
	"github.com/wricardo/qlink/game/session"
	"github.com/wricardo/qlink/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server. It installs itself as the command
// handler of hub, which may be nil.
func NewServer(gameService service.GameService, hub *websocket.Hub) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
	}
	if hub != nil {
		hub.SetHandler(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Game operations
	api.HandleFunc("/sessions/{id}/state", s.handleGetGameState).Methods("GET")
	api.HandleFunc("/sessions/{id}/move", s.handleMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/activate", s.handleActivate).Methods("POST")
	api.HandleFunc("/sessions/{id}/point", s.handlePoint).Methods("POST")
	api.HandleFunc("/sessions/{id}/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/sessions/{id}/resume", s.handleResume).Methods("POST")

	// Saved games
	api.HandleFunc("/sessions/{id}/save", s.handleSave).Methods("POST")
	api.HandleFunc("/sessions/{id}/load", s.handleLoad).Methods("POST")
	api.HandleFunc("/sessions/{id}/record", s.handleRecord).Methods("GET")
	api.HandleFunc("/saves", s.handleListSaves).Methods("GET")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs", s.handleCreateConfig).Methods("POST")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Router exposes the mux so callers can mount extra routes such as /mcp.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr picks the status code from the error chain.
func respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidPosition),
		errors.Is(err, engine.ErrUnknownPlayer),
		errors.Is(err, engine.ErrUnknownMode),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, session.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrRecordNotFound),
		errors.Is(err, config.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrModeMismatch),
		errors.Is(err, engine.ErrNotPaused),
		errors.Is(err, engine.ErrPaused),
		errors.Is(err, engine.ErrSessionOver),
		errors.Is(err, engine.ErrTeleportInactive),
		errors.Is(err, session.ErrSessionAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrMalformedRecord):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSavesDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody reads an optional JSON body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) broadcast(sessionID string, state *engine.Snapshot) {
	if s.hub != nil && state != nil {
		// session ids are case-insensitive; the hub keys on the stored form
		s.hub.BroadcastToSession(strings.ToLower(sessionID), state)
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.service.CreateSession(r.Context(), req)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	total := len(sessions)

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
		sessions = sessions[:l]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Game Operation Handlers

func (s *Server) handleGetGameState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetGameState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

type moveRequest struct {
	Player int `json:"player"`
	DX     int `json:"dx"`
	DY     int `json:"dy"`
}

type positionRequest struct {
	Player int `json:"player"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

// player defaults to player 1 when the body leaves it out.
func player(p int) int {
	if p == 0 {
		return engine.Player1
	}
	return p
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := mux.Vars(r)["id"]

	resp, err := s.service.Move(r.Context(), sessionID, player(req.Player), req.DX, req.DY)
	s.respondAction(w, sessionID, resp, err)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.handlePositional(w, r, s.service.Activate)
}

func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	s.handlePositional(w, r, s.service.Point)
}

type positionalFunc func(ctx context.Context, sessionID string, player int, pos engine.Position) (*service.ActionResponse, error)

func (s *Server) handlePositional(w http.ResponseWriter, r *http.Request, fn positionalFunc) {
	// missing coordinates must not default to the corner cell
	req := positionRequest{X: -1, Y: -1}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := mux.Vars(r)["id"]

	resp, err := fn(r.Context(), sessionID, player(req.Player), engine.Position{X: req.X, Y: req.Y})
	s.respondAction(w, sessionID, resp, err)
}

func (s *Server) respondAction(w http.ResponseWriter, sessionID string, resp *service.ActionResponse, err error) {
	if err != nil {
		respondErr(w, err)
		return
	}
	s.broadcast(sessionID, resp.GameState)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	state, err := s.service.Pause(r.Context(), sessionID)
	s.respondState(w, sessionID, state, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	state, err := s.service.Resume(r.Context(), sessionID)
	s.respondState(w, sessionID, state, err)
}

func (s *Server) respondState(w http.ResponseWriter, sessionID string, state *engine.Snapshot, err error) {
	if err != nil {
		respondErr(w, err)
		return
	}
	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

// Saved Game Handlers

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.SaveGame(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SaveID string `json:"save_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SaveID == "" {
		respondError(w, http.StatusBadRequest, "save_id is required")
		return
	}
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.LoadGame(r.Context(), sessionID, req.SaveID)
	s.respondState(w, sessionID, state, err)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.ExportRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(text)
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	saves, err := s.service.ListSaves(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(saves),
		"saves": saves,
	})
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	cfg, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var gameConfig engine.GameConfig
	if err := json.NewDecoder(r.Body).Decode(&gameConfig); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if gameConfig.Name == "" {
		respondError(w, http.StatusBadRequest, "Config name is required")
		return
	}

	if err := s.service.SaveConfig(r.Context(), gameConfig.Name, &gameConfig); err != nil {
		respondErr(w, fmt.Errorf("failed to save config: %w", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Configuration saved successfully",
		"config_id": gameConfig.Name,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	info, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	// use the canonical id so broadcasts from REST calls reach this client
	s.hub.ServeWS(w, r, info.ID)
}

// HandleCommand applies a WebSocket command to a session.
func (s *Server) HandleCommand(ctx context.Context, sessionID string, cmd websocket.Command) (*engine.Snapshot, error) {
	p := player(cmd.Player)
	pos := engine.Position{X: cmd.X, Y: cmd.Y}

	var (
		resp *service.ActionResponse
		err  error
	)
	switch cmd.Type {
	case websocket.CommandMove:
		resp, err = s.service.Move(ctx, sessionID, p, cmd.DX, cmd.DY)
	case websocket.CommandActivate:
		resp, err = s.service.Activate(ctx, sessionID, p, pos)
	case websocket.CommandPoint:
		resp, err = s.service.Point(ctx, sessionID, p, pos)
	case websocket.CommandPause:
		return s.service.Pause(ctx, sessionID)
	case websocket.CommandResume:
		return s.service.Resume(ctx, sessionID)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Type)
	}
	if err != nil {
		return nil, err
	}
	return resp.GameState, nil
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
