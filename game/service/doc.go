// Package service provides the business logic layer for the QLink server.
//
// The service package implements:
//   - Multi-session game management
//   - Configuration selection by id or by mode
//   - Input dispatch (move, activate, point) with per-session locking
//   - The shared one second clock for all running sessions
//   - Saving and loading games through a RecordStore
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages game configuration loading and validation.
// RecordStore keeps saved games in the text record format.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game engine. An engine session is not safe for concurrent use, so each
// Session wraps it with a mutex and all access goes through Session.Do. Ticks
// do not count as access, so idle sessions still expire.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	saves, _ := session.NewFilePersistence("saves")
//	gameService := service.NewGameService(sessionMgr, configMgr, saves)
//
//	info, err := gameService.CreateSession(ctx, service.CreateSessionRequest{Mode: engine.ModeDuo})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	resp, err := gameService.Move(ctx, info.ID, engine.Player2, -1, 0)
//
// Saving:
//
// SaveGame and ExportRecord pause a running session for the duration of the
// save and resume it afterwards. LoadGame does the same around the load, so a
// running session keeps running on the loaded board.
package service
