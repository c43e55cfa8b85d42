// Package api provides HTTP REST API handlers for QLink sessions.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session ({"config_id", "mode", "seed"}, all optional)
//   - GET /api/sessions - List sessions (?sort=created|accessed, ?order=asc|desc, ?limit=N)
//   - GET /api/sessions/{id} - Get a session with its snapshot and config
//   - DELETE /api/sessions/{id} - Delete a session
//
// Game Operations:
//   - GET /api/sessions/{id}/state - Current snapshot
//   - POST /api/sessions/{id}/move - {"player", "dx", "dy"}, one orthogonal step
//   - POST /api/sessions/{id}/activate - {"player", "x", "y"}, select or link a tile
//   - POST /api/sessions/{id}/point - {"player", "x", "y"}, spend a teleport
//   - POST /api/sessions/{id}/pause
//   - POST /api/sessions/{id}/resume
//
// Save/Load:
//   - POST /api/sessions/{id}/save - Store the session's record, returns a save id
//   - POST /api/sessions/{id}/load - {"save_id"}, replace the session's game
//   - GET /api/sessions/{id}/record - The record as text/plain
//   - GET /api/saves - List save ids
//
// Configuration:
//   - GET /api/configs - List configurations
//   - GET /api/configs/{name} - Get one configuration
//   - POST /api/configs - Validate and store a configuration
//
// Other:
//   - GET /ws?session=<id>[&codec=msgpack] - WebSocket state stream and command channel
//   - GET /health
//
// Player defaults to 1 when omitted. Errors are returned as {"error": "..."}
// with these statuses:
//
//	400  invalid position, unknown player, unknown mode, invalid config or session id
//	404  session, save or config not found
//	409  mode mismatch, paused, not paused, session over, no teleport, duplicate session
//	422  malformed record
//	503  saves disabled
package api
