// Package websocket provides WebSocket transport for the QLink server.
//
// The websocket package implements:
//   - Session-aware WebSocket connections
//   - State broadcasting after every input and every clock tick
//   - Inbound input commands dispatched through a CommandHandler
//   - Connection lifecycle management
//
// Architecture:
//
// A central Hub owns all connections. Registration, removal and delivery
// happen on the goroutine running Hub.Run; each connection has its own read
// and write goroutines.
//
// Message Protocol:
//
// Incoming commands are JSON objects:
//
//	{"type": "move", "player": 1, "dx": 0, "dy": -1}
//	{"type": "activate", "player": 2, "x": 4, "y": 7}
//	{"type": "point", "player": 1, "x": 0, "y": 3}
//	{"type": "pause"} / {"type": "resume"}
//
// Outgoing messages carry the session id, an event name and, for
// "state_update", the full engine.Snapshot. Failed commands produce an
// "error" event sent only to the client that issued them.
//
// Connecting with ?codec=msgpack switches a connection to msgpack in binary
// frames, in both directions, keyed by the same field names.
//
// Usage:
//
//	hub := websocket.NewHub(handler)
//	go hub.Run(ctx)
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
//	hub.BroadcastToSession(sessionID, snapshot)
//
// Cancelling the context passed to Run closes every connection. Broadcasts
// after that are dropped.
package websocket
