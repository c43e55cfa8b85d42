package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wricardo/qlink/game/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// ErrNoHandler is reported to clients that send commands to a hub without a CommandHandler.
var ErrNoHandler = errors.New("commands are not accepted on this connection")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Codec is a connection's frame encoding, picked with ?codec= on the upgrade
// request. JSON travels in text frames, msgpack in binary frames; both use
// the json field names.
type Codec int

const (
	CodecJSON Codec = iota
	CodecMsgpack
)

// ParseCodec maps "msgpack" to CodecMsgpack and anything else to CodecJSON.
func ParseCodec(s string) Codec {
	if s == "msgpack" {
		return CodecMsgpack
	}
	return CodecJSON
}

func (c Codec) frameType() int {
	if c == CodecMsgpack {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Marshal encodes v for the codec.
func (c Codec) Marshal(v any) ([]byte, error) {
	if c == CodecJSON {
		return json.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal.
func (c Codec) Unmarshal(data []byte, v any) error {
	if c == CodecJSON {
		return json.Unmarshal(data, v)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// Command types accepted from clients.
const (
	CommandMove     = "move"
	CommandActivate = "activate"
	CommandPoint    = "point"
	CommandPause    = "pause"
	CommandResume   = "resume"
)

// Command is an input event sent by a client. Missing x or y decode as -1,
// which the engine rejects as off the board.
type Command struct {
	Type   string `json:"type"`
	Player int    `json:"player"`
	DX     int    `json:"dx,omitempty"`
	DY     int    `json:"dy,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// CommandHandler applies a client command to a session. The returned state is
// broadcast to every client of the session.
type CommandHandler interface {
	HandleCommand(ctx context.Context, sessionID string, cmd Command) (*engine.Snapshot, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, sessionID string, cmd Command) (*engine.Snapshot, error)

// HandleCommand calls f.
func (f CommandHandlerFunc) HandleCommand(ctx context.Context, sessionID string, cmd Command) (*engine.Snapshot, error) {
	return f(ctx, sessionID, cmd)
}

// Message represents a WebSocket message
type Message struct {
	SessionID string           `json:"session_id"`
	GameState *engine.Snapshot `json:"game_state,omitempty"`
	Event     string           `json:"event,omitempty"`
	Data      any              `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	codec     Codec
}

type outbound struct {
	message *Message
	to      *Client // nil means every client of message.SessionID
}

// Hub maintains the set of active clients and broadcasts messages. All
// changes to the client set happen on the Run goroutine.
type Hub struct {
	sessions map[string]map[*Client]bool
	mu       sync.RWMutex

	handler CommandHandler

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new WebSocket hub. handler may be nil for a broadcast-only hub.
func NewHub(handler CommandHandler) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		handler:    handler,
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetHandler replaces the command handler. Call it before Run.
func (h *Hub) SetHandler(handler CommandHandler) { h.handler = handler }

// Run starts the hub's event loop and blocks until ctx is done. All clients
// are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case out := <-h.broadcast:
			h.deliver(out)
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for id, clients := range h.sessions {
			for client := range clients {
				close(client.send)
			}
			delete(h.sessions, id)
		}
	})
}

// ServeWS upgrades the request and attaches the connection to sessionID
// using the codec named by the codec query parameter
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
		codec:     ParseCodec(r.URL.Query().Get("codec")),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastToSession sends a state update to all clients in a session
func (h *Hub) BroadcastToSession(sessionID string, state *engine.Snapshot) {
	h.enqueue(outbound{message: &Message{SessionID: sessionID, GameState: state, Event: "state_update"}})
}

// BroadcastEvent sends a custom event to all clients in a session
func (h *Hub) BroadcastEvent(sessionID string, event string, data any) {
	h.enqueue(outbound{message: &Message{SessionID: sessionID, Event: event, Data: data}})
}

func (h *Hub) enqueue(out outbound) {
	select {
	case h.broadcast <- out:
	case <-h.done:
	}
}

// ClientCount returns the number of clients attached to a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
	total := len(h.sessions[client.sessionID])
	h.mu.Unlock()

	log.WithFields(log.Fields{"session": client.sessionID, "clients": total}).Info("websocket client registered")
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
	remaining := len(clients)
	h.mu.Unlock()

	log.WithFields(log.Fields{"session": client.sessionID, "clients": remaining}).Info("websocket client unregistered")
}

// deliver sends a message to its target clients, dropping clients whose
// send buffer is full. The message is encoded once per codec in use.
func (h *Hub) deliver(out outbound) {
	h.mu.RLock()
	var targets []*Client
	if out.to != nil {
		if h.sessions[out.to.sessionID][out.to] {
			targets = append(targets, out.to)
		}
	} else {
		for client := range h.sessions[out.message.SessionID] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	encoded := make(map[Codec][]byte, 2)
	for _, client := range targets {
		data, ok := encoded[client.codec]
		if !ok {
			var err error
			if data, err = client.codec.Marshal(out.message); err != nil {
				log.WithError(err).Warn("failed to marshal websocket message")
				return
			}
			encoded[client.codec] = data
		}
		select {
		case client.send <- data:
		default:
			h.unregisterClient(client)
		}
	}
}

// dispatch runs one inbound command and reports failures to the sender
func (c *Client) dispatch(raw []byte) {
	cmd := Command{X: -1, Y: -1}
	if err := c.codec.Unmarshal(raw, &cmd); err != nil {
		c.reply("invalid command: " + err.Error())
		return
	}
	if c.hub.handler == nil {
		c.reply(ErrNoHandler.Error())
		return
	}

	state, err := c.hub.handler.HandleCommand(context.Background(), c.sessionID, cmd)
	if err != nil {
		c.reply(err.Error())
		return
	}
	if state != nil {
		c.hub.BroadcastToSession(c.sessionID, state)
	}
}

func (c *Client) reply(errMsg string) {
	c.hub.enqueue(outbound{
		message: &Message{SessionID: c.sessionID, Event: "error", Error: errMsg},
		to:      c,
	})
}

// readPump reads commands from the connection until it closes
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).WithField("session", c.sessionID).Debug("websocket read error")
			}
			break
		}
		c.dispatch(raw)
	}
}

// writePump pumps messages from the hub to the WebSocket connection, one
// encoded message per frame
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(c.codec.frameType(), message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
