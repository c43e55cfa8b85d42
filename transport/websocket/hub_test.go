package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/qlink/game/engine"
)

func startHub(t *testing.T, handler CommandHandler) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(handler)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv, cancel
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	return dialCodec(t, hub, srv, session, "")
}

func dialCodec(t *testing.T, hub *Hub, srv *httptest.Server, session, codec string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	if codec != "" {
		url += "&codec=" + codec
	}
	before := hub.ClientCount(session)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount(session) == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_BroadcastToSession(t *testing.T) {
	hub, srv, _ := startHub(t, nil)
	a := dial(t, hub, srv, "s1")
	b := dial(t, hub, srv, "s1")
	other := dial(t, hub, srv, "s2")

	hub.BroadcastToSession("s1", &engine.Snapshot{Mode: engine.ModeSingle, TimeLeft: 42})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "s1", msg.SessionID)
		assert.Equal(t, "state_update", msg.Event)
		require.NotNil(t, msg.GameState)
		assert.Equal(t, 42, msg.GameState.TimeLeft)
	}

	hub.BroadcastEvent("s2", "game_over", map[string]any{"reason": "time_up"})
	msg := readMessage(t, other)
	assert.Equal(t, "game_over", msg.Event)
	assert.Nil(t, msg.GameState)
}

func TestHub_Commands(t *testing.T) {
	got := make(chan Command, 4)
	handler := CommandHandlerFunc(func(ctx context.Context, sessionID string, cmd Command) (*engine.Snapshot, error) {
		if cmd.Type == "explode" {
			return nil, errors.New("unknown command type")
		}
		got <- cmd
		return &engine.Snapshot{Scores: []int{cmd.Player}}, nil
	})
	hub, srv, _ := startHub(t, handler)
	sender := dial(t, hub, srv, "s1")
	watcher := dial(t, hub, srv, "s1")

	t.Run("applied commands are broadcast", func(t *testing.T) {
		require.NoError(t, sender.WriteJSON(Command{Type: CommandMove, Player: 1, DX: 1}))
		for _, conn := range []*websocket.Conn{sender, watcher} {
			msg := readMessage(t, conn)
			assert.Equal(t, "state_update", msg.Event)
			assert.Equal(t, []int{1}, msg.GameState.Scores)
		}
		assert.Equal(t, Command{Type: CommandMove, Player: 1, DX: 1}, <-got)
	})

	t.Run("missing coordinates are off the board", func(t *testing.T) {
		require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"activate","player":1}`)))
		readMessage(t, sender)
		readMessage(t, watcher)
		assert.Equal(t, Command{Type: CommandActivate, Player: 1, X: -1, Y: -1}, <-got)

		require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"point","player":2,"x":0,"y":3}`)))
		readMessage(t, sender)
		readMessage(t, watcher)
		assert.Equal(t, Command{Type: CommandPoint, Player: 2, X: 0, Y: 3}, <-got)
	})

	t.Run("errors go to the sender only", func(t *testing.T) {
		require.NoError(t, sender.WriteJSON(Command{Type: "explode"}))
		msg := readMessage(t, sender)
		assert.Equal(t, "error", msg.Event)
		assert.Contains(t, msg.Error, "unknown command")

		require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("{not json")))
		msg = readMessage(t, sender)
		assert.Contains(t, msg.Error, "invalid command")

		// the watcher sees the next broadcast, not the errors
		hub.BroadcastEvent("s1", "ping", nil)
		assert.Equal(t, "ping", readMessage(t, watcher).Event)
	})
}

func TestHub_Msgpack(t *testing.T) {
	handler := CommandHandlerFunc(func(ctx context.Context, sessionID string, cmd Command) (*engine.Snapshot, error) {
		return &engine.Snapshot{Scores: []int{cmd.X, cmd.Y}}, nil
	})
	hub, srv, _ := startHub(t, handler)
	bin := dialCodec(t, hub, srv, "s1", "msgpack")
	text := dial(t, hub, srv, "s1")

	readBinary := func() Message {
		t.Helper()
		bin.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := bin.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, kind)
		var msg Message
		require.NoError(t, CodecMsgpack.Unmarshal(data, &msg))
		return msg
	}

	hub.BroadcastToSession("s1", &engine.Snapshot{
		Mode:     engine.ModeDuo,
		TimeLeft: 7,
		PowerUps: []engine.PowerUp{{Kind: engine.Freeze, Pos: engine.Position{X: 3, Y: 4}}},
	})
	msg := readBinary()
	assert.Equal(t, "state_update", msg.Event)
	require.NotNil(t, msg.GameState)
	assert.Equal(t, engine.ModeDuo, msg.GameState.Mode)
	assert.Equal(t, 7, msg.GameState.TimeLeft)
	assert.Equal(t, []engine.PowerUp{{Kind: engine.Freeze, Pos: engine.Position{X: 3, Y: 4}}}, msg.GameState.PowerUps)
	assert.Equal(t, 7, readMessage(t, text).GameState.TimeLeft)

	cmd, err := CodecMsgpack.Marshal(Command{Type: CommandActivate, Player: 1, X: 5, Y: 6})
	require.NoError(t, err)
	require.NoError(t, bin.WriteMessage(websocket.BinaryMessage, cmd))
	assert.Equal(t, []int{5, 6}, readBinary().GameState.Scores)
	assert.Equal(t, []int{5, 6}, readMessage(t, text).GameState.Scores)
}

func TestParseCodec(t *testing.T) {
	assert.Equal(t, CodecMsgpack, ParseCodec("msgpack"))
	assert.Equal(t, CodecJSON, ParseCodec(""))
	assert.Equal(t, CodecJSON, ParseCodec("xml"))
}

func TestHub_NoHandler(t *testing.T) {
	hub, srv, _ := startHub(t, nil)
	conn := dial(t, hub, srv, "s1")

	require.NoError(t, conn.WriteJSON(Command{Type: CommandPause}))
	msg := readMessage(t, conn)
	assert.Equal(t, ErrNoHandler.Error(), msg.Error)
}

func TestHub_Unregister(t *testing.T) {
	hub, srv, _ := startHub(t, nil)
	conn := dial(t, hub, srv, "s1")
	dial(t, hub, srv, "s1")

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub, srv, cancel := startHub(t, nil)
	conn := dial(t, hub, srv, "s1")

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 0 }, time.Second, 5*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// broadcasting to a stopped hub does not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.BroadcastToSession("s1", &engine.Snapshot{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after stop")
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{hub: hub, sessionID: "s1", send: make(chan []byte, 1)}
	hub.registerClient(client)

	msg := &Message{SessionID: "s1", Event: "x"}
	hub.deliver(outbound{message: msg})
	assert.Equal(t, 1, hub.ClientCount("s1"))
	hub.deliver(outbound{message: msg})
	assert.Zero(t, hub.ClientCount("s1"), "a full buffer drops the client")

	_, open := <-client.send
	assert.True(t, open, "queued message is still readable")
	_, open = <-client.send
	assert.False(t, open)
}
