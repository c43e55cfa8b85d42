package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"QLink",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`QLink - MCP Interface

All tools proxy to the QLink REST API server.

GAME OBJECTIVE:
Clear the board by linking pairs of equal tiles before the clock runs out.
Two tiles link when a path with at most two turns connects them through empty cells.

AVAILABLE TOOLS:
- create_session: Start a new game (Single or Duo)
- list_sessions: List running sessions
- game_state: Show the board, cursors, scores and effects
- move: Step a cursor one cell (dx, dy)
- activate: Select the tile at x,y for a player
- point: Use an active teleport to jump to x,y
- pause / resume: Stop and restart the clock
- save_game / load_game: Store and restore a saved record
- list_configs: List rule sets
- game_instructions: Full rules`),
	)

	c.registerTools()
}

func (c *Client) registerTools() {
	sessionID := map[string]interface{}{
		"type":        "string",
		"description": "Session ID returned by create_session",
	}
	player := map[string]interface{}{
		"type":        "integer",
		"description": "Player number (1, or 2 in Duo mode). Defaults to 1",
	}
	coord := func(axis string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "integer",
			"description": axis + " coordinate on the board, counting from 0",
		}
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Single or Duo",
					"enum":        []string{string(engine.ModeSingle), string(engine.ModeDuo)},
				},
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Rule set to play (see list_configs)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the board and status of a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionID},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move",
		Description: "Move a cursor one cell. Moving onto a tile selects it instead",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionID,
				"player":     player,
				"dx": map[string]interface{}{
					"type":        "integer",
					"description": "Column step: -1 left, 1 right, 0 none",
				},
				"dy": map[string]interface{}{
					"type":        "integer",
					"description": "Row step: -1 up, 1 down, 0 none",
				},
			},
			Required: []string{"session_id", "dx", "dy"},
		},
	}, c.handleMove)

	positional := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"session_id": sessionID,
			"player":     player,
			"x":          coord("Column"),
			"y":          coord("Row"),
		},
		Required: []string{"session_id", "x", "y"},
	}
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "activate",
		Description: "Select the tile at x,y. Selecting a second tile of the same form tries to link the pair",
		InputSchema: positional,
	}, c.handleActivate)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "point",
		Description: "Jump to an empty cell at x,y, or next to a tile there, while a teleport is active",
		InputSchema: positional,
	}, c.handlePoint)

	for _, name := range []string{"pause", "resume", "save_game"} {
		desc := map[string]string{
			"pause":     "Pause the session clock",
			"resume":    "Resume a paused session",
			"save_game": "Save the session and return a save ID",
		}[name]
		c.mcpServer.AddTool(mcp.Tool{
			Name:        name,
			Description: desc,
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{"session_id": sessionID},
				Required:   []string{"session_id"},
			},
		}, c.sessionAction(name))
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "load_game",
		Description: "Replace the session state with a saved game of the same mode",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionID,
				"save_id": map[string]interface{}{
					"type":        "string",
					"description": "Save ID returned by save_game",
				},
			},
			Required: []string{"session_id", "save_id"},
		},
	}, c.handleLoadGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available rule sets",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the complete QLink rules",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP request to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument; JSON decodes numbers as float64.
func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func sessionPath(args map[string]interface{}, suffix string) (string, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + id + suffix, nil
}

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]interface{}{}
	if mode, _ := args["mode"].(string); mode != "" {
		body["mode"] = mode
	}
	if id, _ := args["config_id"].(string); id != "" {
		body["config_id"] = id
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, http.MethodPost, "/api/sessions", body, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var list struct {
		Sessions []*service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, http.MethodGet, "/api/sessions", nil, &list); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sessions := list.Sessions
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No active sessions"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions (%d):\n", len(sessions))
	for _, s := range sessions {
		status := "running"
		if s.GameState != nil {
			switch {
			case s.GameState.Over:
				status = "over"
			case s.GameState.Paused:
				status = "paused"
			}
		}
		fmt.Fprintf(&b, "- %s: %s (%s), %s, last used %s\n",
			s.ID, s.ConfigName, s.Mode, status, s.LastAccessedAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var snap engine.Snapshot
	if err := c.apiCall(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSnapshot(&snap)), nil
}

func (c *Client) handleMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/move")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body := map[string]interface{}{
		"player": intArg(args, "player", engine.Player1),
		"dx":     intArg(args, "dx", 0),
		"dy":     intArg(args, "dy", 0),
	}
	return c.action(ctx, path, body)
}

func (c *Client) handleActivate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.positional(ctx, request, "/activate")
}

func (c *Client) handlePoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.positional(ctx, request, "/point")
}

func (c *Client) positional(ctx context.Context, request mcp.CallToolRequest, suffix string) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, suffix)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body := map[string]interface{}{
		"player": intArg(args, "player", engine.Player1),
		"x":      intArg(args, "x", -1),
		"y":      intArg(args, "y", -1),
	}
	return c.action(ctx, path, body)
}

func (c *Client) action(ctx context.Context, path string, body interface{}) (*mcp.CallToolResult, error) {
	var resp service.ActionResponse
	if err := c.apiCall(ctx, http.MethodPost, path, body, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatAction(&resp)), nil
}

// sessionAction handles the tools that only take a session id.
func (c *Client) sessionAction(tool string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var suffix string
		switch tool {
		case "pause":
			suffix = "/pause"
		case "resume":
			suffix = "/resume"
		case "save_game":
			suffix = "/save"
		}
		path, err := sessionPath(arguments(request), suffix)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if tool == "save_game" {
			var info service.SaveInfo
			if err := c.apiCall(ctx, http.MethodPost, path, nil, &info); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Saved %s game as %s", info.Mode, info.SaveID)), nil
		}

		var snap engine.Snapshot
		if err := c.apiCall(ctx, http.MethodPost, path, nil, &snap); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatSnapshot(&snap)), nil
	}
}

func (c *Client) handleLoadGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/load")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saveID, _ := args["save_id"].(string)
	if saveID == "" {
		return mcp.NewToolResultError("save_id is required"), nil
	}

	var snap engine.Snapshot
	if err := c.apiCall(ctx, http.MethodPost, path, map[string]string{"save_id": saveID}, &snap); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Loaded " + saveID + "\n\n" + formatSnapshot(&snap)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []*service.ConfigInfo
	if err := c.apiCall(ctx, http.MethodGet, "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available configurations:\n")
	for _, cfg := range configs {
		fmt.Fprintf(&b, "- %s: %s (%s, %dx%d, %d forms, %ds)",
			cfg.ConfigID, cfg.Name, cfg.Mode, cfg.Cols, cfg.Rows, cfg.Forms, cfg.MaxTime)
		if cfg.Description != "" {
			b.WriteString(" - " + cfg.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `QLink - Complete Instructions

GAME OBJECTIVE:
Remove every tile from the board by linking pairs of the same form.
The game ends when no linkable pair remains or the clock reaches zero.

LINKING:
- Select a tile, then select a second tile of the same form.
- They link when a path of horizontal and vertical segments with at most
  two turns joins them, passing only through empty cells.
- The path may leave the tile area through the empty border.
- A linked pair disappears and scores match_score points.
- Selecting a tile of another form, or one with no path, clears the selection.

CURSORS:
- Each player has a cursor that walks on empty cells (move with dx, dy).
- Walking into a tile selects it; the cursor stays where it is.
- In Duo mode the two cursors never share a cell, and a tile held by one
  player cannot be selected by the other.

POWER-UPS (collected by walking onto them):
- time_bonus: adds seconds to the clock
- reshuffle: shuffles the remaining tiles
- hint: highlights one linkable pair for a while
- teleport (Single): for a short time, point lets you jump anywhere
- freeze (Duo): the opponent cannot act for a while
- inversion (Duo): the opponent's directions are reversed for a while

BOARD LEGEND (game_state):
- .      empty cell
- 0 1 2  tile of that form
- a b c  tile of form 0, 1 or 2 that is currently selected
- @      player 1 cursor
- &      player 2 cursor
- +      power-up (listed below the board)
- *      hinted tile`

func formatSessionInfo(info *service.SessionInfo) string {
	out := fmt.Sprintf("Session %s created (%s, config %s)", info.ID, info.Mode, info.ConfigName)
	if info.GameState != nil {
		out += "\n\n" + formatSnapshot(info.GameState)
	}
	return out
}

func formatAction(resp *service.ActionResponse) string {
	var b strings.Builder
	b.WriteString(resp.Message)
	if r := resp.Result; r != nil {
		if r.ScoreDelta != 0 {
			fmt.Fprintf(&b, " (+%d)", r.ScoreDelta)
		}
		if len(r.Path) > 0 {
			b.WriteString("\nPath: " + formatPath(r.Path))
		}
	}
	if resp.GameState != nil {
		b.WriteString("\n\n" + formatSnapshot(resp.GameState))
	}
	return b.String()
}

func formatPath(p engine.Path) string {
	parts := make([]string, len(p))
	for i, pos := range p {
		parts[i] = pos.String()
	}
	return strings.Join(parts, " -> ")
}

// formatSnapshot renders the state as a text board with a status block.
func formatSnapshot(s *engine.Snapshot) string {
	var b strings.Builder

	status := "running"
	switch {
	case s.Over:
		status = "over"
	case s.Paused:
		status = "paused"
	}
	fmt.Fprintf(&b, "Mode: %s | Time: %d/%d | Tiles left: %d | Status: %s\n",
		s.Mode, s.TimeLeft, s.MaxTime, s.Remaining, status)
	for i, score := range s.Scores {
		fmt.Fprintf(&b, "Player %d score: %d\n", i+1, score)
	}
	b.WriteString("\n")
	b.WriteString(formatBoard(s))

	for _, c := range s.Cursors {
		fmt.Fprintf(&b, "\nPlayer %d at %s", c.ID, c.Pos)
		if c.Selected != nil {
			fmt.Fprintf(&b, ", holding %s", *c.Selected)
		}
		var flags []string
		if c.Frozen {
			flags = append(flags, "frozen")
		}
		if c.Inverted {
			flags = append(flags, "inverted")
		}
		if c.Teleport {
			flags = append(flags, "teleport ready")
		}
		if len(flags) > 0 {
			b.WriteString(" [" + strings.Join(flags, ", ") + "]")
		}
	}
	if len(s.PowerUps) > 0 {
		b.WriteString("\nPower-ups:")
		for _, p := range s.PowerUps {
			fmt.Fprintf(&b, " %s%s", p.Kind, p.Pos)
		}
	}
	if s.Hint != nil {
		fmt.Fprintf(&b, "\nHint: %s and %s", s.Hint.A, s.Hint.B)
	}
	for _, e := range s.Effects {
		if e.Player != engine.NoPlayer {
			fmt.Fprintf(&b, "\nEffect %s on player %d: %ds left", e.Kind, e.Player, e.Remaining)
		} else {
			fmt.Fprintf(&b, "\nEffect %s: %ds left", e.Kind, e.Remaining)
		}
	}
	if r := s.Result; r != nil {
		fmt.Fprintf(&b, "\nGame over (%s)", r.Reason)
		switch {
		case r.Draw:
			b.WriteString(": draw")
		case r.Winner != engine.NoPlayer:
			fmt.Fprintf(&b, ": player %d wins", r.Winner)
		}
	}
	return b.String()
}

func formatBoard(s *engine.Snapshot) string {
	marks := map[engine.Position]byte{}
	for _, p := range s.PowerUps {
		marks[p.Pos] = '+'
	}
	if s.Hint != nil {
		marks[s.Hint.A] = '*'
		marks[s.Hint.B] = '*'
	}
	for _, c := range s.Cursors {
		marks[c.Pos] = "@&"[(c.ID-1)%2]
	}

	var b strings.Builder
	b.WriteString("   ")
	for x := 0; x < s.Cols; x++ {
		b.WriteByte('0' + byte(x%10))
	}
	b.WriteString("\n")
	for y, row := range s.Tiles {
		fmt.Fprintf(&b, "%2d ", y)
		for x, tile := range row {
			if m, ok := marks[engine.Position{X: x, Y: y}]; ok {
				b.WriteByte(m)
				continue
			}
			switch tile.State {
			case engine.Empty:
				b.WriteByte('.')
			case engine.Active:
				b.WriteByte('a' + byte(tile.Form))
			default:
				b.WriteByte('0' + byte(tile.Form))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
