// Command autoplay plays a QLink session over the REST API by repeatedly
// exporting the board, finding a linkable pair and activating both tiles.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
)

// Client talks to a QLink server on behalf of one player.
type Client struct {
	baseURL   string
	sessionID string
	player    int
	client    *http.Client
}

func NewClient(baseURL string, player int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		player:  player,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s failed: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s failed: %s", method, path, resp.Status)
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*v = data
		return nil
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return nil
	}
}

func (c *Client) CreateSession(ctx context.Context, configID string, mode engine.Mode) (*service.SessionInfo, error) {
	var info service.SessionInfo
	req := service.CreateSessionRequest{ConfigID: configID, Mode: mode}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	c.sessionID = info.ID
	return &info, nil
}

func (c *Client) GetState(ctx context.Context) (*engine.Snapshot, error) {
	var snap engine.Snapshot
	if err := c.do(ctx, http.MethodGet, c.path("/state"), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Resume(ctx context.Context) (*engine.Snapshot, error) {
	var snap engine.Snapshot
	if err := c.do(ctx, http.MethodPost, c.path("/resume"), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Record fetches the session's save record, which carries the full board.
func (c *Client) Record(ctx context.Context) (*engine.Record, error) {
	var data []byte
	if err := c.do(ctx, http.MethodGet, c.path("/record"), nil, &data); err != nil {
		return nil, err
	}
	return engine.DecodeRecord(bytes.NewReader(data))
}

func (c *Client) Activate(ctx context.Context, pos engine.Position) (*service.ActionResponse, error) {
	var resp service.ActionResponse
	body := map[string]int{"player": c.player, "x": pos.X, "y": pos.Y}
	if err := c.do(ctx, http.MethodPost, c.path("/activate"), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) path(suffix string) string {
	return "/api/sessions/" + c.sessionID + suffix
}

// Stats summarizes a finished run.
type Stats struct {
	Matches int
	Moves   int
	Final   *engine.Snapshot
}

// Play links pairs until the session ends, no pair is left or maxMoves
// activations have been sent.
func Play(ctx context.Context, c *Client, maxMoves int, delay time.Duration) (*Stats, error) {
	stats := &Stats{}
	snap, err := c.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Paused && !snap.Over {
		log.Info("Resuming paused session")
		if snap, err = c.Resume(ctx); err != nil {
			return nil, err
		}
	}

	for !snap.Over && stats.Moves < maxMoves {
		rec, err := c.Record(ctx)
		if err != nil {
			return nil, err
		}
		a, b, path, ok := engine.FindPair(rec.Grid())
		if !ok {
			log.Warn("No linkable pair on the board")
			break
		}
		log.WithFields(log.Fields{"a": a, "b": b, "turns": len(path) - 2}).Debug("Linking pair")

		clicks := []engine.Position{a, b}
		if held := selected(snap, c.player); held != nil && *held != a {
			clicks = append([]engine.Position{*held}, clicks...)
		}

		for _, pos := range clicks {
			resp, err := c.Activate(ctx, pos)
			if err != nil {
				return nil, err
			}
			stats.Moves++
			snap = resp.GameState
			if resp.Result != nil && resp.Result.Outcome == engine.OutcomeMatched {
				stats.Matches++
			}
			if snap.Over {
				break
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
	}
	stats.Final = snap
	return stats, nil
}

func selected(snap *engine.Snapshot, player int) *engine.Position {
	for _, c := range snap.Cursors {
		if c.ID == player {
			return c.Selected
		}
	}
	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "autoplay",
		Usage: "play a QLink session through the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "game server URL"},
			&cli.StringFlag{Name: "config", Usage: "game configuration id"},
			&cli.StringFlag{Name: "mode", Usage: "Single or Duo when no config is given"},
			&cli.StringFlag{Name: "continue", Usage: "play an existing session by ID"},
			&cli.IntFlag{Name: "player", Value: 1, Usage: "player to act as"},
			&cli.IntFlag{Name: "max-moves", Value: 1000, Usage: "maximum activations to send"},
			&cli.IntFlag{Name: "delay", Usage: "delay between activations in milliseconds"},
			&cli.BoolFlag{Name: "v", Usage: "verbose output"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("v") {
		log.SetLevel(log.DebugLevel)
	}
	c := NewClient(cmd.String("url"), int(cmd.Int("player")))
	log.Infof("Connecting to game server at %s", c.baseURL)

	if id := cmd.String("continue"); id != "" {
		c.sessionID = id
		log.Infof("Resuming session %s", id)
	} else {
		var mode engine.Mode
		if m := cmd.String("mode"); m != "" {
			parsed, err := engine.ParseMode(m)
			if err != nil {
				return err
			}
			mode = parsed
		}
		info, err := c.CreateSession(ctx, cmd.String("config"), mode)
		if err != nil {
			return err
		}
		log.Infof("Session created: %s (%s, %dx%d, %d tiles)", info.ID, info.Mode,
			info.GameState.Cols, info.GameState.Rows, info.GameState.Remaining)
	}

	delay := time.Duration(cmd.Int("delay")) * time.Millisecond
	stats, err := Play(ctx, c, int(cmd.Int("max-moves")), delay)
	if err != nil {
		return err
	}

	final := stats.Final
	log.Infof("Matches: %d, activations: %d, tiles left: %d", stats.Matches, stats.Moves, final.Remaining)
	if final.Result != nil {
		switch {
		case final.Result.Draw:
			log.Infof("Game over (%s): draw %v", final.Result.Reason, final.Result.Scores)
		case final.Mode == engine.ModeDuo:
			log.Infof("Game over (%s): player %d wins %v", final.Result.Reason, final.Result.Winner, final.Result.Scores)
		default:
			log.Infof("Game over (%s): final score %d", final.Result.Reason, final.Result.Scores[0])
		}
	}
	log.Infof("Session: %s", c.sessionID)
	return nil
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
