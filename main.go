// Command qlink starts the QLink tile-matching game server.
//
// It supports two commands:
//  1. "server" (default) runs the HTTP server exposing the REST API, WebSocket
//     updates and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server and spins up an internal HTTP API if none
//     is reachable
//
// Flags (or the matching environment variables, also read from .env) select
// the listen address, the config directory, where saved games live, and an
// optional ngrok tunnel for external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/qlink/api"
	"github.com/wricardo/qlink/game/config"
	"github.com/wricardo/qlink/game/service"
	"github.com/wricardo/qlink/game/session"
	"github.com/wricardo/qlink/transport/mcp"
	"github.com/wricardo/qlink/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "QLink Server"
)

const (
	tickInterval    = time.Second
	cleanupInterval = time.Hour
	sessionMaxAge   = 24 * time.Hour
)

// options is the resolved command line.
type options struct {
	host        string
	port        int
	configDir   string
	savesDir    string
	redisAddr   string
	databaseURL string
	debug       bool
	ngrok       bool
	ngrokAuth   string
	ngrokDomain string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.host, o.port)
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("failed to load .env file")
		}
	} else {
		log.Debug("loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("qlink failed")
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "qlink",
		Usage:   "QLink tile-matching game server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "directory containing game configurations", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "saves-dir", Value: "saves", Usage: "directory for saved game records", Sources: cli.EnvVars("SAVES_DIR")},
			&cli.StringFlag{Name: "redis-addr", Usage: "store saved games in Redis at this address", Sources: cli.EnvVars("REDIS_ADDR")},
			&cli.StringFlag{Name: "database-url", Usage: "store saved games in PostgreSQL", Sources: cli.EnvVars("DATABASE_URL")},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "run the HTTP server with REST API, WebSocket and MCP endpoint",
				Action: runServer,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp"},
				Usage:   "run an MCP stdio server",
				Action:  runMCP,
			},
		},
		Action: runServer,
	}
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		host:        cmd.String("host"),
		port:        int(cmd.Int("port")),
		configDir:   cmd.String("config-dir"),
		savesDir:    cmd.String("saves-dir"),
		redisAddr:   cmd.String("redis-addr"),
		databaseURL: cmd.String("database-url"),
		debug:       cmd.Bool("debug"),
		ngrok:       cmd.Bool("ngrok"),
		ngrokAuth:   cmd.String("ngrok-auth"),
		ngrokDomain: cmd.String("ngrok-domain"),
	}
}

func setupLogging(debug bool, out io.Writer) {
	log.SetOutput(out)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	} else {
		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(false)
	}
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	setupLogging(opts.debug, os.Stderr)
	log.WithField("version", Version).Infof("starting %s", AppName)

	app, err := initializeServices(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer app.close()

	return runHTTPServer(ctx, opts, app)
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	// stdout carries the MCP protocol
	setupLogging(opts.debug, os.Stderr)

	app, err := initializeServices(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer app.close()

	return runStdioMCP(ctx, opts, app)
}

// services holds everything the commands share.
type services struct {
	game     service.GameService
	sessions *session.Manager
	closers  []func()
}

func (s *services) close() {
	if err := s.sessions.SaveAllSessions(); err != nil {
		log.WithError(err).Warn("failed to persist sessions")
	}
	s.closeStores()
}

// initializeServices wires the config manager, the stores, the session
// manager and the game service.
func initializeServices(ctx context.Context, opts options) (*services, error) {
	configManager, err := config.NewManager(opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	app := &services{}
	saves, snapshots, err := openStores(ctx, opts, app)
	if err != nil {
		app.closeStores()
		return nil, err
	}

	app.sessions = session.NewManagerWithPersistence(snapshots, configManager.DefaultFor)
	if err := app.sessions.LoadPersistedSessions(); err != nil {
		log.WithError(err).Warn("failed to load persisted sessions")
	}
	app.game = service.NewGameService(app.sessions, configManager, saves)
	return app, nil
}

func (s *services) closeStores() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// openStores picks the backend for saved games and for session snapshots
// taken at shutdown. PostgreSQL wins over Redis, Redis over files.
func openStores(ctx context.Context, opts options, app *services) (saves, snapshots session.SessionPersistence, err error) {
	switch {
	case opts.databaseURL != "":
		pool, err := session.DialPostgres(ctx, opts.databaseURL)
		if err != nil {
			return nil, nil, err
		}
		app.closers = append(app.closers, pool.Close)

		pg, err := session.NewPostgresPersistence(ctx, pool, session.DefaultPostgresTable)
		if err != nil {
			return nil, nil, err
		}
		pgSessions, err := session.NewPostgresPersistence(ctx, pool, "qlink_sessions")
		if err != nil {
			return nil, nil, err
		}
		log.WithField("table", session.DefaultPostgresTable).Info("saving games to PostgreSQL")
		return pg, pgSessions, nil

	case opts.redisAddr != "":
		client, err := session.DialRedis(ctx, opts.redisAddr)
		if err != nil {
			return nil, nil, err
		}
		app.closers = append(app.closers, func() { client.Close() })

		log.WithField("addr", opts.redisAddr).Info("saving games to Redis")
		return session.NewRedisPersistence(client, session.DefaultRedisPrefix),
			session.NewRedisPersistence(client, "qlink:session:"), nil
	}

	files, err := session.NewFilePersistence(opts.savesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	fileSessions, err := session.NewFilePersistence(filepath.Join(opts.savesDir, "sessions"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	log.WithField("dir", opts.savesDir).Info("saving games to files")
	return files, fileSessions, nil
}

// buildRouter mounts the API and the /mcp endpoint on one mux.
func buildRouter(app *services, hub *websocket.Hub, baseURL string) http.Handler {
	apiServer := api.NewServer(app.game, hub)
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(mcpClient.GetMCPServer()))
	return mainRouter
}

func mcpHandler(mcpServer *server.MCPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpServer.HandleMessage(r.Context(), body)
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// runHTTPServer serves until ctx is cancelled. If ngrok is enabled it also
// serves the same handler through a public tunnel.
func runHTTPServer(ctx context.Context, opts options, app *services) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := websocket.NewHub(nil)
	addr := opts.addr()
	handler := buildRouter(app, hub, "http://"+addr)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		tickRoutine(ctx, app.game, hub, tickInterval)
	}()
	go func() {
		defer wg.Done()
		sessionCleanupRoutine(ctx, app.sessions, cleanupInterval, sessionMaxAge)
	}()

	if opts.ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveTunnel(ctx, opts, handler)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"rest": "http://" + addr + "/api",
			"ws":   "ws://" + addr + "/ws?session=<session_id>",
			"mcp":  "http://" + addr + "/mcp",
		}).Infof("HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		log.WithError(err).Error("HTTP server failed")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Warn("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info("server stopped")
	return err
}

// serveTunnel exposes handler through ngrok until ctx is cancelled.
func serveTunnel(ctx context.Context, opts options, handler http.Handler) {
	if opts.ngrokAuth == "" {
		log.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	tunnel := ngrokConfig.HTTPEndpoint()
	if opts.ngrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.ngrokDomain))
		log.WithField("domain", opts.ngrokDomain).Info("using custom ngrok domain")
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.ngrokAuth))
	if err != nil {
		log.WithError(err).Error("failed to start ngrok tunnel")
		return
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.WithError(err).Warn("failed to close ngrok tunnel")
		}
	}()

	log.WithField("url", tun.URL()).Info("ngrok tunnel established")
	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.WithError(err).Warn("ngrok server error")
	}
	log.Info("ngrok tunnel closed")
}

// tickRoutine advances every running session once per interval and pushes the
// new state to WebSocket clients.
func tickRoutine(ctx context.Context, game service.GameService, hub *websocket.Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, update := range game.TickAll(ctx) {
				hub.BroadcastToSession(update.SessionID, update.GameState)
				if update.Ended {
					hub.BroadcastEvent(update.SessionID, "game_over", update.GameState.Result)
				}
			}
		}
	}
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within maxAge.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(maxAge); removed > 0 {
				log.WithField("removed", removed).Info("cleaned up expired sessions")
			}
		}
	}
}

// runStdioMCP runs an MCP stdio server. It reuses an API already listening on
// the configured address; otherwise it starts an internal one on a random
// loopback port.
func runStdioMCP(ctx context.Context, opts options, app *services) error {
	baseURL := "http://" + opts.addr()

	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.WithField("url", baseURL).Info("external API server found, using it for MCP")
	} else {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()
		log.WithField("url", baseURL).Info("starting internal HTTP server for MCP stdio")

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		hub := websocket.NewHub(nil)
		go hub.Run(ctx)
		go tickRoutine(ctx, app.game, hub, tickInterval)

		httpServer := &http.Server{Handler: api.NewServer(app.game, hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("internal HTTP server error")
			}
		}()
		defer httpServer.Close()
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info("MCP stdio server ready")
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
