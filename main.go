// Command minesweeper-server starts the multiplayer Minesweeper server.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP server exposing the REST API, the
//     WebSocket endpoint, Prometheus metrics, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API
//     if no running server is available
//
// Configuration is read from the environment (and an optional .env file);
// see the config package for the full list of variables. The serve command
// optionally exposes the server through an ngrok tunnel for external access
// during development.
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
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
	ngrok "golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/opensweeper/minesweeper-server/api"
	"github.com/opensweeper/minesweeper-server/config"
	"github.com/opensweeper/minesweeper-server/game/session"
	"github.com/opensweeper/minesweeper-server/metrics"
	"github.com/opensweeper/minesweeper-server/transport/mcp"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Minesweeper Server"
)

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. "serve" is the default so running the
// binary with no arguments starts the HTTP server.
func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:           "minesweeper-server",
		Usage:          "multiplayer Minesweeper over WebSockets",
		Version:        Version,
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP server (REST API, WebSocket, metrics, /mcp)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "tunnel",
						Usage: "Expose the server through an ngrok tunnel (requires NGROK_AUTHTOKEN)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServe(ctx, cmd.Bool("tunnel"))
				},
			},
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server bridging agents to a game server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "server-url",
						Usage: "Base URL of a running server (default: probe, then start an internal one)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runMCP(ctx, cmd.String("server-url"))
				},
			},
		},
	}
}

// buildLogger constructs the process logger from the validated config.
// Console format is meant for humans during development, json for log
// collectors in production. Everything goes to stderr so MCP stdio mode
// keeps stdout clean for the protocol.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// bootstrapLogger is used before the config has been loaded and validated.
func bootstrapLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// baseURLFor turns a listen address like ":8000" into a URL a local client
// can reach, substituting localhost for wildcard hosts.
func baseURLFor(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// runServe starts the HTTP server together with the session reaper and the
// metrics sampler, and blocks until a shutdown signal arrives or one of the
// components fails.
func runServe(ctx context.Context, tunnel bool) error {
	cfg, err := config.Load(bootstrapLogger())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)
	logger.Info().Str("version", Version).Msgf("Starting %s", AppName)

	registry := session.NewRegistry(logger)
	apiServer := api.NewServer(registry, api.Options{
		CreatesPerMinute: cfg.RateLimitGamesPerMinute,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	}, logger)

	// The MCP bridge talks to this very server over loopback, so agents
	// posting to /mcp and browsers on the WebSocket share the same boards.
	mcpBridge := mcp.NewClient(baseURLFor(cfg.Addr), logger)
	defer mcpBridge.Close()

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpEndpoint(mcpBridge))

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	reaper := session.NewReaper(registry, cfg.CleanupInterval(), cfg.InactiveTimeout(), cfg.ActiveTimeout(), logger)
	group.Go(func() error {
		return reaper.Run(ctx)
	})

	sampler := metrics.NewSampler(cfg.MetricsInterval, logger)
	group.Go(func() error {
		return sampler.Run(ctx)
	})

	if tunnel {
		group.Go(func() error {
			return runTunnel(ctx, mainRouter, logger)
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}

// runTunnel provisions an ngrok tunnel and serves the same handler through
// it. NGROK_DOMAIN pins a reserved domain; without it ngrok assigns a random
// one. The tunnel is tied to ctx and closes on shutdown.
func runTunnel(ctx context.Context, handler http.Handler, logger zerolog.Logger) error {
	token := os.Getenv("NGROK_AUTHTOKEN")
	if token == "" {
		return errors.New("tunnel requested but NGROK_AUTHTOKEN is not set")
	}

	var tunnel ngrokConfig.Tunnel
	if domain := os.Getenv("NGROK_DOMAIN"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(token))
	if err != nil {
		return fmt.Errorf("start ngrok tunnel: %w", err)
	}
	defer tun.Close()

	logger.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")
	logger.Info().Msgf("  WebSocket: %s/ws?id=<game_id>", tun.URL())
	logger.Info().Msgf("  MCP endpoint: %s/mcp", tun.URL())

	if err := http.Serve(tun, handler); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("ngrok server: %w", err)
	}
	return nil
}

// mcpEndpoint exposes the MCP server over plain HTTP POST so remote agents
// can use the tools without a stdio transport.
func mcpEndpoint(bridge *mcp.Client) http.HandlerFunc {
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

		response := bridge.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		data, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(data)
	}
}

// runMCP runs the MCP server on stdio. It prefers an already-running game
// server (shared boards with other players); failing that it starts an
// internal one on a loopback port that lives for the duration of the
// process.
func runMCP(_ context.Context, serverURL string) error {
	cfg, err := config.Load(bootstrapLogger())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	baseURL := serverURL
	if baseURL == "" {
		candidate := baseURLFor(cfg.Addr)
		if probeServer(candidate) {
			logger.Info().Str("url", candidate).Msg("using running server")
			baseURL = candidate
		} else {
			internal, addr, err := startInternalServer(cfg, logger)
			if err != nil {
				return err
			}
			defer internal.Close()
			baseURL = "http://" + addr
			logger.Info().Str("url", baseURL).Msg("started internal server")
		}
	}

	bridge := mcp.NewClient(baseURL, logger)
	defer bridge.Close()

	logger.Info().Msg("MCP stdio server ready")
	if err := server.ServeStdio(bridge.GetMCPServer()); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// probeServer reports whether a game server already answers at baseURL.
func probeServer(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalServer starts a private API server on a random loopback port
// for MCP sessions that have no external server to talk to.
func startInternalServer(cfg *config.Config, logger zerolog.Logger) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", fmt.Errorf("listen: %w", err)
	}

	registry := session.NewRegistry(logger)
	apiServer := api.NewServer(registry, api.Options{
		CreatesPerMinute: cfg.RateLimitGamesPerMinute,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	}, logger)

	internal := &http.Server{Handler: apiServer}
	go func() {
		if err := internal.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("internal server failed")
		}
	}()

	// Give the listener a moment to start accepting.
	time.Sleep(100 * time.Millisecond)

	return internal, listener.Addr().String(), nil
}
