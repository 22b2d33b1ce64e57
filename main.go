// Command greenhouse-monitor starts the Greenhouse Monitor server.
//
// It serves the REST API and the WebSocket hub on one HTTP listener. Flags
// control host/port, the SQLite database path, seeding of the hardware
// inventory, debug logging, version output, and optional ngrok tunneling for
// easy external access during development.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/verdantops/greenhouse-monitor/api"
	"github.com/verdantops/greenhouse-monitor/greenhouse/service"
	"github.com/verdantops/greenhouse-monitor/greenhouse/store"
	"github.com/verdantops/greenhouse-monitor/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Greenhouse Monitor Server"
)

// Configuration flags control how the server starts.
var (
	port         = flag.Int("port", getEnvIntDefault("PORT", 3000), "HTTP server port")
	host         = flag.String("host", getEnvDefault("HOSTNAME", "localhost"), "HTTP server host")
	dbPath       = flag.String("db", getEnvDefault("DB_PATH", "greenhouse.db"), "SQLite database path")
	seed         = flag.Bool("seed", false, "Seed the hardware inventory on startup")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

// main parses flags, wires the store, service and hub, and runs the server.
func main() {
	// Load .env file if it exists (ignore error if not found)
	godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	logger := newLogger(*debug)
	logger.Info().Str("version", Version).Msg("starting " + AppName)

	st, svc, hub, err := initializeServices(*dbPath, *seed, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer st.Close()

	runHTTPServer(svc, hub, logger)
}

// newLogger builds the process-wide zerolog logger.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// initializeServices opens the store and wires the hub and monitor service.
func initializeServices(dbPath string, seedInventory bool, logger zerolog.Logger) (store.Store, service.MonitorService, *websocket.Hub, error) {
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	if seedInventory || getEnvDefault("SEED", "") == "true" {
		if err := store.Seed(context.Background(), st); err != nil {
			st.Close()
			return nil, nil, nil, fmt.Errorf("failed to seed store: %w", err)
		}
		logger.Info().Msg("hardware inventory seeded")
	}

	hub := websocket.NewHub(logger)
	svc := service.NewMonitorService(st, hub, logger)

	return st, svc, hub, nil
}

// runHTTPServer starts the HTTP server with the REST API and WebSocket hub.
// If ngrok is enabled (via flag or environment), it also provisions a public
// tunnel.
func runHTTPServer(svc service.MonitorService, hub *websocket.Hub, logger zerolog.Logger) {
	apiServer := api.NewServer(svc, hub, logger)

	addr := fmt.Sprintf("%s:%d", *host, *port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().
			Str("addr", addr).
			Str("rest_api", fmt.Sprintf("http://%s/api", addr)).
			Str("websocket", fmt.Sprintf("ws://%s/ws", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Check if ngrok should be enabled (from flag or environment)
	ngrokShouldRun := *ngrokEnabled
	if !ngrokShouldRun {
		if envEnabled := os.Getenv("NGROK_ENABLED"); envEnabled == "true" || envEnabled == "1" {
			ngrokShouldRun = true
		}
	}

	if ngrokShouldRun {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, apiServer, logger)
		}()
	}

	// Wait for shutdown signal
	sig := <-stop
	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
}

// runNgrokTunnel exposes the server through an ngrok tunnel until ctx is
// cancelled.
func runNgrokTunnel(ctx context.Context, handler http.Handler, logger zerolog.Logger) {
	authToken := *ngrokAuth
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use -ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	domain := *ngrokDomain
	if domain == "" {
		domain = os.Getenv("NGROK_DOMAIN")
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}
	defer tun.Close()

	logger.Info().
		Str("url", tun.URL()).
		Str("websocket", tun.URL()+"/ws").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("ngrok server error")
	}
}
