// Kijkod is the kijko ingestion gateway daemon.
//
// The daemon serves the project REST API, the WebSocket progress feed,
// and the SSE fallback stream on a single HTTP listener, and runs the
// ingestion pipeline that clones, parses, chunks, and indexes linked
// repositories.
//
// Configuration is loaded from ~/.config/kijko/config.yaml with
// environment variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	kijkod
//
//	# Point at an explicit config file
//	kijkod -config /etc/kijko/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/config"
	"github.com/Anansitrading/kijko/internal/embeddings"
	"github.com/Anansitrading/kijko/internal/history"
	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/logging"
	"github.com/Anansitrading/kijko/internal/notify"
	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/realtime"
	"github.com/Anansitrading/kijko/internal/secrets"
	"github.com/Anansitrading/kijko/internal/server"
	"github.com/Anansitrading/kijko/internal/telemetry"
	"github.com/Anansitrading/kijko/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  kijkod           Start the gateway daemon\n")
			fmt.Fprintf(os.Stderr, "  kijkod version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("kijkod\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the gateway and blocks until the context is cancelled.
//
// It initializes, in order: configuration, logger, telemetry, NATS
// (embedded or remote), the embedding and vector store backends, the
// stores, the ingestion pipeline, the realtime hub with its NATS
// bridge, the notification center, and finally the HTTP server.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting kijkod",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName))

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Observability.EnableTelemetry,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Protocol:       cfg.Observability.OTLPProtocol,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "dependencies initialized",
		zap.Bool("nats_embedded", cfg.NATS.Embedded),
		zap.String("vectorstore", cfg.VectorStore.Provider))

	hub := realtime.NewHub(logger)
	defer hub.Close()

	bridge := realtime.NewBridge(hub, deps.natsConn, logger)
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("starting realtime bridge: %w", err)
	}
	defer bridge.Stop()

	pipeline := ingest.NewService(deps.projects, deps.vectors, deps.redactor,
		ingest.NewNATSPublisher(deps.natsConn), logger, ingest.Options{
			Workdir:      cfg.Ingest.Workdir,
			MaxFileSize:  cfg.Ingest.MaxFileSize,
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
			VectorSize:   cfg.VectorStore.VectorSize,
		})

	notifier := notify.NewCenter(deps.natsConn, hub, logger)
	watcher := notify.NewIngestWatcher(notifier, deps.projects, deps.natsConn, logger)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("starting ingestion watcher: %w", err)
	}
	defer watcher.Stop()

	srv, err := server.NewServer(server.Options{
		Projects:  deps.projects,
		Pipeline:  pipeline,
		Hub:       hub,
		Auth:      devAuthenticator,
		NATS:      deps.natsConn,
		Checker:   server.NewRepoChecker(cfg.GitHub.Token.Value(), nil),
		Notifier:  notifier,
		History:   deps.sessions,
		Logger:    logger,
		Config:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Realtime:  cfg.Realtime,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "pipeline shutdown incomplete", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}

// dependencies holds the infrastructure the services are built on.
type dependencies struct {
	natsConn   *nats.Conn
	natsServer *natsserver.Server
	vectors    vectorstore.Store
	projects   project.Store
	sessions   *history.Store
	redactor   *secrets.Redactor
}

// Close releases infrastructure resources in reverse dependency order.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.natsServer != nil {
		d.natsServer.Shutdown()
		d.natsServer.WaitForShutdown()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{}

	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		ns, err := startEmbeddedNATS()
		if err != nil {
			return nil, fmt.Errorf("starting embedded NATS: %w", err)
		}
		deps.natsServer = ns
		natsURL = ns.ClientURL()
	}

	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("connecting to NATS at %s: %w", natsURL, err)
	}
	deps.natsConn = nc

	logger.Info(ctx, "connected to NATS", zap.String("url", natsURL))

	embedSvc, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
	})
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	vsConfig := cfg.VectorStore
	vsConfig.Path = expandHome(vsConfig.Path)
	vectors, err := vectorstore.New(vsConfig, embedSvc, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	deps.vectors = vectors

	storePath := expandHome(cfg.Store.Path)
	if err := os.MkdirAll(storePath, 0700); err != nil {
		deps.Close()
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	projects, err := project.NewStore(storePath)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("opening project store: %w", err)
	}
	deps.projects = projects

	sessions, err := history.NewStore(storePath)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	deps.sessions = sessions

	allow, err := secrets.LoadAllowlist(filepath.Join(storePath, "allowlist.toml"))
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("loading secret allowlist: %w", err)
	}
	redactor, err := secrets.NewRedactor(secrets.DefaultRules(), allow)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("building redactor: %w", err)
	}
	deps.redactor = redactor

	return deps, nil
}

// startEmbeddedNATS runs an in-process NATS server on a random port.
func startEmbeddedNATS() (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, err
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server did not become ready")
	}
	return ns, nil
}

// devAuthenticator accepts "user:org" tokens. Production deployments
// front the gateway with an auth proxy that injects identity headers
// and issues WebSocket tickets in this shape.
func devAuthenticator(token string) (realtime.Claims, error) {
	user, org, ok := strings.Cut(token, ":")
	if !ok || user == "" || org == "" {
		return realtime.Claims{}, fmt.Errorf("malformed token")
	}
	return realtime.Claims{UserID: user, OrgID: org}, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
