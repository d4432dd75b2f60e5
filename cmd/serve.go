package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veritas-protocol/veritas-console/internal/assist"
	"github.com/veritas-protocol/veritas-console/internal/bus"
	"github.com/veritas-protocol/veritas-console/internal/httpapi"
	"github.com/veritas-protocol/veritas-console/internal/incident"
	"github.com/veritas-protocol/veritas-console/internal/lawref"
	"github.com/veritas-protocol/veritas-console/internal/metrics"
	"github.com/veritas-protocol/veritas-console/internal/police"
	"github.com/veritas-protocol/veritas-console/internal/store"
)

var (
	httpListen string
	httpToken  string
	httpRPS    int
	httpBurst  int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the incident reporting API server",
	Long: `Start the Veritas server which includes:

1. REST API for the incident draft lifecycle
2. Background legal analysis and chat workers
3. Redis Streams publishing for downstream consumers
4. Prometheus metrics and health endpoints

The serve command runs until interrupted (Ctrl+C) and handles:
- Draft creation, timeline, evidence and law management
- Report submission to the external Incident API
- Graceful shutdown with final draft persistence

Examples:
  # Start with defaults (embedded Incident API simulator)
  veritas serve

  # Start against the real Incident API with auth
  veritas serve --incident-api https://api.example.com/v1 --incident-api-token $TOKEN

  # Require a bearer token on the REST API
  veritas serve --listen 0.0.0.0:8080 --api-token secret`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&httpListen, "listen", "127.0.0.1:8080", "Bind address for the REST API")
	serveCmd.Flags().StringVar(&httpToken, "api-token", "", "Bearer token required for the REST API (optional)")
	serveCmd.Flags().IntVar(&httpRPS, "api-rps", 0, "Max REST API requests per second (0 disables limiting)")
	serveCmd.Flags().IntVar(&httpBurst, "api-burst", 0, "Burst size for the REST API rate limiter")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger := log.New(os.Stderr, "[serve] ", log.LstdFlags)
	logger.Println("Starting Veritas server")

	// Initialize store
	logger.Printf("Using database at %s", config.Database.Path)
	st, err := store.NewStore(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	if err := st.SetupAuditTables(); err != nil {
		return fmt.Errorf("failed to set up audit tables: %w", err)
	}

	// Event bus: Redis when configured, no-op otherwise
	eventBus := bus.NewBus(config.Redis.URL, log.New(os.Stderr, "[bus] ", log.LstdFlags))
	defer eventBus.Close()

	// Law catalog, with live reload when a file is configured
	catalog, stopWatch, err := loadCatalog(config, logger)
	if err != nil {
		return err
	}
	if stopWatch != nil {
		defer close(stopWatch)
	}

	// Assist provider
	provider, err := buildAssistProvider(config, catalog, logger)
	if err != nil {
		return err
	}

	// Incident API client or embedded simulator
	submitter, err := buildSubmitter(config, logger)
	if err != nil {
		return err
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	manager := httpapi.NewWorkspaceManager(st, eventBus, collector, incident.Options{
		Analyzer:  provider,
		Responder: provider,
		Submitter: submitter,
		Logger:    log.New(os.Stderr, "[workspace] ", log.LstdFlags),
		Delays:    incident.DefaultDelays(),
	})

	server, err := httpapi.NewServer(manager, httpapi.Options{
		Bind:    firstNonEmpty(httpListen, config.HTTP.Listen),
		Token:   firstNonEmpty(httpToken, config.HTTP.Token),
		RPS:     maxInt(httpRPS, config.HTTP.RPS),
		Burst:   maxInt(httpBurst, config.HTTP.Burst),
		Catalog: catalog,
		Logger:  log.New(os.Stderr, "[http-api] ", log.LstdFlags),
	})
	if err != nil {
		return fmt.Errorf("failed to build API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	<-ctx.Done()
	logger.Println("Shutting down, persisting open drafts...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.CloseAll(shutdownCtx)

	logger.Println("Shutdown complete")
	return nil
}

// loadCatalog builds the law catalog from configuration. When a file is
// configured, a watcher reloads it on change until the returned channel is
// closed.
func loadCatalog(config Config, logger *log.Logger) (*lawref.Catalog, chan struct{}, error) {
	catalog := lawref.NewCatalog(logger)
	if config.Laws.Catalog == "" {
		logger.Println("Using built-in law catalog")
		return catalog, nil, nil
	}

	if err := catalog.LoadFile(config.Laws.Catalog); err != nil {
		return nil, nil, fmt.Errorf("failed to load law catalog %s: %w", config.Laws.Catalog, err)
	}
	logger.Printf("Loaded law catalog from %s", config.Laws.Catalog)

	stop := make(chan struct{})
	go func() {
		if err := catalog.Watch(stop); err != nil {
			logger.Printf("Catalog watch unavailable: %v", err)
		}
	}()
	return catalog, stop, nil
}

// buildAssistProvider combines persisted settings with flag/config overrides.
func buildAssistProvider(config Config, catalog *lawref.Catalog, logger *log.Logger) (assist.Provider, error) {
	settings, err := assist.LoadSettings(config.Assist.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to load assist settings: %w", err)
	}
	if config.Assist.Provider != "" {
		settings.Active.Provider = config.Assist.Provider
	}
	provider, err := assist.Build(settings.Active, catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build assist provider: %w", err)
	}
	logger.Printf("Assist provider: %s", settings.Active.Provider)
	return provider, nil
}

// buildSubmitter returns the real Incident API client when an endpoint is
// configured and the embedded simulator otherwise.
func buildSubmitter(config Config, logger *log.Logger) (incident.Submitter, error) {
	if config.IncidentAPI.Endpoint == "" {
		logger.Println("No Incident API endpoint configured, using embedded simulator")
		return police.NewSimulator(300*time.Millisecond, logger), nil
	}
	client, err := police.NewClient(config.IncidentAPI.Endpoint, config.IncidentAPI.Token, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build incident api client: %w", err)
	}
	logger.Printf("Incident API endpoint: %s", config.IncidentAPI.Endpoint)
	return client, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
