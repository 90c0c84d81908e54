package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"landing-ops/backend/internal/api"
	"landing-ops/backend/internal/config"
	"landing-ops/backend/internal/export"
	"landing-ops/backend/internal/logging"
	"landing-ops/backend/internal/pipeline"
	"landing-ops/backend/internal/repository"
	"landing-ops/backend/internal/services"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	MockLLM bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Start the HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.MockLLM, "mock-llm", false, "use the built-in mock copy generator instead of OpenAI")

	return cmd
}

func runServer(ctx context.Context, opts *ServeOptions) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("Starting landing-ops service")

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	gen, err := buildGenerator(cfg, opts.MockLLM, logger)
	if err != nil {
		return err
	}

	renderer := export.NewRenderer(cfg.Server.ExportDir, cfg.Audit.MinFAQ)
	machine := pipeline.NewMachine(store, gen, renderer, cfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	apiServer := api.NewServer(machine, store, renderer, cfg, logger)
	apiServer.RegisterRoutes(e)

	logger.Info("HTTP handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting on %s", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error: %v", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// openStore builds the configured run store. The memory driver serves
// demos and tests; postgres is the production path.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.RunStore, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("Using in-memory store; runs will not survive a restart")
		return repository.NewMemoryRunStore(), func() {}, nil
	}

	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	store := repository.NewPostgresRunStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Database connected and migrated")
	return store, pool.Close, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func buildGenerator(cfg *config.Config, mock bool, logger *logging.Logger) (services.CopyGenerator, error) {
	if mock || cfg.LLM.APIKey == "" {
		if !mock {
			logger.Warn("No LLM API key configured; falling back to the mock copy generator")
		}
		return services.MockGenerator{}, nil
	}
	return services.NewOpenAIGenerator(services.OpenAIConfig{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		BaseURL:        cfg.LLM.BaseURL,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
}
