/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the timesheet server and its admin commands.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE (serve):
  1. Load config (defaults, YAML file, environment)
  2. Open the record store (sqlite, postgres or memory)
  3. Build the engine config: preset + overrides + stored manual holidays
  4. Pick the in-flight guard (Redis when configured, in-process otherwise)
  5. Configure HTTP router and start server with graceful shutdown

COMMANDS:
  serve                         Run the HTTP API
  week [--offset N] --principal Print a week grid
  holidays [YEAR]               List holidays of a year
  holidays add DATE NAME        Store a manual holiday
  projects add CODE NAME        Store a project
  projects assign EMAIL CODE    Assign a project to a principal
  config                        Print the effective timesheet section

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

ENVIRONMENT:
  TIMESHEET_CONFIG_PATH and the TIMESHEET_* overrides, see config/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
  - factory/engine.go: Engine config assembly
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aangel-sama/CyDRegistroHHMineria/api"
	"github.com/aangel-sama/CyDRegistroHHMineria/config"
	"github.com/aangel-sama/CyDRegistroHHMineria/factory"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic/store"
	"github.com/aangel-sama/CyDRegistroHHMineria/guard"
	"github.com/aangel-sama/CyDRegistroHHMineria/store/postgres"
	"github.com/aangel-sama/CyDRegistroHHMineria/store/sqlite"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

var (
	configPath string
	logLevel   string
)

// rootCmd is the base command for the timesheet CLI
var rootCmd = &cobra.Command{
	Use:   "timesheet",
	Short: "Weekly timesheet capture for mining project hours",
	Long: `Timesheet records the hours each employee spends per project and day,
enforces daily and weekly caps against the holiday calendar, and books
vacation and medical leave as ordinary rows.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides TIMESHEET_CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// adminStore is implemented by the persistent stores.
type adminStore interface {
	SaveProject(ctx context.Context, code generic.ProjectCode, name string) error
	AssignProject(ctx context.Context, principal generic.PrincipalID, code generic.ProjectCode) error
	SaveManualHoliday(ctx context.Context, d generic.Date, name string) error
	ManualHolidays(ctx context.Context) (map[int][]generic.Date, error)
}

type backend struct {
	entries  generic.EntryStore
	projects generic.ProjectRegistry
	admin    adminStore // nil for the memory driver
	ping     func(ctx context.Context) error
	close    func() error
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		os.Setenv("TIMESHEET_CONFIG_PATH", configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = logger
	return logger
}

func openBackend(ctx context.Context, cfg config.DBConfig) (*backend, error) {
	switch cfg.Driver {
	case "memory":
		mem := store.NewMemory()
		return &backend{
			entries:  mem,
			projects: mem,
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil

	case "postgres":
		pcfg := postgres.DefaultConfig()
		pcfg.DSN = cfg.DSN
		pg, err := postgres.Open(pcfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return &backend{entries: pg, projects: pg, admin: pg, ping: pg.Ping, close: pg.Close}, nil

	default:
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &backend{entries: db, projects: db, admin: db, ping: db.Ping, close: db.Close}, nil
	}
}

// engineConfig assembles the calendar: preset, file overrides, then the
// holidays stored through `holidays add`.
func engineConfig(ctx context.Context, cfg config.Config, b *backend) (timesheet.Config, error) {
	f := factory.NewEngineFactory()
	tc, err := f.FromConfig(cfg.Timesheet)
	if err != nil {
		return tc, err
	}
	if b.admin == nil {
		return tc, nil
	}
	stored, err := b.admin.ManualHolidays(ctx)
	if err != nil {
		return tc, fmt.Errorf("failed to load manual holidays: %w", err)
	}
	return f.WithManualHolidays(tc, stored), nil
}

func newService(ctx context.Context, cfg config.Config, b *backend, logger zerolog.Logger, opts ...timesheet.Option) (*timesheet.Service, error) {
	tc, err := engineConfig(ctx, cfg, b)
	if err != nil {
		return nil, err
	}
	opts = append([]timesheet.Option{
		timesheet.WithLogger(logger),
		timesheet.WithLocation(cfg.Location()),
	}, opts...)
	return timesheet.NewService(tc, b.entries, b.projects, opts...)
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	b, err := openBackend(cmd.Context(), cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer b.close()

	svc, err := newService(cmd.Context(), cfg, b, logger)
	if err != nil {
		return err
	}

	var g guard.Guard = guard.NewLocal()
	if cfg.Redis.Addr != "" {
		client := guard.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		g = guard.NewRedis(client, guard.RedisOptions{TTL: cfg.Redis.GuardTTL, Logger: &logger})
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis week guard")
	}

	handler := api.NewHandler(svc, g, api.NewMetrics(), api.Options{
		MaxPastWeeks:   cfg.Server.MaxPastWeeks,
		MaxFutureWeeks: cfg.Server.MaxFutureWeeks,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		Health:         b.ping,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.DB.Driver).
			Str("timezone", cfg.Server.Timezone).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}
