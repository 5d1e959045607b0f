package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/formsync/internal/api"
	"github.com/shohag/formsync/internal/config"
	"github.com/shohag/formsync/internal/connectivity"
	"github.com/shohag/formsync/internal/gateway"
	"github.com/shohag/formsync/internal/lifecycle"
	"github.com/shohag/formsync/internal/notify"
	"github.com/shohag/formsync/internal/observer"
	"github.com/shohag/formsync/internal/queue"
	"github.com/shohag/formsync/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "formsync",
		Short: "formsync — durable offline submission queue",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(flushCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(retryCmd(&configPath))
	rootCmd.AddCommand(clearCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the formsync sidecar daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			manager := queue.NewManager(queue.Config{
				MaxAttempts: cfg.Queue.MaxAttempts,
				BaseDelay:   cfg.Queue.BaseDelay,
				MaxDelay:    cfg.Queue.MaxDelay,
				SendTimeout: cfg.Queue.SendTimeout,
			}, store, log)

			prober := connectivity.NewProber(
				cfg.Connectivity.ProbeTarget,
				cfg.Connectivity.ProbeInterval,
				cfg.Connectivity.ProbeTimeout,
				log,
			)
			prober.Start()

			bus := notify.NewBroadcaster()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			lc := lifecycle.New(lifecycle.Config{FlushInterval: cfg.Lifecycle.FlushInterval}, manager, prober, bus, log)
			lc.Start(ctx)

			obs := observer.New(manager, bus, cfg.Observer.PollInterval, log)
			obs.Start(ctx)

			gw := gateway.New(manager, prober, log)

			server := api.NewServer(cfg.Server, manager, gw, obs, store, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("storage", cfg.Storage.Driver).
				Msg("formsync is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			obs.Stop()
			lc.Stop()
			prober.Stop()

			log.Info().Msg("formsync stopped")
			return nil
		},
	}
}

func flushCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Attempt delivery of all queued submissions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := managerFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := manager.Flush(context.Background())
			if err != nil {
				return fmt.Errorf("flush failed: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := managerFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := manager.Stats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func retryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Move all failed submissions back to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := managerFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			count, err := manager.RetryFailed(context.Background())
			if err != nil {
				return fmt.Errorf("retry failed: %w", err)
			}

			fmt.Printf("%d submission(s) requeued\n", count)
			return nil
		},
	}
}

func clearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all submissions from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Clear(context.Background()); err != nil {
				return fmt.Errorf("failed to clear queue: %w", err)
			}

			fmt.Println("queue cleared")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("formsync v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	case "memory":
		log.Warn().Msg("using in-memory storage, queue will not survive restarts")
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}

func managerFromConfig(configPath string) (*queue.Manager, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	manager := queue.NewManager(queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay,
		MaxDelay:    cfg.Queue.MaxDelay,
		SendTimeout: cfg.Queue.SendTimeout,
	}, store, log)

	return manager, func() { store.Close() }, nil
}
