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

	"github.com/shohag/notifyd/internal/api"
	"github.com/shohag/notifyd/internal/channel"
	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/events"
	"github.com/shohag/notifyd/internal/metrics"
	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/queue"
	"github.com/shohag/notifyd/internal/service"
	"github.com/shohag/notifyd/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "notifyd",
		Short: "notifyd — Self-hosted notification delivery engine",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sendCmd(&configPath))
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the notifyd server",
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

			sink := metrics.NewLogSink(log)
			bus := events.NewLogBus(log)

			registry := channel.NewRegistry(sink, log)
			registerTransports(registry, cfg)

			q := queue.New(cfg.Queue, store, log)
			proc := queue.NewProcessor(store, registry, sink, cfg.Queue.SendTimeout, log)
			pool := queue.NewPool(q, proc, cfg.Queue.Workers, cfg.Queue.PollRate, log)

			// Jobs still marked active belong to a previous run that died
			// mid-attempt; hand them back before the pool starts polling.
			if n, err := q.RequeueStale(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to requeue stale jobs")
			} else if n > 0 {
				log.Info().Int64("requeued", n).Msg("recovered in-flight jobs from previous run")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			go retentionLoop(ctx, store, q, cfg.Retention, log)

			svc := service.New(store, q, bus, sink, cfg.Bulk, log)
			server := api.NewServer(cfg.Server, svc, q, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Queue.Workers).
				Str("storage", cfg.Storage.Driver).
				Msg("notifyd is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			pool.Stop()

			log.Info().Msg("notifyd stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
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
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func sendCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Create a notification from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, _ := cmd.Flags().GetString("channel")
			recipient, _ := cmd.Flags().GetString("to")
			subject, _ := cmd.Flags().GetString("subject")
			content, _ := cmd.Flags().GetString("content")
			priority, _ := cmd.Flags().GetString("priority")
			if ch == "" || recipient == "" || content == "" {
				return fmt.Errorf("--channel, --to and --content are required")
			}

			deps, cleanup, err := depsFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := deps.svc.Create(context.Background(), service.CreateRequest{
				Channel:   models.Channel(ch),
				Recipient: recipient,
				Subject:   subject,
				Content:   content,
				Priority:  models.Priority(priority),
			})
			if err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}

			out, _ := json.MarshalIndent(n, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().String("channel", "", "channel (email/sms/push/webhook)")
	cmd.Flags().String("to", "", "recipient")
	cmd.Flags().String("subject", "", "subject (required for email)")
	cmd.Flags().String("content", "", "message content")
	cmd.Flags().String("priority", "normal", "priority (high/normal/low)")
	return cmd
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show notification delivery stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := depsFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := deps.svc.Stats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notifyd v%s\n", version)
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

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// registerTransports wires the statically known transport list into the
// registry. Disabled channels are still registered; the router reports them
// unavailable rather than unregistered.
func registerTransports(registry *channel.Registry, cfg *config.Config) {
	timeout := cfg.Queue.SendTimeout
	registry.Register(channel.NewEmailTransport(cfg.Channels.Email, timeout))
	registry.Register(channel.NewSMSTransport(cfg.Channels.SMS, timeout))
	registry.Register(channel.NewPushTransport(cfg.Channels.Push, timeout))
	registry.Register(channel.NewWebhookTransport(cfg.Channels.Webhook, timeout))
}

func retentionLoop(ctx context.Context, store storage.Storage, q *queue.Queue, cfg config.RetentionConfig, log zerolog.Logger) {
	if cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if _, err := q.RequeueStale(ctx); err != nil {
				log.Error().Err(err).Msg("failed to requeue stale jobs")
			}
			if n, err := store.PruneJobs(ctx, now.Add(-cfg.JobTTL)); err != nil {
				log.Error().Err(err).Msg("failed to prune jobs")
			} else if n > 0 {
				log.Info().Int64("pruned", n).Msg("pruned settled jobs")
			}
			if n, err := store.PruneNotifications(ctx, now.Add(-cfg.NotificationTTL)); err != nil {
				log.Error().Err(err).Msg("failed to prune notifications")
			} else if n > 0 {
				log.Info().Int64("pruned", n).Msg("pruned terminal notifications")
			}
		}
	}
}

type cliDeps struct {
	svc *service.Service
}

func depsFromConfig(configPath string) (*cliDeps, func(), error) {
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

	sink := metrics.NewLogSink(log)
	bus := events.NewLogBus(log)
	q := queue.New(cfg.Queue, store, log)
	svc := service.New(store, q, bus, sink, cfg.Bulk, log)

	return &cliDeps{svc: svc}, func() { store.Close() }, nil
}
