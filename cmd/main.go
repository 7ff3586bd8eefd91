package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contactrelay/internal/api"
	"contactrelay/internal/api/middleware"
	"contactrelay/internal/config"
	"contactrelay/internal/services"
	"contactrelay/internal/tasks"
	"contactrelay/internal/templates"
	"contactrelay/internal/utils/logger"
	"contactrelay/internal/workers"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// @title Contact Relay API
// @version 1.0
// @description Contact form intake with relay delivery and a durable retry queue
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

var log = logger.New("contactrelay")

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "contactrelay",
		Short:         "Contact form mail delivery with a durable retry queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "JSON config file (overrides environment)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(serveCmd(), drainCmd(), saveConfigCmd())

	if err := root.Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	// check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		log.Debug("No %s file found, skipping environment variable loading", envFile)
	} else {
		log.Info("Loading environment variables from %s", envFile)
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled queue drain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	delivery := services.NewDeliveryService(a.mailer, a.queue, a.alerts, cfg.IsProduction())
	contacts := services.NewContactService(
		delivery,
		services.NewDomainPolicy(cfg.Contact.DisposableExtra, cfg.Contact.EmailAllowlist),
		templates.Brand{
			Name:     cfg.Brand.Name,
			Title:    cfg.Brand.Title,
			Email:    cfg.Brand.Email,
			Website:  cfg.Brand.Website,
			LinkedIn: cfg.Brand.LinkedIn,
			GitHub:   cfg.Brand.GitHub,
		},
	)

	var limiter middleware.Limiter
	if a.redis != nil {
		limiter = middleware.NewRedisLimiter(a.redis, cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window)
	} else {
		log.Warn("rate limiting is per process, counters are not shared between instances")
		limiter = middleware.NewLocalLimiter(cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window)
	}

	stopDrain, err := startDrainScheduler(cfg, a)
	if err != nil {
		return err
	}
	defer stopDrain()

	apiServer := api.NewServer(cfg, api.Dependencies{
		Contacts: contacts,
		Drain:    a.runner,
		Limiter:  limiter,
	})
	serverErr := make(chan error, 1)
	go func() {
		log.Success("API server started")
		serverErr <- apiServer.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the servers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return log.Error("API server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown API server", err)
	}

	log.Info("Servers shutdown gracefully")
	return nil
}

// startDrainScheduler starts the configured background drain and returns
// its stop function.
func startDrainScheduler(cfg *config.Config, a *app) (func(), error) {
	switch cfg.Drain.Mode {
	case "off":
		log.Info("scheduled drain disabled, use the HTTP trigger or `contactrelay drain`")
		return func() {}, nil

	case "asynq":
		zl, err := newZapLogger(cfg)
		if err != nil {
			return nil, err
		}
		opt := tasks.RedisClientOpt(cfg.Redis)

		taskServer := tasks.NewServer(opt, tasks.NewTaskHandler(a.runner, zl), zl)
		if err := taskServer.Start(); err != nil {
			return nil, err
		}

		taskScheduler := tasks.NewScheduler(opt, cfg.Drain.Schedule, cfg.Drain.Timeout, log)
		go func() {
			if err := taskScheduler.Start(); err != nil {
				log.Error("Task scheduler error", err)
			}
		}()

		return func() {
			taskScheduler.Stop()
			taskServer.Shutdown()
			_ = zl.Sync()
		}, nil

	case "cron", "":
		scheduler := workers.NewScheduler(a.runner, cfg.Drain.Schedule)
		if err := scheduler.Start(); err != nil {
			return nil, err
		}
		return scheduler.Stop, nil

	default:
		return nil, fmt.Errorf("unknown DRAIN_MODE %q", cfg.Drain.Mode)
	}
}

func drainCmd() *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Retry every queued mail once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if enqueue {
				client := tasks.NewTaskClient(tasks.RedisClientOpt(cfg.Redis))
				defer client.Close()
				return client.EnqueueDrain(cmd.Context(), "cli", cfg.Drain.Timeout)
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %q: %d total, %d delivered, %d kept, %d unknown, %d attempts\n",
				a.queue.Key(), result.Total, result.Delivered, result.Kept, result.Unknown, result.Attempts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the drain to the asynq task server instead of running it here")
	return cmd
}

func saveConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save-config <path>",
		Short: "Write the effective configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Save(args[0]); err != nil {
				return err
			}
			log.Success("configuration written to %s", args[0])
			return nil
		},
	}
}
