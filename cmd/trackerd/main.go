package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/api"
	"production-tracker-backend/internal/db"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/metrics"
	"production-tracker-backend/internal/monitor"
	"production-tracker-backend/internal/movement"
	"production-tracker-backend/internal/notification"
	"production-tracker-backend/internal/store"
)

var configPath string

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}

	root := &cobra.Command{
		Use:           "trackerd",
		Short:         "Production tracker: moves product objects through their process graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, timer monitor and notification workers",
			RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE:  func(cmd *cobra.Command, args []string) error { return migrate() },
		},
		&cobra.Command{
			Use:   "tail",
			Short: "Print events published on the Redis channel",
			RunE:  func(cmd *cobra.Command, args []string) error { return tail() },
		},
	)
	return root
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)
	return cfg, log, nil
}

func serve() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	collector := metrics.NewCollector(nil)

	var sinks notification.Fanout
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, log)
		pool.SetRecorder(collector)
		pool.Start(ctx)
		sinks = append(sinks, pool)
	} else {
		log.Warn("VAPID keys not configured, web push disabled")
	}
	if cfg.Redis.Enabled {
		bus, err := notification.NewRedisBus(cfg.Redis, log)
		if err != nil {
			return err
		}
		defer bus.Close()
		sinks = append(sinks, bus)
	}

	engine := movement.NewEngine(appStore, sinks, collector, log)

	monitorSvc := monitor.NewService(cfg.Monitor, appStore, sinks, collector, log)
	go monitorSvc.Run(ctx)

	router := api.NewRouter(api.Deps{
		Store:   appStore,
		Engine:  engine,
		WebPush: webpushOptions,
		Metrics: collector,
		Log:     log,
		Server:  cfg.Server,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutdown signal received, stopping services")
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}

func migrate() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if _, err := db.Init(&cfg.Database, log); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

func tail() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	bus, err := notification.NewRedisBus(cfg.Redis, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	if err := bus.Subscribe(ctx, func(ev notification.Event) {
		if err := enc.Encode(ev); err != nil {
			log.Warn("failed to print event", "error", err)
		}
	}); err != nil {
		return err
	}
	log.Info("listening for events", "channel", cfg.Redis.Channel)
	<-ctx.Done()
	return nil
}
