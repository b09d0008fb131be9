package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/auth"
	"github.com/gartstein/eagle/internal/taskmgr/config"
	"github.com/gartstein/eagle/internal/taskmgr/db"
	"github.com/gartstein/eagle/internal/taskmgr/events"
	"github.com/gartstein/eagle/internal/taskmgr/handlers"
	"github.com/gartstein/eagle/internal/taskmgr/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	kafkaStartupTimeout = 30 * time.Second
	storeCheckInterval  = 15 * time.Second
)

type eventProducer interface {
	Produce(event events.Event)
	Close()
}

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          "eagle-server",
		Short:        "Serve the eagle task API",
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config",
		filepath.Join("internal", "taskmgr", "config", "config.yaml"), "path to the YAML config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	repo, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	producer, err := initProducer(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize Kafka producer", zap.Error(err))
		return err
	}
	defer producer.Close()

	revoker, closeRevoker, err := initRevoker(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize token revocation", zap.Error(err))
		return err
	}
	defer closeRevoker()

	taskSvc := service.NewTaskService(repo, producer, logger)

	// Create handlers
	taskHandler := handlers.NewTaskHandler(taskSvc, revoker, handlers.HandlerConfig{
		JWTSecret:      cfg.JWTSecret,
		TokenTTL:       cfg.TokenTTL,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	// Create server
	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger)
	if err := server.RegisterHTTPHandlers(taskHandler, cfg.JWTSecret, revoker); err != nil {
		logger.Error("failed to register HTTP handlers", zap.Error(err))
		return err
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go server.WatchStore(watchCtx, repo, storeCheckInterval)

	return waitForShutdown(server, logger)
}

// initLogger initializes a Zap production logger at level.
func initLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// initDatabase connects with retries and seeds the sample data when enabled.
func initDatabase(cfg *config.Config, logger *zap.Logger) (*db.Repository, error) {
	repo, err := db.OpenWithRetry(cfg.DBConfig(), logger, cfg.DBOptions()...)
	if err != nil {
		return nil, err
	}
	if cfg.Seed {
		if err := repo.Seed(context.Background()); err != nil {
			_ = repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

// initProducer publishes task events to Kafka, or nowhere without brokers.
func initProducer(cfg *config.Config, logger *zap.Logger) (eventProducer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("no Kafka brokers configured, task events are disabled")
		return events.NopProducer{}, nil
	}
	return events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic, kafkaStartupTimeout)
}

// initRevoker shares revoked sessions through Redis when REDIS_ADDR is set.
func initRevoker(cfg *config.Config, logger *zap.Logger) (auth.Revoker, func(), error) {
	if cfg.RedisAddr == "" {
		return auth.NewMemoryRevoker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	return auth.NewRedisRevoker(client), func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", zap.Error(err))
		}
	}, nil
}

// waitForShutdown runs the servers until an interrupt or SIGTERM is
// received, or one of them fails, then shuts both down.
func waitForShutdown(server *handlers.Server, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var err error
	select {
	case <-stop:
	case err = <-errc:
		logger.Error("server failed", zap.Error(err))
	}

	server.Stop()
	logger.Info("Servers stopped properly")
	return err
}
