package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"firewatch/config"
	"firewatch/log"
	"firewatch/services"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Validate required configuration
	if cfg.FirebaseDbUrl == "" || cfg.FirebaseServiceAccountJSON == "" {
		logger.Fatal("Firebase configuration is required")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the store
	firebaseStore, err := services.NewFirebaseStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase store", zap.Error(err))
	}
	defer firebaseStore.Close()

	// Build the fanout pipeline
	var fanoutOpts []services.FanoutOption
	fanoutOpts = append(fanoutOpts, services.WithHistoryCap(cfg.HistoryCap))

	if cfg.RedisAddr != "" {
		guard, err := services.NewRedisGuard(cfg.RedisAddr, logger)
		if err != nil {
			logger.Fatal("Failed to initialize transition guard", zap.Error(err))
		}
		defer guard.Close()
		fanoutOpts = append(fanoutOpts, services.WithGuard(guard))
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramService, err := services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		fanoutOpts = append(fanoutOpts, services.WithNotifier(telegramService))
	}

	fanout := services.NewFanout(firebaseStore, firebaseStore, firebaseStore, logger, fanoutOpts...)
	monitor := services.NewMonitor(firebaseStore, fanout, cfg.OfflineThreshold, cfg.SensorStaleThreshold, logger)

	dispatcher := services.NewDispatcher(logger)
	monitor.Register(dispatcher)

	logger.Info("Firewatch monitoring service started",
		zap.Duration("offline_threshold", cfg.OfflineThreshold),
		zap.Duration("sensor_stale_threshold", cfg.SensorStaleThreshold),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("history_cap", cfg.HistoryCap),
		zap.Float64("smoke_analog_threshold", cfg.SmokeAnalogThreshold),
	)

	// Subscribe to raw device document changes
	firebaseStore.SubscribeToDeviceChanges(ctx, cfg.PollInterval, func(change services.DeviceChange) {
		dispatcher.DispatchChange(ctx, change)
	})

	// Periodic online-state sweep
	go dispatcher.RunTicker(ctx, cfg.SweepInterval)

	// Callable endpoint for offline device registration
	callable := services.NewCallableServer(firebaseStore, firebaseStore, logger)
	go func() {
		if err := callable.Run(ctx, cfg.HTTPAddr); err != nil {
			logger.Error("Callable endpoint failed", zap.Error(err))
		}
	}()

	// Optional gateway ingestion paths for firmware without direct database
	// access
	if cfg.MQTTBrokerURL != "" {
		mqttIngest, err := services.NewMQTTIngest(cfg, firebaseStore, logger)
		if err != nil {
			logger.Fatal("Failed to initialize MQTT ingest", zap.Error(err))
		}
		defer mqttIngest.Close()
	}

	if cfg.RabbitMQURL != "" {
		rabbitIngest, err := services.NewRabbitMQIngest(cfg, firebaseStore, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ ingest", zap.Error(err))
		}
		defer rabbitIngest.Close()
		go func() {
			if err := rabbitIngest.Consume(ctx); err != nil {
				logger.Error("RabbitMQ consumer failed", zap.Error(err))
			}
		}()
	}

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, stopping services")
	cancel()

	// Give in-flight handlers a moment to finish
	time.Sleep(1 * time.Second)

	logger.Info("Firewatch monitoring service stopped")
}
