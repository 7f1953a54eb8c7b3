package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intake-server/pkg/config"
	"intake-server/pkg/database"
	"intake-server/pkg/extraction"
	httpserver "intake-server/pkg/http"
	"intake-server/pkg/messaging"
	"intake-server/pkg/metrics"
	"intake-server/pkg/pipeline"
	"intake-server/pkg/tracking"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.SetupLogger(logger)

	if cfg.HTTP.EnableMetrics {
		metrics.Init(logger)
	} else {
		metrics.EnableMetrics(false)
	}

	db, err := database.NewMySQLDatabase(database.MySQLConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	repo := database.NewRepository(db, logger)

	publisher := messaging.NewNotificationPublisher(logger, messaging.AMQPConfig{
		URL:            cfg.Messaging.URL,
		QueueName:      cfg.Messaging.QueueName,
		ConnectTimeout: cfg.Messaging.ConnectTimeout,
	})
	if publisher.Enabled() {
		if err := publisher.Connect(); err != nil {
			// Notification loss is a degraded mode, not a startup failure
			logger.WithError(err).Warn("Failed to connect to AMQP, notifications disabled until restart")
		}
		defer publisher.Disconnect()
	}

	var annotator extraction.FieldAnnotator
	if cfg.Extraction.APIKey != "" {
		annotator = extraction.NewOpenAIClient(logger, cfg.Extraction.APIKey,
			cfg.Extraction.Model, cfg.Extraction.RequestTimeout, nil)
	} else {
		logger.Warn("OPENAI_API_KEY not set, only deterministic claim-number extraction will run")
	}

	locator := extraction.NewConfirmationLocator(cfg.Extraction.MaxScanTurns)
	extractor := extraction.NewExtractor(logger, locator, annotator,
		cfg.Extraction.RequestTimeout, cfg.Extraction.MaxRetries)

	tracker := tracking.NewCallerTracker(repo, logger)
	reconciler := tracking.NewLeadReconciler(repo, tracking.NewRepositoryTransactor(repo), logger)

	processor := pipeline.NewProcessor(logger, extractor, tracker, reconciler, publisher, repo)

	server := httpserver.NewServer(logger, &httpserver.Config{
		Port:          cfg.HTTP.Port,
		EnableMetrics: cfg.HTTP.EnableMetrics,
		ReadTimeout:   cfg.HTTP.ReadTimeout,
		WriteTimeout:  cfg.HTTP.WriteTimeout,
	}, processor, tracker, db)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("HTTP server exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Intake server stopped")
}
