package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/aggregation"
	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/internal/experiment"
	"github.com/inferloop/flsim/internal/model"
	obsmetrics "github.com/inferloop/flsim/internal/observability/metrics"
	"github.com/inferloop/flsim/internal/server"
	"github.com/inferloop/flsim/internal/simulation"
	"github.com/inferloop/flsim/internal/storage"
	"github.com/inferloop/flsim/internal/training"
)

func main() {
	config := ParseFlags()

	logger := setupLogger(config.LogLevel, config.LogFormat)

	logger.WithFields(logrus.Fields{
		"version":   Version,
		"commit":    GitCommit,
		"buildDate": BuildDate,
	}).Info("Starting federated learning simulation server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	collector := obsmetrics.NewCollector(logger)

	orch, err := buildOrchestrator(config, collector, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build simulation")
	}

	backend, err := buildStorage(ctx, config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up experiment storage")
	}
	defer backend.Close()

	store := experiment.NewStore(logger)

	srv, err := server.NewServer(&server.Config{
		Host:         config.Host,
		Port:         config.Port,
		ReadTimeout:  server.NewDefaultConfig().ReadTimeout,
		WriteTimeout: server.NewDefaultConfig().WriteTimeout,
	}, orch, store, backend, collector, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	if err := srv.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// buildOrchestrator assembles the simulated client fleet and the aggregation
// engine from the command line settings.
func buildOrchestrator(config *Config, collector *obsmetrics.Collector, logger *logrus.Logger) (*simulation.Orchestrator, error) {
	if config.NumClients < 1 {
		return nil, fmt.Errorf("at least one client is required")
	}

	aggConfig := aggregation.NewDefaultConfig()
	aggConfig.ClientAggregationMethod = aggregation.Strategy(config.Strategy)
	aggConfig.DistanceMetric = distance.Metric(config.Metric)
	switch aggConfig.ClientAggregationMethod {
	case aggregation.StrategyGravity:
		aggConfig.AggregationMethod = "gravity"
		aggConfig.Gravity = &aggregation.GravityParams{
			GravitationConstant: 1.0,
			ClusterWeight:       1.0,
			ClientWeight:        1.0,
		}
	case aggregation.StrategyFiftyFifty:
		aggConfig.AggregationMethod = "50-50"
		aggConfig.FiftyFifty = &aggregation.FiftyFiftyParams{}
	}

	clients := make([]simulation.ClientSpec, 0, config.NumClients)
	for i := 0; i < config.NumClients; i++ {
		clients = append(clients, simulation.ClientSpec{
			ID:       fmt.Sprintf("client-%d", i),
			Name:     fmt.Sprintf("Client %d", i),
			DataSize: 100 * (i%4 + 1),
		})
	}

	trainer := training.NewSimTrainer(&training.Config{
		Seed:        config.Seed,
		FailureRate: config.FailureRate,
	}, logger)

	return simulation.NewOrchestrator(simulation.Options{
		Clients: clients,
		Shape: model.WeightShape{
			HiddenRows: config.InputSize,
			HiddenCols: config.HiddenSize,
			OutputRows: config.HiddenSize,
			OutputCols: config.OutputSize,
		},
		Aggregation: aggConfig,
		Trainer:     trainer,
		Seed:        config.Seed,
		Logger:      logger,
		Collector:   collector,
	})
}

func buildStorage(ctx context.Context, config *Config, logger *logrus.Logger) (storage.Backend, error) {
	factory := storage.NewFactory(logger)
	backend, err := factory.Create(config.StorageBackend, storage.Config{
		Type:     config.StorageBackend,
		BasePath: config.StoragePath,
		Addr:     config.RedisAddr,
		Bucket:   config.S3Bucket,
		Region:   config.S3Region,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.Connect(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
