package main

import (
	"flag"
	"fmt"
	"os"
)

type Config struct {
	Port      int
	Host      string
	LogLevel  string
	LogFormat string

	// Simulation setup.
	NumClients  int
	InputSize   int
	HiddenSize  int
	OutputSize  int
	Seed        int64
	Strategy    string
	Metric      string
	FailureRate float64

	// Experiment storage.
	StorageBackend string
	StoragePath    string
	RedisAddr      string
	S3Bucket       string
	S3Region       string

	Version bool
}

func ParseFlags() *Config {
	config := &Config{}

	flag.IntVar(&config.Port, "port", 8080, "Server port")
	flag.StringVar(&config.Host, "host", "0.0.0.0", "Server host")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&config.LogFormat, "log-format", "json", "Log format (json, text)")
	flag.IntVar(&config.NumClients, "clients", 8, "Number of simulated clients")
	flag.IntVar(&config.InputSize, "input-size", 8, "Model input layer size")
	flag.IntVar(&config.HiddenSize, "hidden-size", 16, "Model hidden layer size")
	flag.IntVar(&config.OutputSize, "output-size", 4, "Model output layer size")
	flag.Int64Var(&config.Seed, "seed", 42, "Seed for model init, data partitioning and training noise")
	flag.StringVar(&config.Strategy, "strategy", "none", "Client aggregation strategy (none, 50-50, gravity)")
	flag.StringVar(&config.Metric, "metric", "cosine", "Distance metric (l1, l2, cosine)")
	flag.Float64Var(&config.FailureRate, "failure-rate", 0, "Per-round probability of a simulated client failure")
	flag.StringVar(&config.StorageBackend, "storage", "file", "Experiment storage backend (file, redis, s3)")
	flag.StringVar(&config.StoragePath, "storage-path", "./experiments", "Base path for file storage")
	flag.StringVar(&config.RedisAddr, "redis-addr", "localhost:6379", "Redis address for redis storage")
	flag.StringVar(&config.S3Bucket, "s3-bucket", "", "Bucket for s3 storage")
	flag.StringVar(&config.S3Region, "s3-region", "us-east-1", "Region for s3 storage")
	flag.BoolVar(&config.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nFederated Learning Simulation Server\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if config.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildDate)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		os.Exit(0)
	}

	return config
}
