package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docutag/crawler"
	"github.com/docutag/crawler/api"
	"github.com/docutag/crawler/db"
	"github.com/docutag/crawler/storage"
	"github.com/docutag/crawler/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable, logging and falling back on invalid values
func getEnvInt(logger *slog.Logger, key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		logger.Warn("invalid integer value, using default", "key", key, "provided", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("crawler service initializing", "version", "1.0.0")

	tp, err := tracing.InitTracer("docutag-crawler")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	defaults := crawler.DefaultConfig()
	defaultPort := getEnv("PORT", "8080")
	defaultStoragePath := getEnv("STORAGE_BASE_PATH", "./storage")
	defaultWorkDir := getEnv("CRAWLER_WORKDIR", defaults.WorkingDirectory)
	defaultGitPath := getEnv("GIT_PATH", defaults.GitPath)
	defaultPandocPath := getEnv("PANDOC_PATH", defaults.PandocPath)
	defaultWorkers := getEnvInt(logger, "CRAWLER_WORKERS", defaults.Workers)
	defaultTimeout := getEnvInt(logger, "CONVERSION_TIMEOUT_SECONDS", int(defaults.ConversionTimeout/time.Second))

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	workDir := flag.String("workdir", defaultWorkDir, "Directory holding repository checkouts")
	workers := flag.Int("workers", defaultWorkers, "Documents loaded and exercises built in parallel")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "docutag")
	dbPassword := getEnv("DB_PASSWORD", "docutag_dev_pass")
	dbName := getEnv("DB_NAME", "docutag")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// S3 storage is used when a bucket is configured
	var s3Config *storage.S3Config
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		s3Config = &storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "false") == "true",
		}
	}

	config := api.Config{
		Addr:     ":" + *port,
		DBConfig: dbConfig,
		CrawlerConfig: crawler.Config{
			WorkingDirectory:  *workDir,
			GitPath:           defaultGitPath,
			PandocPath:        defaultPandocPath,
			ConversionTimeout: time.Duration(defaultTimeout) * time.Second,
			Workers:           *workers,
			Platform:          getEnv("CRAWLER_PLATFORM", defaults.Platform),
		},
		StorageConfig: storage.Config{BasePath: defaultStoragePath},
		S3Config:      s3Config,
		CORSEnabled:   !*disableCORS,
	}

	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("crawler service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"storage_path", defaultStoragePath,
			"s3_enabled", s3Config != nil,
			"workdir", *workDir,
			"workers", *workers,
		)

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
