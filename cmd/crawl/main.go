// Command crawl builds the exercise catalog of one repository and writes it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docutag/crawler"
)

func main() {
	_ = godotenv.Load()

	// Logs go to stderr so stdout stays valid JSON
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	defaults := crawler.DefaultConfig()

	url := flag.String("url", "", "git URL of the repository to crawl (required)")
	license := flag.String("license", "", "License of the exercises, e.g. CC BY-SA 4.0")
	inginiousURL := flag.String("inginious-url", "", "Base URL of the course on the platform")
	out := flag.String("out", "", "Output file (default stdout)")
	workDir := flag.String("workdir", defaults.WorkingDirectory, "Directory holding repository checkouts")
	workers := flag.Int("workers", defaults.Workers, "Documents loaded and exercises built in parallel")
	pandoc := flag.String("pandoc", defaults.PandocPath, "pandoc binary")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "-url is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := defaults
	config.WorkingDirectory = *workDir
	config.Workers = *workers
	config.PandocPath = *pandoc

	c := crawler.New(config, nil)
	catalog, err := c.Crawl(ctx, crawler.Options{
		URL:          *url,
		License:      *license,
		InginiousURL: *inginiousURL,
	})
	if err != nil {
		logger.Error("crawl failed", "url", *url, "error", err)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		logger.Error("failed to encode catalog", "error", err)
		os.Exit(1)
	}

	if *out == "" {
		os.Stdout.Write(append(data, '\n'))
		return
	}

	if err := os.WriteFile(*out, data, 0644); err != nil {
		logger.Error("failed to write catalog", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("catalog written", "path", *out, "exercises", len(catalog.Exercises))
}
