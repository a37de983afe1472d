package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pullsage/pullsage/config"
	"github.com/pullsage/pullsage/github"
	"github.com/pullsage/pullsage/review"
	"github.com/pullsage/pullsage/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	srv, port, err := initialize(logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func initialize(logger *slog.Logger) (*server.Server, string, error) {
	appID, err := requiredInt64("GITHUB_APP_ID")
	if err != nil {
		return nil, "", err
	}

	webhookSecret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, "", fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	privateKey, err := loadPrivateKey()
	if err != nil {
		return nil, "", err
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, "", fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	auth, err := github.NewAppAuth(appID, privateKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load GitHub App credentials: %w", err)
	}

	ghClient := github.NewClient()

	generator := review.NewClaudeGenerator(apiKey, logger)
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		generator.SetModel(model)
	}
	if maxDiff := optionalInt(logger, "REVIEW_MAX_DIFF_BYTES", 0); maxDiff > 0 {
		generator.SetMaxDiffBytes(maxDiff)
	}
	if timeoutSecs := optionalInt(logger, "REVIEW_TIMEOUT_SECONDS", 0); timeoutSecs > 0 {
		generator.SetTimeout(time.Duration(timeoutSecs) * time.Second)
	}

	reviewer := review.NewReviewer(auth, ghClient, generator, config.NewLoader(ghClient), logger, review.Options{
		Concurrency: optionalInt(logger, "REVIEW_CONCURRENCY", 0),
		BotName:     os.Getenv("BOT_NAME"),
	})

	defaultInstallationID, _ := strconv.ParseInt(os.Getenv("GITHUB_INSTALLATION_ID"), 10, 64)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	webhooks := github.NewWebhookHandler(webhookSecret)

	return server.New(webhooks, reviewer, defaultInstallationID, logger), port, nil
}

// loadPrivateKey reads the App private key from GITHUB_PRIVATE_KEY, or
// from the file named by GITHUB_PRIVATE_KEY_PATH.
func loadPrivateKey() ([]byte, error) {
	if key := os.Getenv("GITHUB_PRIVATE_KEY"); key != "" {
		return []byte(key), nil
	}
	if path := os.Getenv("GITHUB_PRIVATE_KEY_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("GITHUB_PRIVATE_KEY or GITHUB_PRIVATE_KEY_PATH is required")
}

func requiredInt64(name string) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}

func optionalInt(logger *slog.Logger, name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("ignoring malformed env value", "name", name, "value", raw, "default", fallback)
		return fallback
	}
	return v
}
