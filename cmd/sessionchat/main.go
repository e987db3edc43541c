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
	"syscall"
	"time"

	"SessionChat/internal/backend"
	"SessionChat/internal/chatbot"
	"SessionChat/internal/config"
	"SessionChat/internal/server"
	"SessionChat/internal/store"
	"SessionChat/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	fc := config.Default()

	flag.StringVar(&configPath, "config", "sessionchat.yaml", "Path to YAML config file (optional)")
	flag.StringVar(&fc.Backend, "backend", fc.Backend, "LLM backend (ollama|anthropic|grok|openai)")
	flag.StringVar(&fc.DBPath, "db", fc.DBPath, "SQLite database file")
	flag.StringVar(&fc.LogDir, "log-dir", fc.LogDir, "Directory for logs, traces and metrics")
	flag.BoolVar(&fc.Debug, "debug", fc.Debug, "Enable debug logging to stderr")
	flag.BoolVar(&fc.Serve, "serve", fc.Serve, "Serve the HTTP API instead of the terminal chat")
	flag.StringVar(&fc.Addr, "addr", fc.Addr, "Listen address for -serve")
	flag.StringVar(&fc.Ollama.Model, "ollama-model", fc.Ollama.Model, "Ollama model specification (format: model:version)")
	flag.DurationVar(&fc.HTTPTimeout, "http-timeout", fc.HTTPTimeout, "Timeout for model calls (0 = none)")
	flag.Parse()

	cfg := config.Default()
	if err := config.LoadFile(configPath, &cfg); err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = fc.Backend
		case "db":
			cfg.DBPath = fc.DBPath
		case "log-dir":
			cfg.LogDir = fc.LogDir
		case "debug":
			cfg.Debug = fc.Debug
		case "serve":
			cfg.Serve = fc.Serve
		case "addr":
			cfg.Addr = fc.Addr
		case "ollama-model":
			cfg.Ollama.Model = fc.Ollama.Model
		case "http-timeout":
			cfg.HTTPTimeout = fc.HTTPTimeout
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdownTelemetry()

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()

	b, err := backend.New(cfg)
	if err != nil {
		return err
	}

	bot := chatbot.NewChatBot(cfg, b, st, logger)
	if cfg.Serve {
		return serve(cfg, bot, logger)
	}
	return bot.Run(ctx, os.Stdin, os.Stdout)
}

// serve runs the HTTP API until SIGINT or SIGTERM
func serve(cfg config.Config, bot *chatbot.ChatBot, logger *slog.Logger) error {
	e := server.New(server.NewHandler(bot, logger))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("HTTP API started", "addr", cfg.Addr, "backend", cfg.Backend)
	fmt.Printf("Listening on http://%s\n", cfg.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	return nil
}
