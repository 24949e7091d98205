package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"story-engine/internal/client"
	"story-engine/internal/config"
	"story-engine/internal/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	modeSession = "session"
	modeGlobal  = "global"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "port.json", "File with the server port, written by the story server")
	mode := flag.String("mode", modeSession, "Game mode: session (own session) or global (shared game)")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load client config: %v", err)
	}

	// Лог в stderr, чтобы не мешать выводу игры
	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: "console", OutputPath: "stderr"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, zapLogger); err != nil {
		zapLogger.Error("Game ended with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, mode string, zapLogger *zap.Logger) error {
	api := client.NewHTTPClient(cfg.BaseURL(), cfg.HTTPTimeout, zapLogger)

	var game client.Game
	switch mode {
	case modeGlobal:
		game = client.NewGlobalGame(api)
	case modeSession:
		var err error
		game, err = client.StartSession(ctx, api)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", mode, modeSession, modeGlobal)
	}

	return client.NewPlayer(game, os.Stdin, os.Stdout).Run(ctx)
}
