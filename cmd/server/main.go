package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"story-engine/internal/config"
	"story-engine/internal/engine"
	"story-engine/internal/handler"
	"story-engine/internal/logger"
	"story-engine/internal/messaging"
	"story-engine/internal/middleware"
	"story-engine/internal/repository"
	"story-engine/internal/service"
	"story-engine/internal/worker"
	"story-engine/pkg/database"
	"story-engine/pkg/migration"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log.Println("Starting story server...")

	cfg, err := config.LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	eng, err := loadStory(cfg.SourcePath)
	if err != nil {
		reportLoadError(os.Stderr, cfg.SourcePath, err)
		os.Exit(1)
	}
	zapLogger.Info("Story loaded",
		zap.String("source", cfg.SourcePath),
		zap.Int("nodes", eng.NodeCount()),
		zap.Int("variables", eng.VariableCount()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := setupSessionStore(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to set up session store", zap.String("store", cfg.SessionStore), zap.Error(err))
	}
	defer closeStore()

	publisher, closePublisher, err := setupPublisher(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to set up session event publisher", zap.Error(err))
	}
	defer closePublisher()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessionService := service.NewSessionService(eng, repo, publisher, service.NewMetrics(registry), service.Config{
		SessionTimeout:    cfg.SessionTimeout,
		GlobalGameEnabled: cfg.GlobalGameEnabled,
	}, zapLogger)

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		worker.NewSessionSweeper(sessionService, cfg.SessionCleanupInterval, zapLogger).Run(ctx)
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.EchoZapLogger(zapLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	handler.NewGameHandler(sessionService, registry, zapLogger).RegisterRoutes(e, cfg.RoutePrefix)

	// Порт 0 - свободный порт от ОС; клиент узнает его из port.json
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		zapLogger.Fatal("Failed to bind port", zap.Int("port", cfg.Port), zap.Error(err))
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := config.WritePortFile(cfg.PortFile, port); err != nil {
		listener.Close()
		zapLogger.Fatal("Failed to write port file", zap.Error(err))
	}
	e.Listener = listener

	go func() {
		zapLogger.Info("Story server listening",
			zap.String("addr", listener.Addr().String()),
			zap.String("prefix", cfg.RoutePrefix),
			zap.String("portFile", cfg.PortFile))
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutdown signal received, shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
	<-sweeperDone

	zapLogger.Info("Story server stopped")
}

func loadStory(path string) (*engine.Engine, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story source: %w", err)
	}
	return engine.FromProgram(string(source))
}

// reportLoadError печатает ошибки сценария нумерованным списком.
func reportLoadError(w io.Writer, path string, err error) {
	var validationErrs engine.ValidationErrors
	if errors.As(err, &validationErrs) {
		fmt.Fprintf(w, "The story in %s has %d error(s):\n", path, len(validationErrs))
		for i, ve := range validationErrs {
			fmt.Fprintf(w, "%d. %s\n", i+1, ve.Error())
		}
		return
	}
	var syntaxErr *engine.SyntaxError
	if errors.As(err, &syntaxErr) {
		fmt.Fprintf(w, "The story in %s could not be parsed: %s\n", path, syntaxErr.Error())
		return
	}
	fmt.Fprintf(w, "Failed to load story %s: %v\n", path, err)
}

func setupSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.SessionRepository, func(), error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		return repository.NewRedisSessionRepository(client, cfg.SessionTimeout, logger), closeFn, nil

	case config.StorePostgres:
		db, err := database.New(ctx, database.Config{
			DSN:             cfg.GetDSN(),
			MaxConns:        cfg.DBMaxConns,
			MaxConnIdleTime: cfg.DBIdleTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		migrator := migration.NewMigrator(migration.Config{
			MigrationsFS:   repository.MigrationsFS,
			MigrationsPath: repository.MigrationsPath,
		}, db.Pool, logger)
		if err := migrator.Up(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewPgSessionRepository(db, logger), db.Close, nil

	default:
		logger.Info("Using in-memory session store; sessions are lost on restart")
		return repository.NewMemorySessionRepository(logger), func() {}, nil
	}
}

func setupPublisher(cfg *config.Config, logger *zap.Logger) (messaging.SessionEventPublisher, func(), error) {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL is empty, session events are not published")
		return messaging.NoopPublisher{}, func() {}, nil
	}

	conn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := messaging.NewRabbitMQPublisher(conn, cfg.SessionEventsQueue, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close rabbitmq channel", zap.Error(err))
		}
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close rabbitmq connection", zap.Error(err))
		}
	}
	return publisher, closeFn, nil
}

// connectRabbitMQ подключается к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 5
	const retryDelay = 2 * time.Second

	var conn *amqp.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ")
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", maxRetries, err)
}
