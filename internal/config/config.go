package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Хранилища сессий
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config содержит конфигурацию сервера историй
type Config struct {
	// Сценарий и HTTP
	SourcePath  string `envconfig:"STORY_SOURCE"`
	Port        int    `envconfig:"STORY_PORT" default:"0"`
	RoutePrefix string `envconfig:"STORY_ROUTE_PREFIX" default:""`
	PortFile    string `envconfig:"STORY_PORT_FILE" default:"port.json"`

	// Сессии
	SessionTimeout         time.Duration `envconfig:"SESSION_TIMEOUT" default:"24h"`
	SessionCleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"0"`
	SessionStore           string        `envconfig:"SESSION_STORE" default:"memory"`
	GlobalGameEnabled      bool          `envconfig:"GLOBAL_GAME_ENABLED" default:"true"`

	// Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword    string        `envconfig:"DB_PASSWORD" default:""`
	DBName        string        `envconfig:"DB_NAME" default:"story"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_TIME" default:"5m"`

	// RabbitMQ. Пустой URL отключает публикацию событий.
	RabbitMQURL        string `envconfig:"RABBITMQ_URL" default:""`
	SessionEventsQueue string `envconfig:"SESSION_EVENTS_QUEUE" default:"story_session_events"`

	// Логирование
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig читает переменные окружения, затем флаги командной строки.
// Флаги имеют приоритет над окружением.
func LoadConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load story server config: %w", err)
	}

	timeoutHours := cfg.SessionTimeout.Hours()
	fs.StringVar(&cfg.SourcePath, "source", cfg.SourcePath, "Path to the story program")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on (0 picks a free port)")
	fs.StringVar(&cfg.RoutePrefix, "prefix", cfg.RoutePrefix, "Prefix for every route, e.g. /api")
	fs.Float64Var(&timeoutHours, "session-timeout-hours", timeoutHours, "Hours of inactivity after which a session expires")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	cfg.SessionTimeout = time.Duration(timeoutHours * float64(time.Hour))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Printf("Story server config loaded:")
	log.Printf("  Source: %s", cfg.SourcePath)
	log.Printf("  Port: %d (port file: %s)", cfg.Port, cfg.PortFile)
	log.Printf("  Route prefix: %q", cfg.RoutePrefix)
	log.Printf("  Session timeout: %v, cleanup interval: %v", cfg.SessionTimeout, cfg.SessionCleanupInterval)
	log.Printf("  Session store: %s", cfg.SessionStore)
	log.Printf("  Global game enabled: %t", cfg.GlobalGameEnabled)
	switch cfg.SessionStore {
	case StoreRedis:
		log.Printf("  Redis: %s db=%d", cfg.RedisAddr, cfg.RedisDB)
	case StorePostgres:
		log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	}
	if cfg.RabbitMQURL != "" {
		log.Printf("  RabbitMQ: [CONFIGURED], queue: %s", cfg.SessionEventsQueue)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SourcePath == "" {
		return fmt.Errorf("story source is required (STORY_SOURCE or -source)")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %v", c.SessionTimeout)
	}
	if c.RoutePrefix != "" && !strings.HasPrefix(c.RoutePrefix, "/") {
		return fmt.Errorf("route prefix %q must start with '/'", c.RoutePrefix)
	}
	c.RoutePrefix = strings.TrimSuffix(c.RoutePrefix, "/")
	switch c.SessionStore {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}
	return nil
}

// PortFile - содержимое port.json, по которому клиент находит сервер.
type PortFile struct {
	Port int `json:"port"`
}

// WritePortFile записывает фактический порт сервера в файл.
func WritePortFile(path string, port int) error {
	data, err := json.Marshal(PortFile{Port: port})
	if err != nil {
		return fmt.Errorf("failed to encode port file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write port file %s: %w", path, err)
	}
	return nil
}
