package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ClientConfig - настройки консольного клиента.
// Порт берется из port.json, который пишет сервер; остальное из окружения.
type ClientConfig struct {
	Port        int           `json:"port" env:"STORY_PORT" env-required:"true"`
	Host        string        `json:"host" env:"STORY_HOST" env-default:"localhost"`
	RoutePrefix string        `json:"prefix" env:"STORY_ROUTE_PREFIX" env-default:""`
	HTTPTimeout time.Duration `json:"http_timeout" env:"STORY_HTTP_TIMEOUT" env-default:"10s"`
	LogLevel    string        `json:"log_level" env:"LOG_LEVEL" env-default:"warn"`
}

// LoadClientConfig читает файл (обычно port.json) и переменные окружения.
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read client config %s: %w", path, err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d in %s", cfg.Port, path)
	}
	return &cfg, nil
}

// BaseURL - адрес сервера вида http://host:port/prefix.
func (c *ClientConfig) BaseURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   strings.TrimSuffix(c.RoutePrefix, "/"),
	}
	return u.String()
}
