package config

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("story-server", flag.ContinueOnError)
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("STORY_SOURCE", "story.txt")

		cfg, err := LoadConfig(newFlagSet(), nil)
		require.NoError(t, err)
		assert.Equal(t, "story.txt", cfg.SourcePath)
		assert.Equal(t, 0, cfg.Port)
		assert.Equal(t, "", cfg.RoutePrefix)
		assert.Equal(t, "port.json", cfg.PortFile)
		assert.Equal(t, 24*time.Hour, cfg.SessionTimeout)
		assert.Equal(t, StoreMemory, cfg.SessionStore)
		assert.True(t, cfg.GlobalGameEnabled)
		assert.Equal(t, "story_session_events", cfg.SessionEventsQueue)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("STORY_SOURCE", "env.txt")
		t.Setenv("STORY_PORT", "8000")
		t.Setenv("STORY_ROUTE_PREFIX", "/env")

		cfg, err := LoadConfig(newFlagSet(), []string{
			"-source", "flag.txt",
			"-port", "9000",
			"-prefix", "/api/",
			"-session-timeout-hours", "0.5",
		})
		require.NoError(t, err)
		assert.Equal(t, "flag.txt", cfg.SourcePath)
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, "/api", cfg.RoutePrefix)
		assert.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	})

	t.Run("environment timeout is kept without flag", func(t *testing.T) {
		t.Setenv("STORY_SOURCE", "story.txt")
		t.Setenv("SESSION_TIMEOUT", "90m")

		cfg, err := LoadConfig(newFlagSet(), nil)
		require.NoError(t, err)
		assert.Equal(t, 90*time.Minute, cfg.SessionTimeout)
	})

	t.Run("invalid values", func(t *testing.T) {
		cases := map[string][]string{
			"missing source":  {},
			"negative port":   {"-source", "s.txt", "-port", "-1"},
			"zero timeout":    {"-source", "s.txt", "-session-timeout-hours", "0"},
			"relative prefix": {"-source", "s.txt", "-prefix", "api"},
		}
		for name, args := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := LoadConfig(newFlagSet(), args)
				assert.Error(t, err)
			})
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("STORY_SOURCE", "story.txt")
		t.Setenv("SESSION_STORE", "etcd")

		_, err := LoadConfig(newFlagSet(), nil)
		assert.ErrorContains(t, err, "unknown session store")
	})
}

func TestGetDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "5432", DBName: "story", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/story?sslmode=disable", cfg.GetDSN())
}

func TestPortFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.json")
	require.NoError(t, WritePortFile(path, 41234))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var pf PortFile
	require.NoError(t, json.Unmarshal(data, &pf))
	assert.Equal(t, 41234, pf.Port)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 41234, cfg.Port)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "http://localhost:41234", cfg.BaseURL())
}

func TestLoadClientConfig(t *testing.T) {
	t.Run("environment overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "port.json")
		require.NoError(t, WritePortFile(path, 8080))
		t.Setenv("STORY_HOST", "127.0.0.1")
		t.Setenv("STORY_ROUTE_PREFIX", "/game/")
		t.Setenv("STORY_HTTP_TIMEOUT", "3s")

		cfg, err := LoadClientConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
		assert.Equal(t, "http://127.0.0.1:8080/game", cfg.BaseURL())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("bad port", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "port.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"port": 70000}`), 0o644))
		_, err := LoadClientConfig(path)
		assert.ErrorContains(t, err, "invalid server port")
	})
}
