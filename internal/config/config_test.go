package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.8, cfg.Engine.MatchThreshold)
	assert.Equal(t, 30000, cfg.Engine.FallbackTimeoutMs)
	assert.Equal(t, 3, cfg.Engine.RetryCount)
	assert.Equal(t, 60000, cfg.Engine.RateWindowMs)
	assert.Equal(t, 10, cfg.Engine.RateMaxMessages)
	assert.Equal(t, 300, cfg.Knowledge.RefreshIntervalS)
	assert.Equal(t, 5000, cfg.Health.Port)
	assert.NoError(t, cfg.Validate())
}

func TestEngineConfig_Durations(t *testing.T) {
	e := EngineConfig{FallbackTimeoutMs: 1500, RateWindowMs: 60000}
	assert.Equal(t, 1500*time.Millisecond, e.FallbackTimeout())
	assert.Equal(t, time.Minute, e.RateWindow())
}

func TestConfig_CamelCaseJSON(t *testing.T) {
	jsonStr := `{
		"engine": {"matchThreshold": 0.9, "fallbackTimeoutMs": 5000, "rateMaxMessages": 20},
		"knowledge": {"url": "https://example.com/kb.csv", "refreshIntervalS": 60},
		"channel": {"telegram": {"token": "abc", "groupId": "-100123", "allowFrom": ["u1"]}},
		"redis": {"url": "redis://localhost:6379"}
	}`

	cfg := DefaultConfig()
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &cfg))

	assert.Equal(t, 0.9, cfg.Engine.MatchThreshold)
	assert.Equal(t, 5000, cfg.Engine.FallbackTimeoutMs)
	assert.Equal(t, 20, cfg.Engine.RateMaxMessages)
	// Unset fields keep defaults
	assert.Equal(t, 3, cfg.Engine.RetryCount)
	assert.Equal(t, "https://example.com/kb.csv", cfg.Knowledge.URL)
	assert.Equal(t, 60, cfg.Knowledge.RefreshIntervalS)
	require.NotNil(t, cfg.Channel.Telegram)
	assert.Equal(t, "abc", cfg.Channel.Telegram.Token)
	assert.Equal(t, "-100123", cfg.Channel.Telegram.GroupID)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MatchThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.RetryCount = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.RateWindowMs = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.Knowledge.Path = "/tmp/kb.csv"
	cfg.Engine.MatchThreshold = 0.85

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.85, loaded.Engine.MatchThreshold)
	assert.Equal(t, "/tmp/kb.csv", loaded.Knowledge.Path)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
