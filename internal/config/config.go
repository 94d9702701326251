// Package config handles configuration loading, saving, and schema definition.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level dhvos configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	Engine    EngineConfig    `json:"engine"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Fallback  FallbackConfig  `json:"fallback"`
	Channel   ChannelConfig   `json:"channel"`
	Redis     RedisConfig     `json:"redis"`
	Health    HealthConfig    `json:"health"`
	Workspace string          `json:"workspace,omitempty"`
}

// EngineConfig holds the response engine tuning knobs.
type EngineConfig struct {
	MatchThreshold    float64 `json:"matchThreshold,omitempty"`    // minimum score for a canned answer, in [0,1]
	FallbackTimeoutMs int     `json:"fallbackTimeoutMs,omitempty"` // per-attempt AI fallback deadline
	RetryCount        int     `json:"retryCount,omitempty"`        // total fallback attempts before giving up
	RateWindowMs      int     `json:"rateWindowMs,omitempty"`      // sliding rate-limit window
	RateMaxMessages   int     `json:"rateMaxMessages,omitempty"`   // max messages per chat per window
}

// FallbackTimeout returns the per-attempt fallback deadline as a Duration.
func (e EngineConfig) FallbackTimeout() time.Duration {
	return time.Duration(e.FallbackTimeoutMs) * time.Millisecond
}

// RateWindow returns the rate-limit window as a Duration.
func (e EngineConfig) RateWindow() time.Duration {
	return time.Duration(e.RateWindowMs) * time.Millisecond
}

// KnowledgeConfig holds knowledge base source settings.
// Exactly one of URL or Path should be set; URL wins when both are.
type KnowledgeConfig struct {
	URL              string `json:"url,omitempty"`  // published CSV URL
	Path             string `json:"path,omitempty"` // local CSV file
	RefreshIntervalS int    `json:"refreshIntervalS,omitempty"`
	RequestTimeoutS  int    `json:"requestTimeoutS,omitempty"`
}

// RefreshInterval returns the KB refresh interval as a Duration.
func (k KnowledgeConfig) RefreshInterval() time.Duration {
	return time.Duration(k.RefreshIntervalS) * time.Second
}

// RequestTimeout returns the KB fetch timeout as a Duration.
func (k KnowledgeConfig) RequestTimeout() time.Duration {
	return time.Duration(k.RequestTimeoutS) * time.Second
}

// FallbackConfig holds the generative fallback provider settings.
type FallbackConfig struct {
	APIKey       string  `json:"apiKey,omitempty"`
	APIBase      string  `json:"apiBase,omitempty"`
	Model        string  `json:"model,omitempty"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	HistorySize  int     `json:"historySize,omitempty"` // messages of context per chat
}

// ChannelConfig holds per-channel settings.
type ChannelConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Webchat  *WebchatConfig  `json:"webchat,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string   `json:"token"`
	GroupID   string   `json:"groupId,omitempty"` // only answer mentions inside this group
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// WebchatConfig holds the local websocket chat settings.
type WebchatConfig struct {
	Listen string `json:"listen,omitempty"` // host:port, default 127.0.0.1:18791
}

// RedisConfig holds the fallback-memory cache connection settings.
type RedisConfig struct {
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// HealthConfig holds the health/status HTTP server settings.
type HealthConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MatchThreshold:    0.8,
			FallbackTimeoutMs: 30000,
			RetryCount:        3,
			RateWindowMs:      60000,
			RateMaxMessages:   10,
		},
		Knowledge: KnowledgeConfig{
			RefreshIntervalS: 300,
			RequestTimeoutS:  10,
		},
		Fallback: FallbackConfig{
			Model:       "llama-3.3-70b-versatile",
			MaxTokens:   1024,
			Temperature: 0.5,
			HistorySize: 10,
		},
		Health: HealthConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
	}
}

// Validate checks option ranges the engine depends on.
func (c Config) Validate() error {
	if c.Engine.MatchThreshold < 0 || c.Engine.MatchThreshold > 1 {
		return fmt.Errorf("engine.matchThreshold must be in [0,1], got %v", c.Engine.MatchThreshold)
	}
	if c.Engine.FallbackTimeoutMs <= 0 {
		return fmt.Errorf("engine.fallbackTimeoutMs must be positive, got %d", c.Engine.FallbackTimeoutMs)
	}
	if c.Engine.RetryCount < 1 {
		return fmt.Errorf("engine.retryCount must be at least 1, got %d", c.Engine.RetryCount)
	}
	if c.Engine.RateWindowMs <= 0 || c.Engine.RateMaxMessages < 1 {
		return fmt.Errorf("engine rate limit misconfigured: window=%dms max=%d",
			c.Engine.RateWindowMs, c.Engine.RateMaxMessages)
	}
	return nil
}
