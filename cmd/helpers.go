package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dhvos/dhvos-go/internal/config"
	"github.com/dhvos/dhvos-go/internal/fallback"
	"github.com/dhvos/dhvos-go/internal/knowledge"
)

// loadConfig reads the config file and layers environment overrides on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv maps deployment environment variables onto the config. Values from
// the environment win over the file, so secrets never need to live on disk.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Fallback.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		if cfg.Channel.Telegram == nil {
			cfg.Channel.Telegram = &config.TelegramConfig{}
		}
		cfg.Channel.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_GROUP_ID"); v != "" {
		if cfg.Channel.Telegram == nil {
			cfg.Channel.Telegram = &config.TelegramConfig{}
		}
		cfg.Channel.Telegram.GroupID = v
	}
	if v := os.Getenv("KNOWLEDGE_CSV_URL"); v != "" {
		cfg.Knowledge.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
}

// knowledgeSource picks the configured knowledge source; URL wins over Path.
func knowledgeSource(cfg config.Config) (knowledge.Source, error) {
	switch {
	case cfg.Knowledge.URL != "":
		return knowledge.NewHTTPSource(cfg.Knowledge.URL, cfg.Knowledge.RequestTimeout()), nil
	case cfg.Knowledge.Path != "":
		return &knowledge.FileSource{Path: cfg.Knowledge.Path}, nil
	default:
		return nil, fmt.Errorf("no knowledge source configured: set knowledge.url or knowledge.path")
	}
}

// newProvider builds the generative fallback client from config.
func newProvider(cfg config.Config) *fallback.Client {
	return fallback.NewClient(fallback.Config{
		APIKey:       cfg.Fallback.APIKey,
		APIBase:      cfg.Fallback.APIBase,
		Model:        cfg.Fallback.Model,
		SystemPrompt: cfg.Fallback.SystemPrompt,
		MaxTokens:    cfg.Fallback.MaxTokens,
		Temperature:  cfg.Fallback.Temperature,
	})
}

// workspaceDir resolves the data directory, defaulting to ~/.dhvos.
func workspaceDir(cfg config.Config) string {
	if cfg.Workspace != "" {
		return cfg.Workspace
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dhvos")
}

// memoryTTL is how long cached AI answers stay valid.
const memoryTTL = 7 * 24 * time.Hour
