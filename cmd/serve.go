package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhvos/dhvos-go/internal/bus"
	"github.com/dhvos/dhvos-go/internal/channels"
	"github.com/dhvos/dhvos-go/internal/engine"
	"github.com/dhvos/dhvos-go/internal/fallback"
	"github.com/dhvos/dhvos-go/internal/health"
	"github.com/dhvos/dhvos-go/internal/knowledge"
	"github.com/dhvos/dhvos-go/internal/match"
	"github.com/dhvos/dhvos-go/internal/redis"
	"github.com/dhvos/dhvos-go/internal/session"
	"github.com/dhvos/dhvos-go/internal/track"
	"github.com/dhvos/dhvos-go/internal/unknown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant (channels + engine + health endpoint)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := knowledgeSource(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Knowledge base: load once up front, then keep fresh in the background.
	store := knowledge.NewStore()
	loader := knowledge.NewLoader(store, src)
	if err := loader.Load(ctx); err != nil {
		log.Printf("[Serve] Initial knowledge load failed, continuing degraded: %v", err)
	}
	go loader.Run(ctx, cfg.Knowledge.RefreshInterval())
	go func() {
		if err := loader.Watch(ctx); err != nil {
			log.Printf("[Serve] Knowledge watcher stopped: %v", err)
		}
	}()

	// Optional answer cache; absence of Redis degrades to always-miss.
	var memory *fallback.Memory
	if redis.Init(redis.Config(cfg.Redis)) {
		memory = fallback.NewMemory(memoryTTL)
		defer redis.Close()
	}

	dataDir := workspaceDir(cfg)
	unknownLog, err := unknown.NewLogger(filepath.Join(dataDir, "unknown_questions.csv"))
	if err != nil {
		return fmt.Errorf("unknown-question log: %w", err)
	}

	tracker := track.NewTracker(track.Config{
		Window:      cfg.Engine.RateWindow(),
		MaxMessages: cfg.Engine.RateMaxMessages,
	})
	defer tracker.Stop()

	msgBus := bus.NewMessageBus()
	eng := engine.New(engine.Config{
		FallbackTimeout: cfg.Engine.FallbackTimeout(),
		RetryCount:      cfg.Engine.RetryCount,
		HistorySize:     cfg.Fallback.HistorySize,
	}, engine.Deps{
		Store:    store,
		Matcher:  match.New(cfg.Engine.MatchThreshold),
		Provider: newProvider(cfg),
		Tracker:  tracker,
		Bus:      msgBus,
		Memory:   memory,
		Sessions: session.NewManager(dataDir, cfg.Fallback.HistorySize*2),
		Unknown:  unknownLog,
	})

	chMgr := channels.NewManager(msgBus)
	if tg := cfg.Channel.Telegram; tg != nil && tg.Token != "" {
		chMgr.Register(channels.NewTelegramChannel(tg.Token, tg.GroupID, tg.AllowFrom, msgBus))
		log.Println("[Serve] Telegram channel enabled")
	}
	if web := cfg.Channel.Webchat; web != nil {
		listen := web.Listen
		if listen == "" {
			listen = "127.0.0.1:18791"
		}
		chMgr.Register(channels.NewWebchatChannel(listen, nil, msgBus))
		log.Println("[Serve] Webchat channel enabled")
	}
	if enabled := chMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("Channels enabled: %v\n", enabled)
	} else {
		fmt.Println("No channels enabled; only the health endpoint will respond")
	}

	healthSrv := health.NewServer(
		fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port),
		store, eng.Stats(), tracker,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		chMgr.StopAll()
		cancel()
	}()

	go eng.Run(ctx)
	errCh := make(chan error, 2)
	go func() { errCh <- healthSrv.Start(ctx) }()
	go func() { errCh <- chMgr.StartAll(ctx) }()

	return <-errCh
}
