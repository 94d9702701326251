package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhvos/dhvos-go/internal/bus"
	"github.com/dhvos/dhvos-go/internal/engine"
	"github.com/dhvos/dhvos-go/internal/knowledge"
	"github.com/dhvos/dhvos-go/internal/match"
	"github.com/dhvos/dhvos-go/internal/track"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := knowledgeSource(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := knowledge.NewStore()
	if err := knowledge.NewLoader(store, src).Load(ctx); err != nil {
		return err
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
	}, engine.Deps{
		Store:    store,
		Matcher:  match.New(cfg.Engine.MatchThreshold),
		Provider: newProvider(cfg),
		Tracker:  tracker,
		Bus:      msgBus,
	})

	eng.HandleMessage(ctx, bus.InboundMessage{
		Channel:   "cli",
		ChatID:    "local",
		MessageID: 1,
		SenderID:  "cli",
		Content:   strings.Join(args, " "),
		Timestamp: time.Now(),
	})

	select {
	case reply := <-msgBus.Outbound:
		fmt.Println(reply.Content)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no answer produced")
	}
}
