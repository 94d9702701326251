package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhvos/dhvos-go/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dhvos status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("dhvos status")
	fmt.Println()
	fmt.Printf("Config: %s\n", config.GetConfigPath())
	fmt.Printf("Workspace: %s\n", workspaceDir(cfg))
	fmt.Printf("Fallback model: %s\n", cfg.Fallback.Model)

	fmt.Println("\nChannels:")
	if tg := cfg.Channel.Telegram; tg != nil && tg.Token != "" {
		fmt.Println("  Telegram: configured")
	}
	if web := cfg.Channel.Webchat; web != nil {
		fmt.Println("  Webchat: configured")
	}

	// A running serve process answers on the health port.
	url := fmt.Sprintf("http://%s:%d/healthz", cfg.Health.Host, cfg.Health.Port)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("\nService: not running")
		return nil
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Println("\nService: unreadable health response")
		return nil
	}

	fmt.Printf("\nService: %v\n", body["status"])
	if kb, ok := body["knowledge"].(map[string]any); ok {
		fmt.Printf("Knowledge entries: %v (loaded %v)\n", kb["entries"], kb["loadedAt"])
	}
	if eng, ok := body["engine"].(map[string]any); ok {
		fmt.Printf("Messages received: %v\n", eng["received"])
		fmt.Printf("Answered from KB: %v\n", eng["answeredKB"])
		fmt.Printf("Answered by AI: %v\n", eng["answeredAI"])
		fmt.Printf("Failed: %v\n", eng["failed"])
	}
	return nil
}
