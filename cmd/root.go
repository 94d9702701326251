package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dhvos",
	Short: "dhvos — knowledge-first community assistant",
	Long: "dhvos answers community questions from a curated knowledge base,\n" +
		"falling back to a generative model only when the knowledge base has no\n" +
		"confident answer.",
}

// Execute runs the root command.
func Execute() {
	// Local .env files are a convenience for development; absence is fine.
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.dhvos/config.json)")
}
