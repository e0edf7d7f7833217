package main

import (
	"fmt"
	"os"

	"github.com/liliang-cn/recallchat/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "recallchat",
	Short: "Chat over your browsing history",
	Long: `recallchat answers chat messages, searching the user's browsing history
when a message asks to find something they visited before.

  recallchat serve                       # run the HTTP API and status monitors
  recallchat ask "find that go article"  # run one turn from the terminal
  recallchat dedupe                      # remove duplicated turns from storage`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// setup loads configuration and creates the logger shared by every command
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var logger *zap.Logger
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
