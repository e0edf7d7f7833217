package main

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/spf13/cobra"
)

var askThread string

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run a single chat turn and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askThread, "thread", "cli", "Thread id the turn is stored under")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.chat.Chat(cmd.Context(), askThread, &domain.ChatRequest{Message: strings.Join(args, " ")})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Answer)
	if resp.Intent.IsSearchQuery {
		fmt.Fprintf(out, "\n[%s match, %d results]\n", resp.Assessment.Quality, resp.Assessment.Count)
		for i, link := range resp.Links {
			if i == 3 {
				break
			}
			fmt.Fprintf(out, "  %d. %s\n     %s\n", i+1, link.Title, link.URL)
		}
	}
	if resp.Error != "" {
		return fmt.Errorf("turn failed: %s", resp.Error)
	}
	return nil
}
