package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe [thread-id]",
	Short: "Remove duplicated turns from one thread, or from all threads",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDedupe,
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
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

	var removed int
	if len(args) == 1 {
		removed, err = a.admin.DeduplicateThread(cmd.Context(), args[0])
	} else {
		removed, err = a.admin.DeduplicateAll(cmd.Context())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d duplicate turns\n", removed)
	return nil
}
