package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rfsync/rfsync/internal/history"
	"github.com/rfsync/rfsync/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openHistory()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitConfig)
		}
		defer store.Close()

		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitFailures)
		}
		if len(runs) == 0 {
			fmt.Println("No recorded sessions yet.")
			return
		}
		for _, r := range runs {
			fmt.Println(ui.HistoryLine(r.Direction, r.State, r.FinishedAt,
				r.Updated, r.Failed, r.Staged, r.DryRun))
		}
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest recorded sessions",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := openHistory()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitConfig)
		}
		defer store.Close()

		deleted, err := store.Prune(cmd.Context(), historyKeep)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitFailures)
		}
		fmt.Printf("Deleted %d session(s), kept the newest %d.\n", deleted, historyKeep)
	},
}

var (
	historyLimit int
	historyKeep  int
)

// openHistory opens the history store for the configured repository.
func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(history.DefaultPath(cfg.Path))
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of sessions to list")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 50, "number of sessions to keep")
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
