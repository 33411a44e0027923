package main

import (
	"github.com/spf13/cobra"

	"github.com/rfsync/rfsync/internal/engine"
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Push local annotation values to the remote work items",
	Long: `Diff every annotated scenario against its work item and apply the
minimal set of field updates and links to the remote store. Work items
that already match are left untouched, and every update is guarded by
the revision observed at fetch time.

The remote store is the only thing this command writes; local files are
never modified and no test run is triggered.`,
	Run: func(cmd *cobra.Command, args []string) {
		exit(runSession(cmd.Context(), engine.DirectionPatch))
	},
}

func init() {
	rootCmd.AddCommand(patchCmd)
}
