package main

import (
	"github.com/spf13/cobra"

	"github.com/rfsync/rfsync/internal/engine"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Pull remote work-item values into local annotations",
	Long: `Fetch the work item behind every annotated scenario and rewrite the
local annotation blocks where the remote values differ. Remote test
cases with no local scenario are appended to ` + "todo_organize.robot" + `
for later organizing.

Local files are the only thing this command writes; the remote store is
never modified.`,
	Run: func(cmd *cobra.Command, args []string) {
		exit(runSession(cmd.Context(), engine.DirectionGet))
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
