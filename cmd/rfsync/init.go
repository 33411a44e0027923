package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rfsync/rfsync/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sync configuration interactively",
	Long: `Walk through the configuration prompts (credentials, tag mapping,
constants) and write the result to the configuration file. Existing
files are only overwritten with --force.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: init needs an interactive terminal")
			os.Exit(exitConfig)
		}

		if !initForce {
			if _, err := os.Stat(flagConfig); err == nil {
				fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", flagConfig)
				os.Exit(exitConfig)
			}
		}

		cfg, err := config.RunWizard()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitConfig)
		}
		if err := config.Save(cfg, flagConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitConfig)
		}
		fmt.Printf("Configuration written to %s\n", flagConfig)
	},
}

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}
