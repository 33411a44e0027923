package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/config"
	"github.com/rfsync/rfsync/internal/engine"
	"github.com/rfsync/rfsync/internal/history"
	"github.com/rfsync/rfsync/internal/runner"
	"github.com/rfsync/rfsync/internal/ui"
)

// Exit codes. Scripts branch on these, so they are part of the interface.
const (
	exitOK       = 0 // synced, no per-scenario failures
	exitConfig   = 1 // configuration missing or invalid
	exitFailures = 2 // session completed but some scenarios failed
	exitRemote   = 3 // session-fatal remote problem (auth, cancellation)
)

var (
	flagConfig  string
	flagVerbose bool
	flagDryRun  bool
	flagNoColor bool
	flagNoRun   bool
)

var rootCmd = &cobra.Command{
	Use:   "rfsync",
	Short: "Sync test scenario annotations with Azure DevOps work items",
	Long: `rfsync scans .robot and .feature files for scenario annotations
(@tc:1234, @story:5678, ...) and keeps them in sync with the matching
Test Case work items in Azure DevOps.

Without a subcommand it runs a full cycle: pull remote field values into
the local annotations, push local-only values back, stage remote test
cases that have no local scenario yet, and trigger a test run over the
scenarios marked automated.`,
	Run: func(cmd *cobra.Command, args []string) {
		exit(runSession(cmd.Context(), engine.DirectionBoth))
	},
}

// triggersRun reports whether a session direction ends with the test
// trigger. Only the bare invocation runs tests afterwards; the explicit
// get and patch sub-commands stay single-flow.
func triggersRun(dir engine.Direction, noRun bool) bool {
	return dir == engine.DirectionBoth && !noRun
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfig)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.DefaultFileName,
		"path to the sync configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"log progress to stderr as well as the log file")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false,
		"report what would change without writing anything")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false,
		"disable colored output")
	rootCmd.Flags().BoolVar(&flagNoRun, "no-run", false,
		"do not trigger a test run after syncing")
}

// initEnv wires RFSYNC_* environment variables and the color profile.
func initEnv() {
	viper.SetEnvPrefix("RFSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	ui.Init(flagNoColor || os.Getenv("NO_COLOR") != "")
}

func exit(code int) {
	if code != exitOK {
		os.Exit(code)
	}
}

// loadConfig loads the configuration, falling back to the interactive
// wizard on first run when attached to a terminal. Environment overrides
// (RFSYNC_PAT and friends) are applied last so tokens can stay out of the
// checked-in file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		if !config.IsNotFound(err) || !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "No configuration at %s, starting setup\n", flagConfig)
		cfg, err = config.RunWizard()
		if err != nil {
			return nil, err
		}
		if err := config.Save(cfg, flagConfig); err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Configuration written to %s\n", flagConfig)
	}

	if v := viper.GetString("pat"); v != "" {
		cfg.Credentials.PersonalAccessToken = v
	}
	if v := viper.GetString("organization"); v != "" {
		cfg.Credentials.OrganizationName = v
	}
	if v := viper.GetString("project"); v != "" {
		cfg.Credentials.ProjectName = v
	}
	if v := viper.GetString("path"); v != "" {
		cfg.Path = v
	}
	return cfg, nil
}

// newLogger builds a component logger writing to the rotated log file
// under the repository root, plus stderr when --verbose is set.
func newLogger(root, prefix string) *log.Logger {
	file := &lumberjack.Logger{
		Filename:   filepath.Join(root, ".rfsync", "rfsync.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	var w io.Writer = file
	if flagVerbose {
		w = io.MultiWriter(os.Stderr, file)
	}
	return log.New(w, prefix, log.LstdFlags)
}

// runSession executes one sync session and returns the process exit code.
func runSession(ctx context.Context, dir engine.Direction) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfig
	}

	client, err := azure.NewClient(azure.Options{
		Organization: cfg.Credentials.OrganizationName,
		Project:      cfg.Credentials.ProjectName,
		PAT:          cfg.Credentials.PersonalAccessToken,
		Timeout:      time.Duration(cfg.Sync.TimeoutSeconds) * time.Second,
		MaxAttempts:  cfg.Sync.MaxAttempts,
		Logger:       newLogger(cfg.Path, "[azure] "),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfig
	}

	eng := engine.New(cfg, client, newLogger(cfg.Path, "[engine] "))
	eng.DryRun = flagDryRun

	sess, runErr := eng.Run(ctx, dir)

	recordHistory(ctx, cfg, sess)
	fmt.Print(ui.Summary(sess))

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		var cfgErr *config.ConfigError
		if errors.As(runErr, &cfgErr) {
			return exitConfig
		}
		return exitRemote
	}
	if _, _, _, failed := sess.Counts(); failed > 0 {
		return exitFailures
	}

	if triggersRun(dir, flagNoRun) && !flagDryRun {
		r := runner.New(cfg, newLogger(cfg.Path, "[runner] "))
		if err := r.Trigger(ctx, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFailures
		}
	}
	return exitOK
}

// recordHistory stores the session summary. History is an observer: a
// broken database never fails a sync that already happened.
func recordHistory(ctx context.Context, cfg *config.Config, sess *engine.Session) {
	logger := newLogger(cfg.Path, "[history] ")

	store, err := history.Open(history.DefaultPath(cfg.Path))
	if err != nil {
		logger.Printf("WARNING: history unavailable: %v", err)
		return
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		logger.Printf("WARNING: history schema: %v", err)
		return
	}
	if _, err := store.Record(ctx, sess, flagDryRun); err != nil {
		logger.Printf("WARNING: failed to record run: %v", err)
	}
}
