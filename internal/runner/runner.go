// Package runner decides which synchronized scenarios are executable and
// triggers the Robot Framework runner on them after a successful sync.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"

	"github.com/rfsync/rfsync/internal/config"
	"github.com/rfsync/rfsync/internal/scanner"
)

// Runner triggers local test execution.
type Runner struct {
	cfg    *config.Config
	logger *log.Logger

	// Command is the runner binary to invoke. Tests substitute it.
	Command string
}

// New creates a runner. If logger is nil, a default logger writing to
// stderr is used.
func New(cfg *config.Config, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[runner] ", log.LstdFlags)
	}
	return &Runner{cfg: cfg, logger: logger, Command: "robot"}
}

// Runnable filters the scanned scenarios down to those whose automation
// status tag carries the configured automated value. Excluded scenarios
// never run, whatever their status says.
func (r *Runner) Runnable(cases []scanner.TestCase) []scanner.TestCase {
	tag := r.cfg.AutomationTag()
	if tag == "" {
		return nil
	}
	want := r.cfg.AutomatedValue()

	var out []scanner.TestCase
	for _, tc := range cases {
		if tc.Excluded("ignore", r.cfg.IgnoreTag()) {
			continue
		}
		if v, ok := tc.Get(tag); ok && v == want {
			out = append(out, tc)
		}
	}
	return out
}

// Filter returns the include expression selecting automated scenarios,
// or "" when no automation status tag is configured.
func (r *Runner) Filter() string {
	tag := r.cfg.AutomationTag()
	if tag == "" {
		return ""
	}
	return tag + ":" + r.cfg.AutomatedValue()
}

// Trigger runs the configured test command over the repository, selecting
// automated scenarios via the include filter. Output streams to stdout
// and stderr as the run progresses. A missing automation status mapping
// makes Trigger a no-op.
func (r *Runner) Trigger(ctx context.Context, stdout, stderr io.Writer) error {
	filter := r.Filter()
	if filter == "" {
		r.logger.Printf("No AutomationStatus mapping configured, not triggering a test run")
		return nil
	}

	r.logger.Printf("Triggering %s --include %s %s", r.Command, filter, r.cfg.Path)
	cmd := exec.CommandContext(ctx, r.Command, "--include", filter, r.cfg.Path)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("test run failed: %w", err)
	}
	return nil
}
