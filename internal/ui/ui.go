// Package ui renders session summaries and status lines for the
// terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/rfsync/rfsync/internal/engine"
)

var (
	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#007700", Dark: "#5AF78E"})

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF5F87"})

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#8B6F00", Dark: "#F3F99D"})

	accentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#0000CC", Dark: "#58A6FF"})

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#8B8B8B"})
)

// Init configures the color profile. Pass noColor to force plain output
// (piped output, NO_COLOR environments); otherwise the terminal's
// capabilities decide.
func Init(noColor bool) {
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

func Pass(s string) string   { return passStyle.Render(s) }
func Fail(s string) string   { return failStyle.Render(s) }
func Warn(s string) string   { return warnStyle.Render(s) }
func Accent(s string) string { return accentStyle.Render(s) }
func Muted(s string) string  { return mutedStyle.Render(s) }

// Summary renders a human-readable session report.
func Summary(sess *engine.Session) string {
	updated, unchanged, skipped, failed := sess.Counts()
	elapsed := sess.FinishedAt.Sub(sess.StartedAt).Round(time.Millisecond)

	var b strings.Builder

	state := Pass(sess.State.String())
	if sess.State == engine.StateFailed {
		state = Fail(sess.State.String())
	}
	fmt.Fprintf(&b, "%s %s (%s)\n", Accent("sync "+string(sess.Direction)), state, elapsed)

	fmt.Fprintf(&b, "  %s updated, %s unchanged, %s skipped, %s failed\n",
		Pass(fmt.Sprintf("%d", updated)),
		Muted(fmt.Sprintf("%d", unchanged)),
		Warn(fmt.Sprintf("%d", skipped)),
		Fail(fmt.Sprintf("%d", failed)))

	if sess.Staged > 0 {
		fmt.Fprintf(&b, "  %s\n", Warn(fmt.Sprintf("%d new remote test case(s) staged for organizing", sess.Staged)))
	}

	if failures := sess.Failures(); len(failures) > 0 {
		b.WriteString("\n")
		for _, r := range failures {
			loc := r.File
			if r.ID > 0 {
				loc = fmt.Sprintf("%s (tc %d)", r.File, r.ID)
			}
			fmt.Fprintf(&b, "  %s %s: %s\n", Fail("✗"), loc, r.Reason)
		}
	}

	return b.String()
}

// HistoryLine renders one recorded run as a single line.
func HistoryLine(direction, state string, finished time.Time, updated, failed, staged int, dryRun bool) string {
	mark := Pass("✓")
	if failed > 0 || state == "failed" {
		mark = Fail("✗")
	}
	line := fmt.Sprintf("%s %s %-5s %d updated, %d failed",
		mark, finished.Local().Format("2006-01-02 15:04:05"), direction, updated, failed)
	if staged > 0 {
		line += fmt.Sprintf(", %d staged", staged)
	}
	if dryRun {
		line += " " + Muted("(dry run)")
	}
	return line
}
