package engine

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/scanner"
)

// StagingFileName is the file remote-only test cases are appended to,
// relative to the configured repository root. A human later moves each
// block into its proper suite file.
const StagingFileName = "todo_organize.robot"

// stageUnknown finds remote test cases no local scenario references and
// appends a ready-to-organize scenario block for each to the staging file.
// Staging problems are logged, not fatal: the sync of existing scenarios
// already succeeded.
func (e *Engine) stageUnknown(ctx context.Context, sess *Session, items []*item) error {
	area := e.cfg.Constants["System.AreaPath"]
	if area == "" {
		e.logger.Printf("No System.AreaPath constant configured, skipping remote discovery")
		return nil
	}

	known := make(map[int]bool)
	for _, it := range items {
		if it.id > 0 {
			known[it.id] = true
		}
	}

	ids, err := e.remote.QueryTestCaseIDs(ctx, area)
	if err != nil {
		if isFatal(err) {
			return err
		}
		e.logger.Printf("WARNING: remote discovery failed: %v", err)
		return nil
	}

	var missing []int
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Ints(missing)

	fetched, err := e.remote.FetchBatch(ctx, missing)
	if err != nil {
		if isFatal(err) {
			return err
		}
		e.logger.Printf("WARNING: fetching %d unreferenced test case(s) failed: %v", len(missing), err)
		return nil
	}

	var blocks []string
	for _, id := range missing {
		w, ok := fetched[id]
		if !ok {
			continue
		}
		blocks = append(blocks, e.stagingBlock(w))
	}
	if len(blocks) == 0 {
		return nil
	}

	sess.Staged = len(blocks)
	if e.DryRun {
		e.logger.Printf("Would stage %d new test case(s) in %s", len(blocks), StagingFileName)
		return nil
	}

	path := filepath.Join(e.cfg.Path, StagingFileName)
	if err := e.appendStaging(path, blocks); err != nil {
		sess.Staged = 0
		e.logger.Printf("WARNING: could not write %s: %v", path, err)
		return nil
	}
	e.logger.Printf("Staged %d new test case(s) in %s", len(blocks), path)
	return nil
}

// stagingBlock renders one remote test case as an annotated scenario
// skeleton in Robot Framework comment-annotation style.
func (e *Engine) stagingBlock(w *azure.WorkItem) string {
	var b strings.Builder

	// An empty local scenario diffed against the work item yields exactly
	// the tags a checked-in scenario for it should carry.
	idTag := e.cfg.Tag("test_case")
	tags, _ := e.planGet(scanner.TestCase{}, w)
	fmt.Fprintf(&b, "#@%s:%d\n", idTag, w.ID)
	for _, t := range tags {
		fmt.Fprintf(&b, "#@%s:%s\n", t.Key, t.Value)
	}

	title := w.Field("System.Title")
	if title == "" {
		title = fmt.Sprintf("Test case %d", w.ID)
	}
	fmt.Fprintf(&b, "%s: %s\n", e.titleKeyword(), title)

	for _, step := range parseSteps(w.Field("Microsoft.VSTS.TCM.Steps")) {
		fmt.Fprintf(&b, "    # %s\n", step)
	}

	return b.String()
}

// titleKeyword returns the scenario title keyword used for staged blocks.
func (e *Engine) titleKeyword() string {
	if kw := e.cfg.Tag("title"); kw != "" {
		return kw
	}
	return "Scenario"
}

// appendStaging appends blocks to the staging file, creating it with the
// configured section headers on first use.
func (e *Engine) appendStaging(path string, blocks []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		var header strings.Builder
		if s := e.cfg.Constants["settings_section"]; s != "" {
			header.WriteString(s + "\n\n")
		}
		if s := e.cfg.Constants["test_cases_section"]; s != "" {
			header.WriteString(s + "\n")
		}
		data = []byte(header.String())
	}

	var b strings.Builder
	b.Write(data)
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteString("\n")
	}
	for _, block := range blocks {
		b.WriteString("\n")
		b.WriteString(block)
	}

	return scanner.WriteFileAtomic(path, []byte(b.String()))
}

// stepsDocument mirrors the XML shape of the Microsoft.VSTS.TCM.Steps
// field: a list of steps, each holding an action string and an expected
// result string, both HTML-formatted.
type stepsDocument struct {
	Steps []struct {
		Strings []string `xml:"parameterizedString"`
	} `xml:"step"`
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// parseSteps extracts plain-text step descriptions from the steps field.
// A malformed document yields no steps; the scenario skeleton is still
// usable without them.
func parseSteps(raw string) []string {
	if raw == "" {
		return nil
	}
	var doc stepsDocument
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}

	var out []string
	for i, step := range doc.Steps {
		var parts []string
		for _, s := range step.Strings {
			text := strings.TrimSpace(html.UnescapeString(htmlTagPattern.ReplaceAllString(s, "")))
			if text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, "Step "+strconv.Itoa(i+1)+": "+strings.Join(parts, " -> "))
	}
	return out
}
