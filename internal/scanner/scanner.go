package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Scenario title prefixes recognized as block terminators. Both the
// Portuguese and English Gherkin keywords appear in the wild, plus their
// table-driven (outline) forms.
var titlePrefixes = []string{
	"Esquema do Cenário:",
	"Scenario Outline:",
	"Cenário:",
	"Cenario:",
	"Scenario:",
}

// TestCase is one scenario discovered in the repository, with its parsed
// annotation block. The zero BlockStart means the scenario carried no
// annotations at all.
type TestCase struct {
	// File is the path of the containing test file.
	File string

	// Title is the scenario title, without the keyword prefix.
	Title string

	// TitleLine is the 1-based line number of the title line.
	TitleLine int

	// BlockStart and BlockEnd delimit the annotation block (1-based,
	// inclusive). Both are 0 when the scenario has no annotations.
	BlockStart int
	BlockEnd   int

	// Tags holds the parsed annotations in file order.
	Tags []Tag

	// Err records a per-scenario parse problem (malformed annotation line,
	// conflicting tc values). The scenario is still emitted so the sync
	// session can account for it.
	Err error
}

// Get returns the value of the first tag with the given key.
func (tc *TestCase) Get(key string) (string, bool) {
	for _, t := range tc.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Has reports whether the scenario carries the given tag key.
func (tc *TestCase) Has(key string) bool {
	_, ok := tc.Get(key)
	return ok
}

// ID returns the numeric work-item id carried by the identifier tag
// (usually "tc"). ok is false when the tag is absent or not numeric.
func (tc *TestCase) ID(idTag string) (int, bool) {
	v, found := tc.Get(idTag)
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Excluded reports whether the scenario opted out of synchronization by
// carrying any of the given marker tags.
func (tc *TestCase) Excluded(ignoreTags ...string) bool {
	for _, tag := range ignoreTags {
		if tag != "" && tc.Has(tag) {
			return true
		}
	}
	return false
}

// Scan walks root and extracts a TestCase per scenario found in .robot and
// .feature files, in deterministic (lexical walk) order.
//
// The scan is one pass and never cached: files may be edited between runs.
// Per-scenario problems are attached to the emitted TestCase; file-level
// problems (unreadable file, orphan annotations) are returned in errs and
// do not abort the scan of other files.
func Scan(root string) (cases []TestCase, errs []error) {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to walk %s: %w", path, err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".robot" && ext != ".feature" {
			return nil
		}

		fileCases, fileErrs := scanFile(path)
		cases = append(cases, fileCases...)
		errs = append(errs, fileErrs...)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Errorf("failed to walk %s: %w", root, walkErr))
	}
	return cases, errs
}

// scanFile parses one test file into its scenarios.
func scanFile(path string) ([]TestCase, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read %s: %w", path, err)}
	}

	var (
		cases   []TestCase
		errs    []error
		pending []Tag
		pendErr error
		start   int
	)

	reset := func() {
		pending = nil
		pendErr = nil
		start = 0
	}

	lines := strings.Split(string(data), "\n")
	for i, raw := range lines {
		lineNo := i + 1

		if title, ok := titleOf(raw); ok {
			tc := TestCase{
				File:      path,
				Title:     title,
				TitleLine: lineNo,
				Tags:      pending,
				Err:       pendErr,
			}
			if len(pending) > 0 {
				tc.BlockStart = start
				tc.BlockEnd = lineNo - 1
			}
			cases = append(cases, tc)
			reset()
			continue
		}

		tag, isAnnotation, perr := parseTagLine(path, lineNo, raw)
		if !isAnnotation {
			// Any other line breaks the block: annotations must immediately
			// precede the title. Feature-level tags above a Feature: line
			// are dropped here on purpose.
			if len(pending) > 0 || pendErr != nil {
				reset()
			}
			continue
		}
		if perr != nil {
			if pendErr == nil {
				pendErr = perr
			}
			errs = append(errs, perr)
			if start == 0 {
				start = lineNo
			}
			continue
		}
		if start == 0 {
			start = lineNo
		}
		pending = append(pending, tag)
	}

	if len(pending) > 0 || pendErr != nil {
		errs = append(errs, fmt.Errorf("%s:%d: annotation block not followed by a scenario title", path, start))
	}

	return cases, errs
}

// titleOf extracts the scenario title from a line, if it is a title line.
func titleOf(raw string) (string, bool) {
	trimmed := strings.TrimSpace(strings.TrimRight(raw, "\r"))
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return "", false
}
