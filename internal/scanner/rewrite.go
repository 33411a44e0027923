package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Rewrite replaces the annotation block of a single scenario with the given
// tags, leaving every other byte of the file untouched. Tags that carry
// layout information (indent, marker) from the original block render back
// exactly as found; tags added by the sync render with DefaultStyle.
//
// When the scenario had no annotation block, the new block is inserted
// immediately before the title line.
//
// The write is atomic (temp file + rename), so an interrupt never leaves a
// half-written test file.
func Rewrite(tc TestCase, tags []Tag) error {
	data, err := os.ReadFile(tc.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", tc.File, err)
	}

	crlf := strings.Contains(string(data), "\r\n")
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	indent, marker := DefaultStyle(tc)
	block := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Marker == "" {
			t.Indent = indent
			t.Marker = marker
		}
		block = append(block, t.Render())
	}

	var out []string
	switch {
	case tc.BlockStart > 0:
		if tc.BlockEnd > len(lines) || tc.BlockStart > tc.BlockEnd {
			return fmt.Errorf("annotation block %d-%d out of range in %s", tc.BlockStart, tc.BlockEnd, tc.File)
		}
		out = append(out, lines[:tc.BlockStart-1]...)
		out = append(out, block...)
		out = append(out, lines[tc.BlockEnd:]...)
	default:
		if tc.TitleLine < 1 || tc.TitleLine > len(lines) {
			return fmt.Errorf("title line %d out of range in %s", tc.TitleLine, tc.File)
		}
		out = append(out, lines[:tc.TitleLine-1]...)
		out = append(out, block...)
		out = append(out, lines[tc.TitleLine-1:]...)
	}

	sep := "\n"
	if crlf {
		sep = "\r\n"
	}
	return WriteFileAtomic(tc.File, []byte(strings.Join(out, sep)))
}

// DefaultStyle returns the indent and marker to use for tags added to a
// scenario. Existing annotations win; otherwise .robot files get commented
// annotations (#@) and .feature files plain ones (@).
func DefaultStyle(tc TestCase) (indent, marker string) {
	for _, t := range tc.Tags {
		if t.Marker != "" {
			return t.Indent, t.Marker
		}
	}
	if filepath.Ext(tc.File) == ".robot" {
		return "", "#@"
	}
	return "", "@"
}

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename. The original file mode is preserved when
// the file already exists.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
