// Package scanner walks a test repository and extracts per-scenario tag
// annotations from Robot Framework (.robot) and Gherkin (.feature) files.
//
// Annotations are free-form lines of the form:
//
//	@tc:1234
//	#@story:5678
//	@ignore
//
// One or more annotation lines immediately preceding a scenario title line
// form that scenario's annotation block. The scanner keeps the parsed tags
// and the raw block separate so rewrites preserve unmapped content
// byte-for-byte.
package scanner

import (
	"fmt"
	"strings"
)

// Tag is a single parsed annotation: an ordered key/value pair plus enough
// layout information to render the line back exactly as it was found.
type Tag struct {
	// Key is the tag name (e.g. "tc", "story", "ignore").
	Key string

	// Value is the text after the first colon, trimmed. Marker tags like
	// @ignore have an empty value.
	Value string

	// Indent is the leading whitespace of the original line.
	Indent string

	// Marker is the annotation prefix, "@" or "#@".
	Marker string

	// Line is the 1-based line number in the source file, or 0 for tags
	// added by a rewrite.
	Line int

	// Raw is the original line without its terminator. Render emits it
	// verbatim, so incidental layout like "@tc: 1234" survives a rewrite
	// of a neighboring tag. Anything that changes Value must clear Raw.
	Raw string
}

// Render returns the tag as an annotation line, without line terminator.
func (t Tag) Render() string {
	if t.Raw != "" {
		return t.Raw
	}
	if t.Value == "" {
		return fmt.Sprintf("%s%s%s", t.Indent, t.Marker, t.Key)
	}
	return fmt.Sprintf("%s%s%s:%s", t.Indent, t.Marker, t.Key, t.Value)
}

// ParseError reports a malformed annotation line. It is a per-scenario
// failure: the scan continues with other scenarios and files.
type ParseError struct {
	File   string
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed annotation %q: %s", e.File, e.Line, e.Text, e.Reason)
}

// isTagKey reports whether s is a valid annotation key. Keys follow remote
// field reference syntax (System.Tags, TestedBy-Reverse), so dots and
// hyphens are allowed.
func isTagKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// parseTagLine parses a single annotation line. The second return value is
// false when the line is not an annotation at all (so it terminates or is
// outside a block). A line that is an annotation but malformed returns a
// *ParseError.
func parseTagLine(file string, lineNo int, line string) (Tag, bool, error) {
	trimmed := strings.TrimRight(line, "\r")
	body := strings.TrimLeft(trimmed, " \t")
	indent := trimmed[:len(trimmed)-len(body)]

	var marker string
	switch {
	case strings.HasPrefix(body, "#@"):
		marker = "#@"
	case strings.HasPrefix(body, "@"):
		marker = "@"
	default:
		return Tag{}, false, nil
	}

	rest := body[len(marker):]

	// Robot list and dict variables (@{items}=, &{map}=) share the @ prefix
	// but are not annotations.
	if strings.HasPrefix(rest, "{") {
		return Tag{}, false, nil
	}

	key := rest
	value := ""
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		key = rest[:i]
		value = strings.TrimSpace(rest[i+1:])
	}

	// Whitespace inside the key means this is plain tag syntax, like a
	// Gherkin "@smoke @fast" line, not an annotation.
	if strings.ContainsAny(key, " \t") {
		return Tag{}, false, nil
	}

	if !isTagKey(key) {
		return Tag{}, true, &ParseError{
			File:   file,
			Line:   lineNo,
			Text:   body,
			Reason: "tag key must be non-empty and contain only letters, digits, '_', '.', '-'",
		}
	}

	return Tag{
		Key:    key,
		Value:  value,
		Indent: indent,
		Marker: marker,
		Line:   lineNo,
		Raw:    trimmed,
	}, true, nil
}
