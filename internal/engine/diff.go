package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/scanner"
)

// Tag values never contain spaces, remote field values frequently do.
// encodeFieldValue and decodeFieldValue convert between the two forms and
// are inverses of each other for every synced field.

// encodeFieldValue converts a local tag value to the remote field value.
func (e *Engine) encodeFieldValue(ref, local string) any {
	switch ref {
	case "Custom.AutomationStatus":
		return strings.ReplaceAll(local, "_", " ")
	case "System.IterationPath":
		v := strings.ReplaceAll(local, "_", " ")
		if area := e.cfg.Constants["System.AreaPath"]; area != "" && !strings.HasPrefix(v, area) {
			v = area + "\\" + v
		}
		return v
	case "Microsoft.VSTS.Common.Priority":
		if n, err := strconv.Atoi(local); err == nil {
			return n
		}
		return local
	default:
		return local
	}
}

// decodeFieldValue converts a remote field value to its local tag form.
func (e *Engine) decodeFieldValue(ref, remote string) string {
	switch ref {
	case "Custom.AutomationStatus":
		return strings.ReplaceAll(remote, " ", "_")
	case "System.IterationPath":
		v := remote
		if area := e.cfg.Constants["System.AreaPath"]; area != "" {
			v = strings.TrimPrefix(v, area+"\\")
		}
		return strings.ReplaceAll(v, " ", "_")
	default:
		return remote
	}
}

// valueString renders an encoded value for comparison against
// WorkItem.Field, which always yields strings.
func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

// tagValue returns the value of the named tag.
func tagValue(tags []scanner.Tag, name string) (string, bool) {
	for _, t := range tags {
		if t.Key == name {
			return t.Value, true
		}
	}
	return "", false
}

// upsertTag sets the named tag to value, appending it when absent, and
// reports whether anything changed. Appended tags carry no marker; the
// rewriter picks the block's style for them.
func upsertTag(tags []scanner.Tag, name, value string) ([]scanner.Tag, bool) {
	for i, t := range tags {
		if t.Key == name {
			if t.Value == value {
				return tags, false
			}
			tags[i].Value = value
			tags[i].Raw = ""
			return tags, true
		}
	}
	return append(tags, scanner.Tag{Key: name, Value: value}), true
}

// planGet computes the tag set a scenario should carry after pulling
// remote values down. A remote field with an empty value leaves the local
// tag alone, so values that exist only locally survive to be pushed by a
// subsequent patch flow.
func (e *Engine) planGet(tc scanner.TestCase, w *azure.WorkItem) ([]scanner.Tag, bool) {
	tags := make([]scanner.Tag, len(tc.Tags))
	copy(tags, tc.Tags)

	changed := false
	for _, fm := range e.cfg.SyncedFields() {
		remote := w.Field(fm.Ref)
		if remote == "" {
			continue
		}
		want := e.decodeFieldValue(fm.Ref, remote)
		var c bool
		tags, c = upsertTag(tags, fm.Tag, want)
		changed = changed || c
	}

	// The parent story is a relation, not a field.
	if storyTag := e.cfg.Tag("user_story"); storyTag != "" {
		if ids := w.RelatedIDs(); len(ids) > 0 {
			var c bool
			tags, c = upsertTag(tags, storyTag, strconv.Itoa(ids[0]))
			changed = changed || c
		}
	}

	return tags, changed
}

// buildPatchOps computes the minimal patch document body (without the
// revision guard) that brings the remote work item in line with the local
// scenario. An empty result means the remote already matches.
func (e *Engine) buildPatchOps(tc scanner.TestCase, tags []scanner.Tag, w *azure.WorkItem) []azure.Operation {
	var ops []azure.Operation

	for _, fm := range e.cfg.SyncedFields() {
		local, ok := tagValue(tags, fm.Tag)
		if !ok || local == "" {
			continue
		}
		desired := e.encodeFieldValue(fm.Ref, local)
		if valueString(desired) != w.Field(fm.Ref) {
			ops = append(ops, azure.ReplaceField(fm.Ref, desired))
		}
	}

	if tc.Title != "" && tc.Title != w.Field("System.Title") {
		ops = append(ops, azure.ReplaceField("System.Title", tc.Title))
	}

	constants := e.cfg.ConstantFields()
	refs := make([]string, 0, len(constants))
	for ref := range constants {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		if w.Field(ref) != constants[ref] {
			ops = append(ops, azure.ReplaceField(ref, constants[ref]))
		}
	}

	linked := make(map[int]bool)
	for _, id := range w.RelatedIDs() {
		linked[id] = true
	}
	for _, key := range []string{"user_story", "bug"} {
		tag := e.cfg.Tag(key)
		if tag == "" {
			continue
		}
		local, ok := tagValue(tags, tag)
		if !ok || local == "" {
			continue
		}
		id, err := strconv.Atoi(local)
		if err != nil || linked[id] {
			continue
		}
		ops = append(ops, azure.AddRelation(e.relationType(), e.workItemURL(id)))
		linked[id] = true
	}

	return ops
}

// relationType returns the link type used to attach a test case to its
// story or bug. TestedBy-Reverse is the standard direction; setting the
// tag_config key to "false" flips it for processes that model the link
// the other way around.
func (e *Engine) relationType() string {
	if e.cfg.TagConfig["TestedBy-Reverse"] == "false" {
		return "Microsoft.VSTS.Common.TestedBy-Forward"
	}
	return "Microsoft.VSTS.Common.TestedBy-Reverse"
}

// workItemURL builds the canonical API URL for a work item id.
func (e *Engine) workItemURL(id int) string {
	return fmt.Sprintf("https://dev.azure.com/%s/%s/_apis/wit/workItems/%d",
		e.cfg.Credentials.OrganizationName, e.cfg.Credentials.ProjectName, id)
}
