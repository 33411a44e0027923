// Package azure provides a thin client for the Azure DevOps work-item
// REST surface: batched reads, WIQL queries, and revision-guarded partial
// updates (JSON Patch), with bounded retry on transient failures.
package azure

import (
	"regexp"
	"strconv"
)

// WorkItem is a remote work item addressed by id and revision. Fields maps
// a field reference name (System.Title, Custom.AutomationStatus, ...) to
// its current value. Work items are fetched fresh per sync run and never
// cached across runs.
type WorkItem struct {
	ID        int            `json:"id"`
	Rev       int            `json:"rev"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations,omitempty"`
	URL       string         `json:"url,omitempty"`
}

// Field returns the string form of a field value, or "" when absent.
func (w *WorkItem) Field(ref string) string {
	v, ok := w.Fields[ref]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		// JSON numbers decode as float64; work-item ids and priorities are
		// integral.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Relation links a work item to another (user story, bug) or to an
// artifact.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

var relatedIDPattern = regexp.MustCompile(`(?i)_apis/wit/workitems/(\d+)$`)

// RelatedIDs returns the ids of the work items this item links to, in
// relation order. Artifact links that do not address a work item are
// skipped.
func (w *WorkItem) RelatedIDs() []int {
	var ids []int
	for _, rel := range w.Relations {
		m := relatedIDPattern.FindStringSubmatch(rel.URL)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Operation is one entry of a JSON Patch document
// (application/json-patch+json).
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// ReplaceField builds a replace operation for a work-item field.
func ReplaceField(ref string, value any) Operation {
	return Operation{Op: "replace", Path: "/fields/" + ref, Value: value}
}

// AddRelation builds an add operation linking the work item to another via
// the given relation type.
func AddRelation(rel, url string) Operation {
	return Operation{
		Op:   "add",
		Path: "/relations/-",
		Value: map[string]any{
			"rel": rel,
			"url": url,
			"attributes": map[string]any{
				"comment": "Associated test case with work item",
			},
		},
	}
}

// testRev builds the guard operation that makes a patch fail when the
// remote revision moved since the fetch.
func testRev(rev int) Operation {
	return Operation{Op: "test", Path: "/rev", Value: rev}
}

// wiqlRequest is the body of a WIQL query POST.
type wiqlRequest struct {
	Query string `json:"query"`
}

// wiqlResponse is the subset of the WIQL response the client consumes.
type wiqlResponse struct {
	WorkItems []workItemReference `json:"workItems"`
}

type workItemReference struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// batchRequest is the body of a workitemsbatch POST.
type batchRequest struct {
	IDs         []int    `json:"ids"`
	Fields      []string `json:"fields,omitempty"`
	Expand      string   `json:"$expand,omitempty"`
	ErrorPolicy string   `json:"errorPolicy,omitempty"`
}

// batchResponse wraps the work items returned by workitemsbatch.
type batchResponse struct {
	Count int        `json:"count"`
	Value []WorkItem `json:"value"`
}
