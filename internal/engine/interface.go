// Package engine orchestrates one synchronization session between the
// local test repository and the remote work-item store.
//
// A session moves through Idle → Scanning → Resolving → Writing →
// Completed (or Failed on a session-fatal error). The engine diffs local
// tag values against freshly fetched remote field values and performs
// only the writes that are necessary: annotation rewrites in the get
// flow, minimal partial-update documents in the patch flow.
package engine

import (
	"context"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/scanner"
)

// Remote is the slice of the work-item client the engine depends on.
// Implementations must be safe for concurrent use.
type Remote interface {
	// FetchBatch retrieves the given work items, batched into as few
	// requests as the remote API allows. Missing ids are absent from the
	// result, not errors.
	FetchBatch(ctx context.Context, ids []int) (map[int]*azure.WorkItem, error)

	// QueryTestCaseIDs lists the ids of all Test Case work items under
	// the given area path.
	QueryTestCaseIDs(ctx context.Context, areaPath string) ([]int, error)

	// Patch applies a revision-guarded partial update and returns the new
	// revision. A stale revision yields *azure.ConflictError.
	Patch(ctx context.Context, id, rev int, ops []azure.Operation) (int, error)
}

// ScanFunc walks a test repository. It matches scanner.Scan and exists so
// tests can substitute fixtures.
type ScanFunc func(root string) ([]scanner.TestCase, []error)

// RewriteFunc rewrites one scenario's annotation block. It matches
// scanner.Rewrite.
type RewriteFunc func(tc scanner.TestCase, tags []scanner.Tag) error
