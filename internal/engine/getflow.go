package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rfsync/rfsync/internal/scanner"
)

// runGet pulls remote field values into local annotation blocks. Rewrites
// are grouped per file and applied bottom-up so earlier rewrites never
// invalidate the line positions of scenarios further down the same file.
// All file writes are serialized; only remote reads ever run concurrently.
func (e *Engine) runGet(ctx context.Context, sess *Session, items []*item, stage bool) error {
	type rewriteOp struct {
		it   *item
		tags []scanner.Tag
	}
	byFile := make(map[string][]rewriteOp)

	for _, it := range items {
		if it.done() || it.remote == nil {
			continue
		}
		tags, changed := e.planGet(it.tc, it.remote)
		it.effective = tags
		if !changed {
			continue
		}
		byFile[it.tc.File] = append(byFile[it.tc.File], rewriteOp{it: it, tags: tags})
	}

	sess.State = StateWriting

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, f := range files {
		ops := byFile[f]
		sort.Slice(ops, func(i, j int) bool {
			return ops[i].it.tc.TitleLine > ops[j].it.tc.TitleLine
		})
		for _, op := range ops {
			if e.DryRun {
				op.it.outcome = OutcomeUpdated
				op.it.reason = "would rewrite annotation block"
				continue
			}
			if err := e.rewrite(op.it.tc, op.tags); err != nil {
				op.it.fail(fmt.Sprintf("rewrite failed: %v", err))
				continue
			}
			op.it.outcome = OutcomeUpdated
			e.logger.Printf("Updated annotations for test case %d in %s", op.it.id, f)
		}
	}

	if stage {
		return e.stageUnknown(ctx, sess, items)
	}
	return nil
}
