package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/scanner"
)

// runPatch pushes local tag values to the remote store. Patches for
// distinct work items are independent, so they run on a bounded worker
// pool; each worker only ever touches its own item.
func (e *Engine) runPatch(ctx context.Context, items []*item, useEffective bool) error {
	var work []*item
	for _, it := range items {
		if !it.done() && it.remote != nil {
			work = append(work, it)
		}
	}
	if len(work) == 0 {
		return nil
	}

	workers := e.cfg.Sync.Workers
	if workers <= 0 {
		workers = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, it := range work {
		it := it
		g.Go(func() error {
			return e.patchOne(ctx, it, useEffective)
		})
	}
	return g.Wait()
}

// patchOne diffs and updates a single work item. A revision conflict gets
// exactly one re-fetch, re-diff, and retry; a second conflict fails the
// item so two concurrent writers cannot ping-pong forever.
func (e *Engine) patchOne(ctx context.Context, it *item, useEffective bool) error {
	tags := it.tc.Tags
	if useEffective && it.effective != nil {
		tags = it.effective
	}

	ops := e.buildPatchOps(it.tc, tags, it.remote)
	if len(ops) == 0 {
		return nil
	}
	if e.DryRun {
		it.outcome = OutcomeUpdated
		it.reason = fmt.Sprintf("would apply %d update(s)", len(ops))
		return nil
	}

	_, err := e.remote.Patch(ctx, it.id, it.remote.Rev, ops)
	if err == nil {
		it.outcome = OutcomeUpdated
		e.logger.Printf("Patched work item %d (%d operation(s))", it.id, len(ops))
		return nil
	}

	var conflict *azure.ConflictError
	if errors.As(err, &conflict) {
		return e.retryConflict(ctx, it, tags)
	}
	if isFatal(err) {
		return err
	}
	it.fail(fmt.Sprintf("patch failed: %v", err))
	return nil
}

// retryConflict handles a stale-revision rejection: fetch the current
// revision, re-diff against it, and try once more.
func (e *Engine) retryConflict(ctx context.Context, it *item, tags []scanner.Tag) error {
	e.logger.Printf("Work item %d changed remotely during sync, retrying once", it.id)

	fetched, err := e.remote.FetchBatch(ctx, []int{it.id})
	if err != nil {
		if isFatal(err) {
			return err
		}
		it.fail(fmt.Sprintf("re-fetch after conflict failed: %v", err))
		return nil
	}
	w, ok := fetched[it.id]
	if !ok {
		it.fail((&azure.NotFoundError{ID: it.id}).Error())
		return nil
	}

	ops := e.buildPatchOps(it.tc, tags, w)
	if len(ops) == 0 {
		// The concurrent writer already produced the desired state.
		return nil
	}

	_, err = e.remote.Patch(ctx, it.id, w.Rev, ops)
	if err == nil {
		it.outcome = OutcomeUpdated
		return nil
	}
	var conflict *azure.ConflictError
	if errors.As(err, &conflict) {
		it.fail("work item keeps changing remotely, giving up after one retry")
		return nil
	}
	if isFatal(err) {
		return err
	}
	it.fail(fmt.Sprintf("patch failed: %v", err))
	return nil
}
