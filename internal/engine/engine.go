package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/config"
	"github.com/rfsync/rfsync/internal/scanner"
)

// Engine drives synchronization sessions. Create one with New and call
// Run once per session; an Engine holds no cross-session state.
type Engine struct {
	cfg    *config.Config
	remote Remote
	logger *log.Logger

	// DryRun reports what would change without touching local files or
	// the remote store.
	DryRun bool

	scan    ScanFunc
	rewrite RewriteFunc
}

// New creates an engine. If logger is nil, a default logger writing to
// stderr is used.
func New(cfg *config.Config, remote Remote, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		cfg:     cfg,
		remote:  remote,
		logger:  logger,
		scan:    scanner.Scan,
		rewrite: scanner.Rewrite,
	}
}

// item tracks one scanned scenario through a session.
type item struct {
	tc scanner.TestCase
	id int

	remote *azure.WorkItem

	// effective is the tag set after the get flow, consumed by the patch
	// flow in a both-direction session.
	effective []scanner.Tag

	outcome Outcome
	reason  string
}

func (it *item) fail(reason string) {
	it.outcome = OutcomeFailed
	it.reason = reason
}

func (it *item) skip(reason string) {
	it.outcome = OutcomeSkipped
	it.reason = reason
}

// done reports whether the item already has a final outcome. An updated
// outcome is not final: the patch half of a both-direction session still
// processes items the get half touched.
func (it *item) done() bool {
	return it.outcome == OutcomeSkipped || it.outcome == OutcomeFailed
}

// Run executes one session in the given direction.
//
// The returned error is non-nil only for session-fatal conditions
// (authentication, cancellation); per-item problems land in the session
// ledger and the session still ends Completed.
func (e *Engine) Run(ctx context.Context, dir Direction) (*Session, error) {
	sess := newSession(dir)

	sess.State = StateScanning
	cases, scanErrs := e.scan(e.cfg.Path)
	for _, err := range scanErrs {
		e.logger.Printf("WARNING: %v", err)
	}
	e.logger.Printf("Scanned %d scenarios under %s", len(cases), e.cfg.Path)

	items := e.classify(cases)

	sess.State = StateResolving
	if err := e.resolve(ctx, items); err != nil {
		return e.finish(sess, items, err)
	}

	var err error
	switch dir {
	case DirectionGet:
		err = e.runGet(ctx, sess, items, true)
	case DirectionPatch:
		sess.State = StateWriting
		err = e.runPatch(ctx, items, false)
	case DirectionBoth:
		// Pull authoritative remote values down first so the patch flow
		// only pushes genuinely local-only values back.
		if err = e.runGet(ctx, sess, items, true); err == nil {
			err = e.runPatch(ctx, items, true)
		}
	default:
		err = fmt.Errorf("unknown sync direction %q", dir)
	}

	return e.finish(sess, items, err)
}

// classify assigns eligibility per scenario: excluded, unparsable, and
// identifier-less scenarios get their final outcome before any remote
// traffic, and duplicated identifiers are conflicts, never
// last-write-wins.
func (e *Engine) classify(cases []scanner.TestCase) []*item {
	idTag := e.cfg.Tag("test_case")
	ignoreTags := []string{"ignore", e.cfg.IgnoreTag()}

	items := make([]*item, 0, len(cases))
	holders := make(map[int][]*item)

	for _, tc := range cases {
		it := &item{tc: tc}
		items = append(items, it)

		switch {
		case tc.Err != nil:
			it.fail(tc.Err.Error())
		case tc.Excluded(ignoreTags...):
			it.skip("excluded from synchronization")
		default:
			id, ok := tc.ID(idTag)
			if !ok {
				it.skip(fmt.Sprintf("no %s tag; scenario cannot be synchronized", idTag))
				e.logger.Printf("WARNING: %s: scenario %q has no %s tag, skipping", tc.File, tc.Title, idTag)
				continue
			}
			it.id = id
			holders[id] = append(holders[id], it)
		}
	}

	for id, hs := range holders {
		if len(hs) > 1 {
			for _, it := range hs {
				it.fail(fmt.Sprintf("identifier %d is claimed by %d scenarios", id, len(hs)))
			}
		}
	}

	return items
}

// resolve fetches the remote work items for every still-undecided
// scenario. A batch-level transient failure fails those items, not the
// session; authentication failures and cancellation are fatal.
func (e *Engine) resolve(ctx context.Context, items []*item) error {
	var ids []int
	for _, it := range items {
		if !it.done() && it.id > 0 {
			ids = append(ids, it.id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)

	fetched, err := e.remote.FetchBatch(ctx, ids)
	if err != nil {
		if isFatal(err) {
			return err
		}
		for _, it := range items {
			if !it.done() && it.id > 0 {
				it.fail(fmt.Sprintf("fetch failed: %v", err))
			}
		}
		return nil
	}

	for _, it := range items {
		if it.done() || it.id == 0 {
			continue
		}
		w, ok := fetched[it.id]
		if !ok {
			it.fail((&azure.NotFoundError{ID: it.id}).Error())
			continue
		}
		it.remote = w
	}
	return nil
}

// finish materializes the ledger in scan order and closes the session.
func (e *Engine) finish(sess *Session, items []*item, err error) (*Session, error) {
	for _, it := range items {
		outcome := it.outcome
		if outcome == "" {
			outcome = OutcomeUnchanged
		}
		sess.record(it.tc, it.id, outcome, it.reason)
	}

	sess.FinishedAt = time.Now()

	if err != nil {
		sess.State = StateFailed
		return sess, err
	}
	sess.State = StateCompleted
	return sess, nil
}

// isFatal reports whether an error must abort the whole session.
func isFatal(err error) bool {
	var authErr *azure.AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return true
	}
	return errors.Is(err, context.Canceled)
}
