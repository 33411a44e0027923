package engine

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rfsync/rfsync/internal/azure"
	"github.com/rfsync/rfsync/internal/config"
	"github.com/rfsync/rfsync/internal/scanner"
)

// testConfig builds a minimal valid configuration rooted at dir.
func testConfig(dir string) *config.Config {
	return &config.Config{
		Path: dir,
		Credentials: config.Credentials{
			PersonalAccessToken: "secret-pat",
			OrganizationName:    "acme",
			ProjectName:         "webshop",
		},
		TagConfig: map[string]string{
			"test_case":        "tc",
			"user_story":       "story",
			"title":            "Cenário",
			"AutomationStatus": "automation",
			"ignore_sync":      "ignore_sync",
			"Priority":         "priority",
		},
		Constants: map[string]string{},
		Sync:      config.SyncSettings{Workers: 2},
	}
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func rescan(t *testing.T, dir string) []scanner.TestCase {
	t.Helper()
	cases, errs := scanner.Scan(dir)
	if len(errs) > 0 {
		t.Fatalf("rescan reported errors: %v", errs)
	}
	return cases
}

func workItemURL(id string) string {
	return "https://dev.azure.com/acme/webshop/_apis/wit/workItems/" + id
}

type patchCall struct {
	id  int
	rev int
	ops []azure.Operation
}

// fakeRemote is an in-memory work-item store. Patch applies replace
// operations to the stored fields and bumps the revision, so repeated
// sessions observe their own earlier writes.
type fakeRemote struct {
	mu    sync.Mutex
	items map[int]*azure.WorkItem

	queryIDs []int
	fetchErr error

	// conflicts[id] rejections are served before any patch lands,
	// simulating a concurrent writer that bumps the revision each time.
	conflicts map[int]int

	fetchCalls int
	queryCalls int
	patches    []patchCall
}

func newFakeRemote(items ...*azure.WorkItem) *fakeRemote {
	f := &fakeRemote{
		items:     make(map[int]*azure.WorkItem),
		conflicts: make(map[int]int),
	}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeRemote) FetchBatch(_ context.Context, ids []int) (map[int]*azure.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[int]*azure.WorkItem)
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			cp := *it
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeRemote) QueryTestCaseIDs(_ context.Context, _ string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	return f.queryIDs, nil
}

func (f *fakeRemote) Patch(_ context.Context, id, rev int, ops []azure.Operation) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patchCall{id: id, rev: rev, ops: ops})

	it, ok := f.items[id]
	if !ok {
		return 0, &azure.NotFoundError{ID: id}
	}
	if f.conflicts[id] > 0 {
		f.conflicts[id]--
		it.Rev++
		return 0, &azure.ConflictError{ID: id, Rev: it.Rev}
	}
	if rev != it.Rev {
		return 0, &azure.ConflictError{ID: id, Rev: it.Rev}
	}
	for _, op := range ops {
		if op.Op == "replace" && strings.HasPrefix(op.Path, "/fields/") {
			it.Fields[strings.TrimPrefix(op.Path, "/fields/")] = op.Value
		}
	}
	it.Rev++
	return it.Rev, nil
}

func (f *fakeRemote) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func newTestEngine(cfg *config.Config, remote Remote) *Engine {
	logger := log.New(os.Stderr, "[engine-test] ", 0)
	return New(cfg, remote, logger)
}

func TestGetUpdatesStoryFromRelations(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@story:13231212\n@custom:keepme\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    3,
		Fields: map[string]any{"System.Title": "Login do usuário"},
		Relations: []azure.Relation{
			{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("99999")},
		},
	})

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionGet)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sess.State != StateCompleted {
		t.Errorf("State = %v, want completed", sess.State)
	}
	updated, _, _, failed := sess.Counts()
	if updated != 1 || failed != 0 {
		t.Errorf("Counts: updated=%d failed=%d, want 1/0", updated, failed)
	}

	cases := rescan(t, dir)
	if len(cases) != 1 {
		t.Fatalf("rescan found %d scenarios, want 1", len(cases))
	}
	if v, _ := cases[0].Get("story"); v != "99999" {
		t.Errorf("story tag = %q, want 99999", v)
	}
	if v, _ := cases[0].Get("custom"); v != "keepme" {
		t.Errorf("unrelated tag was disturbed: custom = %q", v)
	}
	if v, _ := cases[0].Get("tc"); v != "1234" {
		t.Errorf("tc tag = %q, want 1234", v)
	}
	if remote.patchCount() != 0 {
		t.Errorf("get flow issued %d patches", remote.patchCount())
	}
}

func TestGetIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@story:13231212\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    3,
		Fields: map[string]any{"Custom.AutomationStatus": "Not Automated"},
		Relations: []azure.Relation{
			{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("99999")},
		},
	})
	eng := newTestEngine(testConfig(dir), remote)

	if _, err := eng.Run(context.Background(), DirectionGet); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	after1, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	sess, err := eng.Run(context.Background(), DirectionGet)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	updated, unchanged, _, _ := sess.Counts()
	if updated != 0 || unchanged != 1 {
		t.Errorf("second run: updated=%d unchanged=%d, want 0/1", updated, unchanged)
	}

	after2, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after1) != string(after2) {
		t.Errorf("second run modified the file:\n%s", string(after2))
	}
}

func TestGetKeepsUntouchedTagLayout(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "login.feature",
		"@tc: 1234\n@story:1\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:  1234,
		Rev: 1,
		Relations: []azure.Relation{
			{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("99999")},
		},
	})

	if _, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionGet); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Only the story tag changed; the unusual spacing of the tc line is
	// the author's and must survive the rewrite.
	want := "@tc: 1234\n@story:99999\nCenário: Login do usuário\n"
	if string(got) != want {
		t.Errorf("file content:\n%q\nwant:\n%q", got, want)
	}
}

func TestGetPullsAutomationStatusWithUnderscores(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    1,
		Fields: map[string]any{"Custom.AutomationStatus": "Not Automated"},
	})

	if _, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionGet); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cases := rescan(t, dir)
	if v, _ := cases[0].Get("automation"); v != "Not_Automated" {
		t.Errorf("automation tag = %q, want Not_Automated", v)
	}
}

func TestExcludedScenarioMakesNoRemoteCalls(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "wip.feature",
		"@tc:1234\n@ignore_sync\nCenário: Trabalho em progresso\n")

	remote := newFakeRemote()
	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionBoth)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, _, skipped, _ := sess.Counts()
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if remote.fetchCalls != 0 || remote.patchCount() != 0 {
		t.Errorf("excluded scenario caused remote traffic: fetches=%d patches=%d",
			remote.fetchCalls, remote.patchCount())
	}
}

func TestMissingIdentifierSkipped(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "new.feature",
		"@story:42\nCenário: Ainda sem identificador\n")

	remote := newFakeRemote()
	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionGet)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	_, _, skipped, failed := sess.Counts()
	if skipped != 1 || failed != 0 {
		t.Errorf("skipped=%d failed=%d, want 1/0", skipped, failed)
	}
	if remote.fetchCalls != 0 {
		t.Errorf("identifier-less scenario caused %d fetches", remote.fetchCalls)
	}
}

func TestDuplicateIdentifierFailsAllHolders(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.feature", "@tc:68\nCenário: Primeiro\n")
	writeTestFile(t, dir, "b.feature", "@tc:68\nCenário: Segundo\n")

	remote := newFakeRemote()
	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionBoth)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, _, _, failed := sess.Counts()
	if failed != 2 {
		t.Errorf("failed = %d, want 2 (both holders of the duplicate)", failed)
	}
	for _, r := range sess.Failures() {
		if !strings.Contains(r.Reason, "68") {
			t.Errorf("failure reason %q does not name the duplicated id", r.Reason)
		}
	}
	if remote.fetchCalls != 0 || remote.patchCount() != 0 {
		t.Errorf("duplicate id caused remote traffic: fetches=%d patches=%d",
			remote.fetchCalls, remote.patchCount())
	}
}

func TestPatchPushesOnlyDifferences(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@automation:Automated\n@priority:2\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:  1234,
		Rev: 7,
		Fields: map[string]any{
			"System.Title":                   "Login do usuário",
			"Custom.AutomationStatus":        "Not Automated",
			"Microsoft.VSTS.Common.Priority": float64(2),
		},
	})

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionPatch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	updated, _, _, failed := sess.Counts()
	if updated != 1 || failed != 0 {
		t.Errorf("updated=%d failed=%d, want 1/0", updated, failed)
	}

	if len(remote.patches) != 1 {
		t.Fatalf("patch calls = %d, want 1", len(remote.patches))
	}
	call := remote.patches[0]
	if call.id != 1234 || call.rev != 7 {
		t.Errorf("patched id=%d rev=%d, want 1234 rev 7", call.id, call.rev)
	}
	if len(call.ops) != 1 {
		t.Fatalf("ops = %v, want exactly the automation status replace", call.ops)
	}
	op := call.ops[0]
	if op.Op != "replace" || op.Path != "/fields/Custom.AutomationStatus" || op.Value != "Automated" {
		t.Errorf("unexpected op %+v", op)
	}
}

func TestPatchUnchangedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@automation:Automated\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:  1234,
		Rev: 7,
		Fields: map[string]any{
			"System.Title":            "Login do usuário",
			"Custom.AutomationStatus": "Automated",
		},
	})

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionPatch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	_, unchanged, _, _ := sess.Counts()
	if unchanged != 1 {
		t.Errorf("unchanged = %d, want 1", unchanged)
	}
	if remote.patchCount() != 0 {
		t.Errorf("matching state still produced %d patches", remote.patchCount())
	}
}

func TestPatchAddsMissingStoryRelation(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@story:555\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    1,
		Fields: map[string]any{"System.Title": "Login do usuário"},
	})

	if _, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionPatch); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(remote.patches) != 1 {
		t.Fatalf("patch calls = %d, want 1", len(remote.patches))
	}

	var linkOp *azure.Operation
	for i := range remote.patches[0].ops {
		if remote.patches[0].ops[i].Path == "/relations/-" {
			linkOp = &remote.patches[0].ops[i]
		}
	}
	if linkOp == nil {
		t.Fatalf("no relation op in %v", remote.patches[0].ops)
	}
	value, ok := linkOp.Value.(map[string]any)
	if !ok {
		t.Fatalf("relation value has type %T", linkOp.Value)
	}
	if value["rel"] != "Microsoft.VSTS.Common.TestedBy-Reverse" {
		t.Errorf("rel = %v", value["rel"])
	}
	if url, _ := value["url"].(string); !strings.HasSuffix(url, "/555") {
		t.Errorf("url = %v, want suffix /555", value["url"])
	}
}

func TestPatchConflictRetriedExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@automation:Automated\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    3,
		Fields: map[string]any{"Custom.AutomationStatus": "Not Automated"},
	})
	remote.conflicts[1234] = 1

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionPatch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	updated, _, _, failed := sess.Counts()
	if updated != 1 || failed != 0 {
		t.Errorf("updated=%d failed=%d, want 1/0", updated, failed)
	}
	if got := remote.patchCount(); got != 2 {
		t.Errorf("patch calls = %d, want 2 (original + one retry)", got)
	}
	if remote.items[1234].Fields["Custom.AutomationStatus"] != "Automated" {
		t.Errorf("retry did not land: %v", remote.items[1234].Fields)
	}
}

func TestPatchPersistentConflictFails(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@automation:Automated\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    3,
		Fields: map[string]any{"Custom.AutomationStatus": "Not Automated"},
	})
	remote.conflicts[1234] = 2

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionPatch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	_, _, _, failed := sess.Counts()
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if got := remote.patchCount(); got != 2 {
		t.Errorf("patch calls = %d, want 2 (retry bounded at one)", got)
	}
}

func TestAuthFailureAbortsSession(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\nCenário: Login do usuário\n")

	remote := newFakeRemote()
	remote.fetchErr = &azure.AuthError{Status: 401}

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionGet)
	if err == nil {
		t.Fatal("Run succeeded despite auth failure")
	}
	if sess.State != StateFailed {
		t.Errorf("State = %v, want failed", sess.State)
	}
}

func TestBothPullsThenPushesLocalOnlyValues(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@story:13231212\n@automation:Automated\nCenário: Login do usuário\n")

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    3,
		Fields: map[string]any{"System.Title": "Login do usuário"},
		Relations: []azure.Relation{
			{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("99999")},
		},
	})

	sess, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionBoth)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	updated, _, _, failed := sess.Counts()
	if updated != 1 || failed != 0 {
		t.Errorf("updated=%d failed=%d, want 1/0", updated, failed)
	}

	// The stale local story was corrected from the remote side first, so
	// the patch must not try to link 13231212.
	cases := rescan(t, dir)
	if v, _ := cases[0].Get("story"); v != "99999" {
		t.Errorf("story tag = %q, want 99999", v)
	}
	if len(remote.patches) != 1 {
		t.Fatalf("patch calls = %d, want 1", len(remote.patches))
	}
	for _, op := range remote.patches[0].ops {
		if op.Path == "/relations/-" {
			t.Errorf("patch tried to add a relation: %+v", op)
		}
	}
	if remote.items[1234].Fields["Custom.AutomationStatus"] != "Automated" {
		t.Errorf("local-only automation status was not pushed: %v", remote.items[1234].Fields)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "login.feature",
		"@tc:1234\n@automation:Automated\nCenário: Login do usuário\n")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	remote := newFakeRemote(&azure.WorkItem{
		ID:     1234,
		Rev:    3,
		Fields: map[string]any{"Custom.AutomationStatus": "Not Automated"},
		Relations: []azure.Relation{
			{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("777")},
		},
	})

	eng := newTestEngine(testConfig(dir), remote)
	eng.DryRun = true
	sess, err := eng.Run(context.Background(), DirectionBoth)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	updated, _, _, _ := sess.Counts()
	if updated != 1 {
		t.Errorf("updated = %d, want 1 (reported, not applied)", updated)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("dry run modified the local file")
	}
	if remote.patchCount() != 0 {
		t.Errorf("dry run issued %d patches", remote.patchCount())
	}
}

func TestGetRewritesSameFileBottomUp(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "suite.feature",
		"@tc:1\nCenário: Primeiro\n\n@tc:2\nCenário: Segundo\n")

	remote := newFakeRemote(
		&azure.WorkItem{
			ID:     1,
			Rev:    1,
			Fields: map[string]any{"Custom.AutomationStatus": "Automated"},
			Relations: []azure.Relation{
				{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("11")},
			},
		},
		&azure.WorkItem{
			ID:  2,
			Rev: 1,
			Relations: []azure.Relation{
				{Rel: "Microsoft.VSTS.Common.TestedBy-Reverse", URL: workItemURL("22")},
			},
		},
	)

	if _, err := newTestEngine(testConfig(dir), remote).Run(context.Background(), DirectionGet); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cases := rescan(t, dir)
	if len(cases) != 2 {
		t.Fatalf("rescan found %d scenarios, want 2", len(cases))
	}
	// The first scenario's block grew by two tags; the second must still
	// have been rewritten at its correct position.
	if v, _ := cases[0].Get("automation"); v != "Automated" {
		t.Errorf("first scenario automation = %q", v)
	}
	if v, _ := cases[0].Get("story"); v != "11" {
		t.Errorf("first scenario story = %q", v)
	}
	if v, _ := cases[1].Get("story"); v != "22" {
		t.Errorf("second scenario story = %q", v)
	}
	if cases[1].Title != "Segundo" {
		t.Errorf("second scenario title = %q", cases[1].Title)
	}
}

func TestStagingAppendsUnknownRemoteCases(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "login.feature",
		"@tc:1234\nCenário: Login do usuário\n")

	stepsXML := `<steps id="0" last="2"><step id="2" type="ActionStep">` +
		`<parameterizedString isformatted="true">&lt;DIV&gt;&lt;P&gt;Open the login page&lt;/P&gt;&lt;/DIV&gt;</parameterizedString>` +
		`<parameterizedString isformatted="true">Login form is shown</parameterizedString>` +
		`</step></steps>`

	remote := newFakeRemote(
		&azure.WorkItem{ID: 1234, Rev: 1, Fields: map[string]any{}},
		&azure.WorkItem{
			ID:  777,
			Rev: 1,
			Fields: map[string]any{
				"System.Title":             "Novo caso ainda não organizado",
				"Custom.AutomationStatus":  "Planned",
				"Microsoft.VSTS.TCM.Steps": stepsXML,
			},
		},
	)
	remote.queryIDs = []int{1234, 777}

	cfg := testConfig(dir)
	cfg.Constants = map[string]string{
		"System.AreaPath":    "Webshop\\QA",
		"settings_section":   "*** Settings ***",
		"test_cases_section": "*** Test Cases ***",
	}

	sess, err := newTestEngine(cfg, remote).Run(context.Background(), DirectionGet)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sess.Staged != 1 {
		t.Errorf("Staged = %d, want 1", sess.Staged)
	}

	data, err := os.ReadFile(filepath.Join(dir, StagingFileName))
	if err != nil {
		t.Fatalf("staging file not written: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"*** Settings ***",
		"*** Test Cases ***",
		"#@tc:777",
		"#@automation:Planned",
		"Cenário: Novo caso ainda não organizado",
		"Open the login page -> Login form is shown",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("staging file missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "#@tc:1234") {
		t.Error("staging file duplicates a locally present test case")
	}

	// The staged block must parse back as a normal scenario.
	cases := rescan(t, dir)
	var staged *scanner.TestCase
	for i := range cases {
		if id, ok := cases[i].ID("tc"); ok && id == 777 {
			staged = &cases[i]
		}
	}
	if staged == nil {
		t.Fatal("staged scenario not found on rescan")
	}
	if staged.Title != "Novo caso ainda não organizado" {
		t.Errorf("staged title = %q", staged.Title)
	}
}
