package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/forge/internal/config"
	"github.com/kingrea/forge/internal/delivery/resolver"
	"github.com/kingrea/forge/internal/design"
	"github.com/kingrea/forge/internal/status"
	"github.com/kingrea/forge/internal/vcs"
	"github.com/kingrea/forge/internal/workspace"
)

const architecture = `# Reader

## Components

### pdf-viewer

Depends on: chat-panel
Summary: Renders PDF documents.

#### Elements

- model: Document data (kind: model)
- view: renders pages (kind: view; depends: model; signature: Render(doc Document, page int) (Image, error); errors: ErrPageRange)

### chat-panel

Lets readers ask questions.
`

func newWorkspace(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ARCHITECTURE.md"), []byte(architecture), 0o644); err != nil {
		t.Fatalf("write design: %v", err)
	}
	return config.Default(dir)
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithClock(fixedClock), WithRunIDs(func() string { return "run-1" })}
	eng, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return eng
}

func headers(commits []vcs.Commit) []string {
	out := make([]string, 0, len(commits))
	for _, c := range commits {
		out = append(out, c.Message.Header)
	}
	return out
}

type stubConfirmer struct {
	accept   bool
	choose   string
	confirms int
	chooses  int
}

func (s *stubConfirmer) Confirm(ctx context.Context, requested string, suggestion resolver.Candidate) (bool, error) {
	s.confirms++
	return s.accept, nil
}

func (s *stubConfirmer) Choose(ctx context.Context, requested string, candidates []resolver.Candidate) (resolver.Candidate, bool, error) {
	s.chooses++
	for _, c := range candidates {
		if c.Name == s.choose {
			return c, true, nil
		}
	}
	return resolver.Candidate{}, false, nil
}

type cancelAfterFirst struct {
	inner  *vcs.Recorder
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) Commit(ctx context.Context, msg vcs.Message, paths []string) (vcs.Commit, error) {
	commit, err := c.inner.Commit(ctx, msg, paths)
	c.cancel()
	return commit, err
}

func TestRunDeliversCodeBeforeDocs(t *testing.T) {
	cfg := newWorkspace(t)
	rec := &vcs.Recorder{}
	eng := newEngine(t, cfg, WithCommitter(rec))

	report, err := eng.Run(context.Background(), "pdf-viewer")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{
		"feat(pdf-viewer): add model",
		"feat(pdf-viewer): add view",
		"docs(pdf-viewer): document modules tier",
	}
	if got := headers(rec.Commits); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected commits:\nwant %v\ngot  %v", want, got)
	}
	if got := rec.Commits[0].Paths; !reflect.DeepEqual(got, []string{"src/pdf-viewer/models/model"}) {
		t.Fatalf("unexpected code paths: %v", got)
	}
	if got := rec.Commits[2].Paths; !reflect.DeepEqual(got, []string{"docs/components/pdf-viewer/3.md"}) {
		t.Fatalf("unexpected doc paths: %v", got)
	}
	if !reflect.DeepEqual(report.Plan.Blockers, []string{"chat-panel"}) {
		t.Fatalf("expected chat-panel blocker, got %v", report.Plan.Blockers)
	}
	if report.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", report.RunID)
	}
	if got := report.Ledger.State("pdf-viewer"); got != status.Done {
		t.Fatalf("expected done, got %s", got)
	}

	ledger, err := os.ReadFile(filepath.Join(cfg.WorkspaceDir, "STATUS.md"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if !strings.Contains(string(ledger), "pdf-viewer: done") {
		t.Fatalf("ledger missing entry:\n%s", ledger)
	}
	doc, err := os.ReadFile(filepath.Join(cfg.DocsDir(), "pdf-viewer", "3.md"))
	if err != nil {
		t.Fatalf("read docs: %v", err)
	}
	if !strings.Contains(string(doc), "Render") {
		t.Fatalf("docs do not mention the signature:\n%s", doc)
	}
	if _, err := os.Stat(filepath.Join(cfg.StateDir(), "pdf-viewer.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected checkpoint to be cleared, stat err = %v", err)
	}
}

func TestRunRefusesSuggestionWhenNonInteractive(t *testing.T) {
	cfg := newWorkspace(t)
	rec := &vcs.Recorder{}
	eng := newEngine(t, cfg, WithCommitter(rec))

	_, err := eng.Run(context.Background(), "pdf viewr")
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if len(rec.Commits) != 0 {
		t.Fatalf("declined run must not commit, got %v", headers(rec.Commits))
	}
	if _, err := os.Stat(filepath.Join(cfg.WorkspaceDir, "STATUS.md")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("declined run must not touch the ledger, stat err = %v", err)
	}
}

func TestRunProceedsAfterConfirmation(t *testing.T) {
	cfg := newWorkspace(t)
	rec := &vcs.Recorder{}
	confirmer := &stubConfirmer{accept: true}
	eng := newEngine(t, cfg, WithCommitter(rec), WithConfirmer(confirmer))

	report, err := eng.Run(context.Background(), "pdf viewr")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if confirmer.confirms != 1 {
		t.Fatalf("expected one confirmation, got %d", confirmer.confirms)
	}
	if report.Component != "pdf-viewer" || len(rec.Commits) != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunUnknownComponent(t *testing.T) {
	cfg := newWorkspace(t)
	eng := newEngine(t, cfg)
	if _, err := eng.Run(context.Background(), "billing"); !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunResumesAfterFailedCommit(t *testing.T) {
	cfg := newWorkspace(t)
	failing := &vcs.Recorder{FailAt: 2}
	eng := newEngine(t, cfg, WithCommitter(failing))

	report, err := eng.Run(context.Background(), "pdf-viewer")
	if err == nil {
		t.Fatalf("expected commit failure")
	}
	if !reflect.DeepEqual(report.Delivered, []string{"pdf-viewer/code/1/model"}) {
		t.Fatalf("unexpected delivered units: %v", report.Delivered)
	}
	ledger, _, err := eng.Ledger(context.Background())
	if err != nil {
		t.Fatalf("Ledger returned error: %v", err)
	}
	if got := ledger.State("pdf-viewer"); got != status.InProgress {
		t.Fatalf("expected in-progress after failure, got %s", got)
	}

	rec := &vcs.Recorder{}
	resumed := newEngine(t, cfg, WithCommitter(rec))
	report, err = resumed.Run(context.Background(), "pdf-viewer")
	if err != nil {
		t.Fatalf("resumed Run returned error: %v", err)
	}
	if !reflect.DeepEqual(report.Skipped, []string{"pdf-viewer/code/1/model"}) {
		t.Fatalf("unexpected skipped units: %v", report.Skipped)
	}
	want := []string{
		"feat(pdf-viewer): add view",
		"docs(pdf-viewer): document modules tier",
	}
	if got := headers(rec.Commits); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected resumed commits:\nwant %v\ngot  %v", want, got)
	}
	if got := report.Ledger.State("pdf-viewer"); got != status.Done {
		t.Fatalf("expected done, got %s", got)
	}
}

// emptyAt reports nothing to commit for the n-th commit (1-based) and
// records every other one.
type emptyAt struct {
	inner *vcs.Recorder
	n     int
	calls int
}

func (e *emptyAt) Commit(ctx context.Context, msg vcs.Message, paths []string) (vcs.Commit, error) {
	e.calls++
	if e.calls == e.n {
		return vcs.Commit{}, fmt.Errorf("%w: %s", vcs.ErrNothingToCommit, msg.Header)
	}
	return e.inner.Commit(ctx, msg, paths)
}

func TestRunRejectsUnitWithoutChanges(t *testing.T) {
	cfg := newWorkspace(t)
	committer := &emptyAt{inner: &vcs.Recorder{}, n: 2}
	eng := newEngine(t, cfg, WithCommitter(committer))

	report, err := eng.Run(context.Background(), "pdf-viewer")
	if !errors.Is(err, ErrEmptyCommit) {
		t.Fatalf("expected ErrEmptyCommit, got %v", err)
	}
	if !reflect.DeepEqual(report.Delivered, []string{"pdf-viewer/code/1/model"}) {
		t.Fatalf("unexpected delivered units: %v", report.Delivered)
	}
	if got := report.Ledger.State("pdf-viewer"); got != status.InProgress {
		t.Fatalf("expected in-progress, got %s", got)
	}
}

func TestRunResumeAcceptsUnitCommittedBeforeCheckpoint(t *testing.T) {
	cfg := newWorkspace(t)
	eng := newEngine(t, cfg, WithCommitter(&vcs.Recorder{FailAt: 2}))
	if _, err := eng.Run(context.Background(), "pdf-viewer"); err == nil {
		t.Fatalf("expected commit failure")
	}

	rec := &vcs.Recorder{}
	resumed := newEngine(t, cfg, WithCommitter(&emptyAt{inner: rec, n: 1}))
	report, err := resumed.Run(context.Background(), "pdf-viewer")
	if err != nil {
		t.Fatalf("resumed Run returned error: %v", err)
	}
	want := []string{"pdf-viewer/code/3/view", "pdf-viewer/doc/3"}
	if !reflect.DeepEqual(report.Delivered, want) {
		t.Fatalf("unexpected delivered units: %v", report.Delivered)
	}
	if got := headers(rec.Commits); !reflect.DeepEqual(got, []string{"docs(pdf-viewer): document modules tier"}) {
		t.Fatalf("unexpected commits: %v", got)
	}
}

const webDesign = `# Shell

## Components

### shell-app

Platform: web

#### Elements

- layout: page frame (kind: core)
- shell: application chrome (kind: core)
`

func TestRunCommitsEachCoreElementSeparately(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_AUTHOR_NAME", "Test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@test.local")
	t.Setenv("GIT_COMMITTER_NAME", "Test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@test.local")
	dir := t.TempDir()
	if output, err := exec.Command("git", "init", "--quiet", dir).CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, output)
	}
	if err := os.WriteFile(filepath.Join(dir, "ARCHITECTURE.md"), []byte(webDesign), 0o644); err != nil {
		t.Fatalf("write design: %v", err)
	}
	cfg := config.Default(dir)
	eng := newEngine(t, cfg, WithCommitter(vcs.NewRepository(dir, false)))

	report, err := eng.Run(context.Background(), "shell-app")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Delivered) != 2 || len(report.Commits) != 2 {
		t.Fatalf("expected two units in two commits, got delivered=%v commits=%d", report.Delivered, len(report.Commits))
	}
	want := [][]string{{"src/shell-app/Layout.tsx"}, {"src/shell-app/Shell.tsx"}}
	for i, commit := range report.Commits {
		if !reflect.DeepEqual(commit.Paths, want[i]) {
			t.Fatalf("commit %d paths = %v, want %v", i, commit.Paths, want[i])
		}
	}
	out, err := exec.Command("git", "-C", dir, "log", "--format=%s").CombinedOutput()
	if err != nil {
		t.Fatalf("git log: %v\n%s", err, out)
	}
	if got := strings.TrimSpace(string(out)); got != "feat(shell-app): add shell\nfeat(shell-app): add layout" {
		t.Fatalf("unexpected history:\n%s", got)
	}
}

func TestPlanUsesConfiguredCommitTypes(t *testing.T) {
	cfg := newWorkspace(t)
	cfg.Project.Commits.Types["models"] = "chore"
	delete(cfg.Project.Commits.Types, "docs")
	eng := newEngine(t, cfg)

	prep, err := eng.Plan(context.Background(), "pdf-viewer")
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	var got []string
	for _, step := range prep.Plan.Steps {
		got = append(got, step.Commit.Header())
	}
	want := []string{
		"chore(pdf-viewer): add model",
		"feat(pdf-viewer): add view",
		"docs(pdf-viewer): document modules tier",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected headers:\nwant %v\ngot  %v", want, got)
	}
}

func TestRunWithoutResumeReplaysEveryUnit(t *testing.T) {
	cfg := newWorkspace(t)
	eng := newEngine(t, cfg, WithCommitter(&vcs.Recorder{FailAt: 3}))
	if _, err := eng.Run(context.Background(), "pdf-viewer"); err == nil {
		t.Fatalf("expected commit failure")
	}

	rec := &vcs.Recorder{}
	fresh := newEngine(t, cfg, WithCommitter(rec), WithResume(false))
	report, err := fresh.Run(context.Background(), "pdf-viewer")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Skipped) != 0 || len(rec.Commits) != 3 {
		t.Fatalf("expected a full replay, skipped=%v commits=%v", report.Skipped, headers(rec.Commits))
	}
}

func TestRunStopsBetweenUnitsWhenCancelled(t *testing.T) {
	cfg := newWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	committer := &cancelAfterFirst{inner: &vcs.Recorder{}, cancel: cancel}
	eng := newEngine(t, cfg, WithCommitter(committer))

	report, err := eng.Run(ctx, "pdf-viewer")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Delivered) != 1 || len(committer.inner.Commits) != 1 {
		t.Fatalf("expected exactly one delivered unit, got %v", report.Delivered)
	}
	docs, err := eng.Locate(context.Background())
	if err != nil {
		t.Fatalf("Locate returned error: %v", err)
	}
	state, err := NewRepository(eng.Store(docs)).Load("pdf-viewer")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if !reflect.DeepEqual(state.Completed, []string{"pdf-viewer/code/1/model"}) {
		t.Fatalf("unexpected checkpoint: %+v", state)
	}
	if state.Commits["pdf-viewer/code/1/model"] != "dry-001" {
		t.Fatalf("checkpoint lost the commit id: %+v", state.Commits)
	}
}

func TestRunRejectsDeliveredComponent(t *testing.T) {
	cfg := newWorkspace(t)
	ledger := "# Status\n\n- pdf-viewer: done\n"
	if err := os.WriteFile(filepath.Join(cfg.WorkspaceDir, "STATUS.md"), []byte(ledger), 0o644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
	rec := &vcs.Recorder{}
	eng := newEngine(t, cfg, WithCommitter(rec))

	_, err := eng.Run(context.Background(), "pdf-viewer")
	if !errors.Is(err, status.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(rec.Commits) != 0 {
		t.Fatalf("done component must not be re-delivered")
	}
}

func TestPlanHasNoSideEffects(t *testing.T) {
	cfg := newWorkspace(t)
	eng := newEngine(t, cfg)

	prep, err := eng.Plan(context.Background(), "PDF-Viewer")
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if !prep.Resolution.Exact {
		t.Fatalf("expected an exact match")
	}
	if len(prep.Plan.Steps) != 3 || prep.Fingerprint == "" {
		t.Fatalf("unexpected plan: %+v", prep.Plan)
	}
	for _, path := range []string{"STATUS.md", "src", "docs", filepath.Join(".forge", "state")} {
		if _, err := os.Stat(filepath.Join(cfg.WorkspaceDir, path)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("Plan created %s (stat err = %v)", path, err)
		}
	}
}

func TestMissingDesignDocument(t *testing.T) {
	eng := newEngine(t, config.Default(t.TempDir()))
	_, err := eng.Plan(context.Background(), "pdf-viewer")
	if !errors.Is(err, workspace.ErrMissingDesignDoc) {
		t.Fatalf("expected ErrMissingDesignDoc, got %v", err)
	}
}

func TestRunChoosesAmongAmbiguousCandidates(t *testing.T) {
	cfg := newWorkspace(t)
	extended := architecture + "\n### pdf-viewers\n\nGallery of viewers.\n"
	if err := os.WriteFile(filepath.Join(cfg.WorkspaceDir, "ARCHITECTURE.md"), []byte(extended), 0o644); err != nil {
		t.Fatalf("write design: %v", err)
	}
	confirmer := &stubConfirmer{choose: "pdf-viewer"}
	eng := newEngine(t, cfg, WithConfirmer(confirmer))

	prep, err := eng.Plan(context.Background(), "pdf viewr")
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if confirmer.chooses != 1 || confirmer.confirms != 0 {
		t.Fatalf("expected one choice and no confirmation, got %+v", confirmer)
	}
	if prep.Component().Name != "pdf-viewer" || prep.Resolution.Exact {
		t.Fatalf("unexpected resolution: %+v", prep.Resolution)
	}

	confirmer.choose = ""
	_, err = eng.Plan(context.Background(), "pdf viewr")
	if !errors.Is(err, ErrDeclined) || !errors.Is(err, resolver.ErrAmbiguousMatch) {
		t.Fatalf("expected declined ambiguous match, got %v", err)
	}
}

func TestScaffoldKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "src", "keep.ts")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("hand written\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	req := EmitRequest{Workspace: dir}
	req.Unit.ID = "c/code/1/keep"
	req.Unit.Component = "c"
	req.Unit.Title = "keep"
	req.Unit.Payload.Paths = []string{"src/keep.ts", "src/new.ts"}

	paths, err := ScaffoldEmitter{}.Emit(context.Background(), req)
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{"src/keep.ts", "src/new.ts"}) {
		t.Fatalf("unexpected paths: %v", paths)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "hand written\n" {
		t.Fatalf("existing file was overwritten: %q", data)
	}
	created, _ := os.ReadFile(filepath.Join(dir, "src", "new.ts"))
	if !strings.HasPrefix(string(created), "// c: keep") {
		t.Fatalf("unexpected scaffold: %q", created)
	}

	req.Unit.Payload.Paths = []string{"../outside.txt"}
	if _, err := (ScaffoldEmitter{}).Emit(context.Background(), req); err == nil {
		t.Fatalf("expected paths outside the workspace to be rejected")
	}
}

func TestPromptListsSignatures(t *testing.T) {
	req := EmitRequest{}
	req.Unit.Component = "pdf-viewer"
	req.Unit.Title = "view"
	req.Unit.Elements = []design.Element{{Name: "view", Signature: "Render(doc Document) error"}}
	req.Unit.Payload.Paths = []string{"src/view.ts"}
	req.Commit.Type, req.Commit.Scope, req.Commit.Summary = "feat", "pdf-viewer", "add view"

	prompt := Prompt(req)
	for _, want := range []string{"Render(doc Document) error", "src/view.ts", `"feat(pdf-viewer): add view"`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
