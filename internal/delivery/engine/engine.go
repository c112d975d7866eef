package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/config"
	"github.com/kingrea/forge/internal/delivery"
	"github.com/kingrea/forge/internal/delivery/planner"
	"github.com/kingrea/forge/internal/delivery/resolver"
	"github.com/kingrea/forge/internal/delivery/sequencer"
	"github.com/kingrea/forge/internal/design"
	"github.com/kingrea/forge/internal/docsynth"
	"github.com/kingrea/forge/internal/logbook"
	"github.com/kingrea/forge/internal/logging"
	"github.com/kingrea/forge/internal/platform"
	"github.com/kingrea/forge/internal/status"
	"github.com/kingrea/forge/internal/vcs"
	"github.com/kingrea/forge/internal/workspace"
)

// Engine runs deliveries for one workspace.
type Engine struct {
	cfg           *config.Config
	loader        *design.Loader
	registry      *platform.Registry
	confirmer     Confirmer
	emitter       Emitter
	committer     vcs.Committer
	ignore        workspace.IgnoreChecker
	logger        *logging.Logger
	book          *logbook.Logbook
	clock         func() time.Time
	newRunID      func() string
	threshold     float64
	tests         bool
	resume        bool
	respectIgnore bool
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.newRunID = next
		}
	}
}

// WithLogger routes structured logs to logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLogbook records human-readable delivery entries in book.
func WithLogbook(book *logbook.Logbook) Option {
	return func(e *Engine) {
		e.book = book
	}
}

// WithConfirmer sets the actor asked about non-exact matches.
func WithConfirmer(c Confirmer) Option {
	return func(e *Engine) {
		if c != nil {
			e.confirmer = c
		}
	}
}

// WithEmitter sets how code units are produced.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithCommitter sets where delivered units are persisted.
func WithCommitter(c vcs.Committer) Option {
	return func(e *Engine) {
		if c != nil {
			e.committer = c
		}
	}
}

// WithRegistry replaces the platform producers.
func WithRegistry(reg *platform.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithIgnoreRules makes document discovery honor the checker's exclusion
// rules instead of reading every file.
func WithIgnoreRules(checker workspace.IgnoreChecker) Option {
	return func(e *Engine) {
		e.ignore = checker
		e.respectIgnore = checker != nil
	}
}

// WithThreshold overrides the configured similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.threshold = threshold
		}
	}
}

// WithTests overrides whether a tests tier is always planned.
func WithTests(enabled bool) Option {
	return func(e *Engine) {
		e.tests = enabled
	}
}

// WithResume controls whether an existing checkpoint is honored.
func WithResume(enabled bool) Option {
	return func(e *Engine) {
		e.resume = enabled
	}
}

// New wires an engine to the workspace configuration. Without further
// options it refuses non-exact matches, scaffolds code units and records
// commits in memory.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	e := &Engine{
		cfg:       cfg,
		loader:    design.NewLoader(),
		confirmer: RefuseConfirmer{},
		emitter:   ScaffoldEmitter{},
		committer: &vcs.Recorder{},
		logger:    logging.Nop(),
		clock:     time.Now,
		newRunID:  uuid.NewString,
		threshold: cfg.Project.Resolver.Threshold,
		tests:     cfg.Project.Planner.IncludeTests,
		resume:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		reg := platform.DefaultRegistry()
		if err := platform.RegisterDir(reg, cfg.PlatformsDir()); err != nil {
			return nil, fmt.Errorf("engine: load platform rules: %w", err)
		}
		e.registry = reg
	}
	return e, nil
}

// Locate finds the workspace documents.
func (e *Engine) Locate(ctx context.Context) (workspace.Documents, error) {
	opts := workspace.DefaultLocateOptions(e.cfg)
	if e.respectIgnore {
		opts.IncludeIgnored = false
		opts.Ignore = e.ignore
	}
	docs, err := workspace.Locate(ctx, e.cfg.WorkspaceDir, opts)
	if err != nil {
		return docs, err
	}
	e.logger.Debug("located documents", "design", docs.Design, "status", docs.StatusLedger, "readme", docs.Readme)
	return docs, nil
}

// Store returns the artifact store for the located documents.
func (e *Engine) Store(docs workspace.Documents) *artifact.Store {
	layout := artifact.Layout{
		Workspace:    e.cfg.WorkspaceDir,
		ForgeDir:     e.cfg.ForgeProjectDir,
		DocsDir:      e.cfg.DocsDir(),
		StatusLedger: docs.StatusLedgerPath(e.cfg.Project.Documents),
	}
	return artifact.NewStore(layout, artifact.WithClock(e.clock))
}

// Ledger loads the status ledger next to the located design document.
func (e *Engine) Ledger(ctx context.Context) (status.Ledger, workspace.Documents, error) {
	docs, err := e.Locate(ctx)
	if err != nil {
		return status.Ledger{}, docs, err
	}
	ledger, err := status.NewTracker(e.Store(docs)).Load()
	return ledger, docs, err
}

// Preparation is everything decided before the first unit is delivered.
type Preparation struct {
	Documents  workspace.Documents
	Catalog    *design.Document
	Resolution resolver.Resolution
	// Plan holds only the steps still to deliver.
	Plan delivery.Plan
	// Fingerprint identifies the full plan, completed steps included.
	Fingerprint string
	Completed   []string
	Ledger      status.Ledger
	Checkpoint  *State

	store *artifact.Store
}

// Component returns the resolved component.
func (p Preparation) Component() design.Component {
	return p.Resolution.Component
}

// Plan resolves requested and returns the delivery plan without touching
// the workspace.
func (e *Engine) Plan(ctx context.Context, requested string) (Preparation, error) {
	return e.prepare(ctx, requested)
}

func (e *Engine) prepare(ctx context.Context, requested string) (Preparation, error) {
	docs, err := e.Locate(ctx)
	if err != nil {
		return Preparation{}, err
	}
	catalog, err := e.loader.Load(docs.Design)
	if err != nil {
		return Preparation{}, err
	}
	resolution, err := e.resolve(ctx, requested, catalog)
	if err != nil {
		return Preparation{}, err
	}
	component := resolution.Component
	log := e.logger.With("component", component.Name)

	units, err := planner.New(
		planner.WithTests(e.tests),
		planner.WithProducers(e.registry),
	).Plan(component)
	if err != nil {
		return Preparation{}, err
	}
	full, err := e.sequencer().Sequence(units)
	if err != nil {
		return Preparation{}, err
	}
	if err := sequencer.Validate(full); err != nil {
		return Preparation{}, fmt.Errorf("engine: sequenced plan failed validation: %w", err)
	}

	store := e.Store(docs)
	ledger, err := status.NewTracker(store, status.WithClock(e.clock)).Load()
	if err != nil {
		return Preparation{}, err
	}

	prep := Preparation{
		Documents:   docs,
		Catalog:     catalog,
		Resolution:  resolution,
		Fingerprint: full.Fingerprint(),
		Ledger:      ledger,
		store:       store,
	}

	remaining := units
	if e.resume {
		checkpoint, err := NewRepository(store).Load(component.Name)
		switch {
		case errors.Is(err, ErrStateNotFound):
		case err != nil:
			return Preparation{}, err
		default:
			if checkpoint.PlanFingerprint != prep.Fingerprint {
				log.Warn("design changed since checkpoint", "run_id", checkpoint.RunID)
			}
			prep.Checkpoint = &checkpoint
			remaining = remaining[:0:0]
			for _, unit := range units {
				if checkpoint.IsCompleted(unit.ID) {
					prep.Completed = append(prep.Completed, unit.ID)
					continue
				}
				remaining = append(remaining, unit)
			}
		}
	}

	plan, err := e.sequencer(sequencer.WithCompleted(prep.Completed)).Sequence(remaining)
	if err != nil {
		return Preparation{}, err
	}
	plan.Component = component.Name
	plan.Blockers = blockers(component, catalog, ledger)
	prep.Plan = plan
	log.Info("planned delivery", "steps", len(plan.Steps), "completed", len(prep.Completed), "blockers", plan.Blockers)
	return prep, nil
}

func (e *Engine) sequencer(extra ...sequencer.Option) *sequencer.Sequencer {
	types := map[string]string{"docs": e.cfg.CommitType("docs")}
	for _, tier := range delivery.Tiers {
		types[tier.Key()] = e.cfg.CommitType(tier.Key())
	}
	opts := []sequencer.Option{
		sequencer.WithCommitTypes(types),
		sequencer.WithSummaryMax(e.cfg.Project.Commits.SummaryMax),
	}
	return sequencer.New(append(opts, extra...)...)
}

func (e *Engine) resolve(ctx context.Context, requested string, catalog *design.Document) (resolver.Resolution, error) {
	r := resolver.New(resolver.WithThreshold(e.threshold))
	resolution, err := r.Resolve(requested, catalog)
	var ambiguous *resolver.AmbiguousMatchError
	switch {
	case err == nil && !resolution.RequiresConfirmation:
		return resolution, nil
	case err == nil:
		ok, cerr := e.confirmer.Confirm(ctx, resolution.Requested, *resolution.Candidate)
		if cerr != nil {
			return resolver.Resolution{}, fmt.Errorf("engine: confirm %q: %w", requested, cerr)
		}
		if !ok {
			return resolver.Resolution{}, fmt.Errorf("%w: %q is not %q", ErrDeclined, requested, resolution.Candidate.Name)
		}
		e.logger.Info("suggestion confirmed", "requested", requested, "component", resolution.Component.Name)
		return resolver.Confirmed(resolution.Requested, *resolution.Candidate), nil
	case errors.As(err, &ambiguous):
		choice, ok, cerr := e.confirmer.Choose(ctx, ambiguous.Requested, ambiguous.Candidates)
		if cerr != nil {
			return resolver.Resolution{}, fmt.Errorf("engine: choose %q: %w", requested, cerr)
		}
		if !ok {
			return resolver.Resolution{}, fmt.Errorf("%w: %w", ErrDeclined, err)
		}
		e.logger.Info("candidate chosen", "requested", requested, "component", choice.Component.Name)
		return resolver.Confirmed(ambiguous.Requested, choice), nil
	default:
		return resolver.Resolution{}, err
	}
}

func blockers(component design.Component, catalog *design.Document, ledger status.Ledger) []string {
	var out []string
	for _, dep := range component.DependsOn {
		name := dep
		if found, ok := catalog.Lookup(dep); ok {
			name = found.Name
		}
		if ledger.State(name) != status.Done {
			out = append(out, name)
		}
	}
	return out
}

// Report summarizes a run. It is returned even when the run stops early.
type Report struct {
	RunID     string
	Component string
	Plan      delivery.Plan
	Skipped   []string
	Delivered []string
	Commits   []vcs.Commit
	DocPaths  []string
	Ledger    status.Ledger
}

// Run delivers requested completely: every remaining unit is emitted and
// committed in plan order, then the ledger marks the component done. A
// cancelled context stops the run between units; delivered units stay
// committed and checkpointed.
func (e *Engine) Run(ctx context.Context, requested string) (Report, error) {
	prep, err := e.prepare(ctx, requested)
	if err != nil {
		return Report{}, err
	}
	component := prep.Component()
	scope := artifact.Slug(component.Name)
	report := Report{
		Component: component.Name,
		Plan:      prep.Plan,
		Skipped:   prep.Completed,
		Ledger:    prep.Ledger,
	}
	for _, blocker := range prep.Plan.Blockers {
		e.book.Warn(scope, "dependency %s is not done", blocker)
	}

	tracker := status.NewTracker(prep.store, status.WithClock(e.clock))
	before := prep.Ledger.State(component.Name)
	ledger, err := tracker.Advance(component.Name, status.NotStarted, status.InProgress)
	if err != nil {
		return report, err
	}
	report.Ledger = ledger
	if before != status.InProgress {
		e.book.Status(scope, string(before), string(status.InProgress))
	}

	repo := NewRepository(prep.store)
	state := e.checkpoint(prep)
	report.RunID = state.RunID
	log := e.logger.With("component", component.Name, "run_id", state.RunID)
	e.book.Info(scope, "run %s started with %d step(s), %d already delivered", state.RunID, len(prep.Plan.Steps), len(prep.Completed))

	for i, step := range prep.Plan.Steps {
		if err := ctx.Err(); err != nil {
			e.book.Warn(scope, "run %s stopped before %s", state.RunID, step.Unit.ID)
			return report, fmt.Errorf("engine: stopped before %s: %w", step.Unit.ID, err)
		}
		commit, docPath, err := e.deliver(ctx, prep, step, &state, i == 0 && prep.Checkpoint != nil)
		if err != nil {
			e.book.Error(scope, "%s failed: %v", step.Unit.ID, err)
			log.Error("unit failed", "unit", step.Unit.ID, "error", err)
			return report, err
		}
		state.markCompleted(step.Unit.ID, commit.ID, e.clock())
		if err := repo.Save(state); err != nil {
			return report, err
		}
		report.Delivered = append(report.Delivered, step.Unit.ID)
		if commit.ID != "" {
			report.Commits = append(report.Commits, commit)
		}
		if docPath != "" {
			report.DocPaths = append(report.DocPaths, docPath)
		}
		e.book.Commit(scope, step.Unit.ID, step.Commit.Header())
		log.Info("unit delivered", "unit", step.Unit.ID, "commit", commit.ID)
	}

	ledger, err = tracker.Advance(component.Name, status.InProgress, status.Done)
	if err != nil {
		return report, err
	}
	report.Ledger = ledger
	e.book.Status(scope, string(status.InProgress), string(status.Done))
	if err := repo.Clear(component.Name); err != nil {
		return report, err
	}
	log.Info("delivery complete", "commits", len(report.Commits))
	return report, nil
}

func (e *Engine) checkpoint(prep Preparation) State {
	now := e.clock()
	state := State{
		RunID:           e.newRunID(),
		Component:       prep.Component().Name,
		PlanFingerprint: prep.Fingerprint,
		Results:         make(map[string]delivery.CodeResult),
		Commits:         make(map[string]string),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if prep.Checkpoint == nil {
		return state
	}
	for _, id := range prep.Completed {
		state.Completed = append(state.Completed, id)
		if result, ok := prep.Checkpoint.Results[id]; ok {
			state.Results[id] = result
		}
		if commit, ok := prep.Checkpoint.Commits[id]; ok {
			state.Commits[id] = commit
		}
	}
	return state
}

// ErrEmptyCommit reports a unit whose files produced no change to commit.
var ErrEmptyCommit = errors.New("engine: unit produced no changes")

// deliver produces and commits one unit. Only the first unit of a resumed
// run may find its files already committed unchanged: the previous run
// stopped between the commit and the checkpoint. Anywhere else an empty
// commit means the unit's work landed in another unit's commit.
func (e *Engine) deliver(ctx context.Context, prep Preparation, step delivery.Step, state *State, resumed bool) (vcs.Commit, string, error) {
	unit := step.Unit
	var (
		paths   []string
		docPath string
	)
	switch unit.Kind {
	case delivery.KindCode:
		emitted, err := e.emitter.Emit(ctx, EmitRequest{
			Workspace: e.cfg.WorkspaceDir,
			Component: prep.Component(),
			Unit:      unit,
			Commit:    step.Commit,
		})
		if err != nil {
			return vcs.Commit{}, "", err
		}
		if len(emitted) == 0 {
			return vcs.Commit{}, "", fmt.Errorf("engine: %s produced no files", unit.ID)
		}
		paths = emitted
		state.Results[unit.ID] = delivery.CodeResult{Unit: unit, Emitted: true, Paths: emitted}
	case delivery.KindDoc:
		blocks, err := docsynth.SynthesizeAll(unit, state.Results)
		if err != nil {
			return vcs.Commit{}, "", err
		}
		written, err := docsynth.NewWriter(prep.store).Write(unit, blocks)
		if err != nil {
			return vcs.Commit{}, "", err
		}
		rel, err := filepath.Rel(e.cfg.WorkspaceDir, written)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = written
		}
		docPath = filepath.ToSlash(rel)
		paths = []string{docPath}
	default:
		return vcs.Commit{}, "", fmt.Errorf("engine: %s has unknown kind %q", unit.ID, unit.Kind)
	}

	msg := vcs.Message{Header: step.Commit.Header(), Body: step.Commit.Body}
	commit, err := e.committer.Commit(ctx, msg, paths)
	if errors.Is(err, vcs.ErrNothingToCommit) {
		if !resumed {
			return vcs.Commit{}, "", fmt.Errorf("%w: %s (%s)", ErrEmptyCommit, unit.ID, strings.Join(paths, ", "))
		}
		e.logger.Warn("nothing to commit", "unit", unit.ID)
		return vcs.Commit{}, docPath, nil
	}
	if err != nil {
		return vcs.Commit{}, "", fmt.Errorf("engine: commit %s: %w", unit.ID, err)
	}
	if unit.Kind == delivery.KindCode {
		result := state.Results[unit.ID]
		result.Commit = commit.ID
		state.Results[unit.ID] = result
	}
	return commit, docPath, nil
}
