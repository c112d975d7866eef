package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/config"
	"github.com/kingrea/forge/internal/delivery/engine"
	"github.com/kingrea/forge/internal/logbook"
	"github.com/kingrea/forge/internal/logging"
	"github.com/kingrea/forge/internal/tui"
	"github.com/kingrea/forge/internal/vcs"
)

const deliveryLogName = "delivery.log"

// flags holds every option a command may register.
type flags struct {
	set            *pflag.FlagSet
	workspace      string
	dryRun         bool
	nonInteractive bool
	respectIgnore  bool
	includeTests   bool
	resume         bool
	threshold      float64
	tail           int
}

func newFlags(name string, stderr io.Writer) *flags {
	f := &flags{set: pflag.NewFlagSet("forge "+name, pflag.ContinueOnError)}
	f.set.SetOutput(stderr)
	f.set.StringVarP(&f.workspace, "workspace", "w", ".", "workspace directory")
	return f
}

func (f *flags) addResolve() {
	f.set.BoolVar(&f.nonInteractive, "non-interactive", false, "fail instead of asking to confirm a non-exact component match")
	f.set.Float64Var(&f.threshold, "threshold", config.DefaultThreshold, "minimum similarity for suggested component names")
}

func (f *flags) addIndex() {
	f.set.BoolVar(&f.respectIgnore, "respect-ignore", false, "skip documents excluded by git ignore rules")
}

func (f *flags) addPlan() {
	f.set.BoolVar(&f.includeTests, "include-tests", false, "always plan a tests tier")
	f.set.BoolVar(&f.resume, "resume", true, "skip units delivered by an interrupted run")
}

func (f *flags) parse(args []string) error {
	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usagef("%v", err)
	}
	return nil
}

// session bundles what a command needs to talk to the engine.
type session struct {
	cfg    *config.Config
	engine *engine.Engine
	book   *logbook.Logbook
	logger *logging.Logger
}

func (s *session) Close() {
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

// openSession builds the engine. writable creates .forge/ and the logs;
// read-only commands leave the workspace untouched.
func openSession(ctx context.Context, f *flags, stdin *os.File, stderr io.Writer, writable bool) (*session, error) {
	cfg, err := config.NewConfig(f.workspace)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logging.Nop()}
	if writable {
		if err := config.InitForgeDir(cfg.WorkspaceDir); err != nil {
			return nil, fmt.Errorf("init %s: %w", config.ForgeDir, err)
		}
		logger, err := logging.New(cfg.WorkspaceDir, cfg.Project.Log.Mode)
		if err != nil {
			return nil, err
		}
		s.logger = logger
		book, err := logbook.New(filepath.Join(cfg.LogsDir(), deliveryLogName))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open delivery log: %w", err)
		}
		s.book = book
	}

	repo := vcs.NewRepository(cfg.WorkspaceDir, cfg.Project.Commits.SignOff)
	opts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithLogbook(s.book),
		engine.WithConfirmer(tui.NewConfirmer(stdin, stderr, f.nonInteractive)),
		engine.WithResume(f.resume),
	}
	if f.set.Changed("threshold") {
		opts = append(opts, engine.WithThreshold(f.threshold))
	}
	if f.set.Changed("include-tests") {
		opts = append(opts, engine.WithTests(f.includeTests))
	}
	if f.respectIgnore {
		if !repo.IsRepository(ctx) {
			s.Close()
			return nil, usagef("--respect-ignore needs a git repository at %s", cfg.WorkspaceDir)
		}
		opts = append(opts, engine.WithIgnoreRules(repo))
	}
	if writable {
		committer, err := chooseCommitter(ctx, repo, f.dryRun)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts = append(opts, engine.WithCommitter(committer), engine.WithEmitter(chooseEmitter(cfg, stderr)))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = eng
	return s, nil
}

func chooseCommitter(ctx context.Context, repo *vcs.Repository, dryRun bool) (vcs.Committer, error) {
	if dryRun {
		return &vcs.Recorder{}, nil
	}
	if !repo.IsRepository(ctx) {
		return nil, usagef("%s is not a git repository (use --dry-run to record commits without git)", repo.Dir())
	}
	return repo, nil
}

func chooseEmitter(cfg *config.Config, stderr io.Writer) engine.Emitter {
	if strings.EqualFold(cfg.Project.Emitter.Mode, "command") {
		return engine.CommandEmitter{Argv: cfg.Project.Emitter.Command, Stdout: stderr, Stderr: stderr}
	}
	return engine.ScaffoldEmitter{}
}

func componentArg(f *flags, command string) (string, error) {
	args := f.set.Args()
	switch len(args) {
	case 0:
		return "", usagef("forge %s: a component name is required", command)
	case 1:
		return args[0], nil
	default:
		return strings.Join(args, " "), nil
	}
}

func runCommand(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	f := newFlags("run", stderr)
	f.addResolve()
	f.addIndex()
	f.addPlan()
	f.set.BoolVar(&f.dryRun, "dry-run", false, "record commits in memory instead of calling git")
	if err := f.parse(args); err != nil {
		return err
	}
	requested, err := componentArg(f, "run")
	if err != nil {
		return err
	}
	s, err := openSession(ctx, f, stdin, stderr, true)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.Run(ctx, requested)
	if report.Component != "" {
		fmt.Fprint(stdout, renderReport(report, f.dryRun))
	}
	return err
}

func planCommand(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	f := newFlags("plan", stderr)
	f.addResolve()
	f.addIndex()
	f.addPlan()
	if err := f.parse(args); err != nil {
		return err
	}
	requested, err := componentArg(f, "plan")
	if err != nil {
		return err
	}
	s, err := openSession(ctx, f, stdin, stderr, false)
	if err != nil {
		return err
	}
	defer s.Close()

	prep, err := s.engine.Plan(ctx, requested)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, renderPlan(prep))
	return nil
}

func statusCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newFlags("status", stderr)
	f.addIndex()
	f.set.IntVar(&f.tail, "tail", 10, "delivery log entries to show with a component")
	if err := f.parse(args); err != nil {
		return err
	}
	component := strings.Join(f.set.Args(), " ")
	f.nonInteractive = true
	s, err := openSession(ctx, f, nil, stderr, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ledger, docs, err := s.engine.Ledger(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, renderLedger(ledger, docs.StatusLedgerPath(s.cfg.Project.Documents), component))
	if component == "" || f.tail <= 0 {
		return nil
	}
	logPath := filepath.Join(s.cfg.LogsDir(), deliveryLogName)
	if _, err := os.Stat(logPath); err != nil {
		return nil
	}
	book, err := logbook.New(logPath)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, renderTail(book.Tail(f.tail, artifact.Slug(component))))
	return nil
}

func locateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f := newFlags("locate", stderr)
	f.addIndex()
	if err := f.parse(args); err != nil {
		return err
	}
	if extra := f.set.Args(); len(extra) > 0 {
		return usagef("forge locate: unexpected argument %q", extra[0])
	}
	f.nonInteractive = true
	s, err := openSession(ctx, f, nil, stderr, false)
	if err != nil {
		return err
	}
	defer s.Close()

	docs, err := s.engine.Locate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, renderDocuments(docs, s.cfg))
	return nil
}

func initCommand(args []string, stdout, stderr io.Writer) error {
	f := newFlags("init", stderr)
	f.set.Float64Var(&f.threshold, "threshold", config.DefaultThreshold, "store a similarity threshold in config.yaml")
	f.set.BoolVar(&f.includeTests, "include-tests", false, "store planner.include_tests in config.yaml")
	if err := f.parse(args); err != nil {
		return err
	}
	cfg, err := config.NewConfig(f.workspace)
	if err != nil {
		return err
	}
	if err := config.InitForgeDir(cfg.WorkspaceDir); err != nil {
		return fmt.Errorf("init %s: %w", config.ForgeDir, err)
	}
	if f.set.Changed("threshold") || f.set.Changed("include-tests") {
		cfg, err = config.NewConfig(cfg.WorkspaceDir)
		if err != nil {
			return err
		}
		if f.set.Changed("threshold") {
			cfg.Project.Resolver.Threshold = f.threshold
		}
		if f.set.Changed("include-tests") {
			cfg.Project.Planner.IncludeTests = f.includeTests
		}
		if err := cfg.Save(); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "initialized %s\n", cfg.ProjectConfigPath())
	return nil
}
