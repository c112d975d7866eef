// forge delivers one component of a design document at a time: it resolves
// the requested name against the catalog, plans the work in tiers, commits
// every code unit before the documentation that describes it and records
// the component's progress in the status ledger.
//
// Usage:
//
//	forge run <component>     deliver a component
//	forge plan <component>    print the delivery plan without side effects
//	forge status [component]  print the status ledger
//	forge locate              print the located workspace documents
//	forge init                create .forge/ with a default config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kingrea/forge/internal/delivery/engine"
	"github.com/kingrea/forge/internal/delivery/planner"
	"github.com/kingrea/forge/internal/delivery/resolver"
	"github.com/kingrea/forge/internal/delivery/sequencer"
	"github.com/kingrea/forge/internal/status"
	"github.com/kingrea/forge/internal/workspace"
)

const (
	exitOK                = 0
	exitError             = 1
	exitUsage             = 2
	exitMissingDesign     = 3
	exitNotFound          = 4
	exitDeclined          = 5
	exitSequencing        = 6
	exitInvalidTransition = 7
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// usageError marks command line mistakes.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCode maps an error to the documented process exit status.
func exitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, workspace.ErrMissingDesignDoc):
		return exitMissingDesign
	case errors.Is(err, resolver.ErrNotFound):
		return exitNotFound
	case errors.Is(err, engine.ErrDeclined), errors.Is(err, resolver.ErrAmbiguousMatch):
		return exitDeclined
	case errors.Is(err, sequencer.ErrSequencing),
		errors.Is(err, planner.ErrDependencyCycle),
		errors.Is(err, planner.ErrUnknownDependency):
		return exitSequencing
	case errors.Is(err, status.ErrInvalidTransition):
		return exitInvalidTransition
	default:
		return exitError
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return usagef("a command is required")
	}
	command, rest := args[0], args[1:]
	switch command {
	case "run":
		return runCommand(ctx, rest, stdin, stdout, stderr)
	case "plan":
		return planCommand(ctx, rest, stdin, stdout, stderr)
	case "status":
		return statusCommand(ctx, rest, stdout, stderr)
	case "locate":
		return locateCommand(ctx, rest, stdout, stderr)
	case "init":
		return initCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return usagef("unknown command %q", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `forge delivers design-document components as ordered commits.

Usage:
  forge run <component> [flags]     deliver a component
  forge plan <component> [flags]    print the delivery plan
  forge status [component] [flags] print the status ledger
  forge locate [flags]              print the located documents
  forge init [flags]                create .forge/config.yaml

Run "forge <command> --help" for the flags of a command.

Exit codes: 0 ok, 1 error, 2 usage, 3 no design document, 4 component not
found, 5 match ambiguous or declined, 6 invalid delivery order, 7 invalid
status transition.
`)
}
