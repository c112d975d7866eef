// Package tui holds the interactive side of forge: the confirmation
// prompts shown when a requested component name is not an exact match.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/kingrea/forge/internal/delivery/engine"
	"github.com/kingrea/forge/internal/delivery/resolver"
)

// Chooser asks through a full-screen bubbletea list.
type Chooser struct {
	In  io.Reader
	Out io.Writer
}

func (c Chooser) Confirm(ctx context.Context, requested string, suggestion resolver.Candidate) (bool, error) {
	_, ok, err := c.run(ctx, newChooser(requested, []resolver.Candidate{suggestion}, true))
	return ok, err
}

func (c Chooser) Choose(ctx context.Context, requested string, candidates []resolver.Candidate) (resolver.Candidate, bool, error) {
	return c.run(ctx, newChooser(requested, candidates, false))
}

func (c Chooser) run(ctx context.Context, model *chooser) (resolver.Candidate, bool, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if c.In != nil {
		opts = append(opts, tea.WithInput(c.In))
	}
	if c.Out != nil {
		opts = append(opts, tea.WithOutput(c.Out))
	}
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return resolver.Candidate{}, false, fmt.Errorf("tui: chooser: %w", err)
	}
	choice, ok := model.result()
	return choice, ok, nil
}

// NewConfirmer picks the interactive chooser when both ends are terminals
// and the line prompt otherwise. nonInteractive, or a nil input, refuses
// every suggestion.
func NewConfirmer(in *os.File, out io.Writer, nonInteractive bool) engine.Confirmer {
	if nonInteractive {
		return engine.RefuseConfirmer{}
	}
	outFile, _ := out.(*os.File)
	if isTerminal(in) && isTerminal(outFile) {
		return Chooser{In: in, Out: out}
	}
	if in == nil {
		return engine.RefuseConfirmer{}
	}
	return &LinePrompt{In: in, Out: out}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
