package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kingrea/forge/internal/delivery/resolver"
)

// LinePrompt asks on plain text streams, one answer per line. It serves
// piped input and terminals that cannot host the chooser.
type LinePrompt struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func (p *LinePrompt) Confirm(ctx context.Context, requested string, suggestion resolver.Candidate) (bool, error) {
	fmt.Fprintf(p.Out, "No component named %q. Did you mean %q (score %.2f)? [y/N] ", requested, suggestion.Name, suggestion.Score)
	answer, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *LinePrompt) Choose(ctx context.Context, requested string, candidates []resolver.Candidate) (resolver.Candidate, bool, error) {
	fmt.Fprintf(p.Out, "%q matches several components:\n", requested)
	for i, c := range candidates {
		fmt.Fprintf(p.Out, "  %d) %s (score %.2f)\n", i+1, c.Name, c.Score)
	}
	fmt.Fprintf(p.Out, "Choose 1-%d, or press Enter to cancel: ", len(candidates))
	answer, err := p.readLine(ctx)
	if err != nil {
		return resolver.Candidate{}, false, err
	}
	if answer == "" {
		return resolver.Candidate{}, false, nil
	}
	n, err := strconv.Atoi(answer)
	if err == nil && n >= 1 && n <= len(candidates) {
		return candidates[n-1], true, nil
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Name, answer) {
			return c, true, nil
		}
	}
	fmt.Fprintf(p.Out, "%q is not one of the choices.\n", answer)
	return resolver.Candidate{}, false, nil
}

// readLine blocks for one line. End of input counts as an empty answer.
func (p *LinePrompt) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("tui: read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
