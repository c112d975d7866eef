// Package docsynth derives documentation blocks for the public elements a
// code unit introduced, and writes them into the workspace docs area.
package docsynth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/forge/internal/delivery"
)

// ErrCodeNotEmitted is returned when docs are requested for code that does
// not exist yet.
var ErrCodeNotEmitted = errors.New("docsynth: code unit has not been emitted")

// DocBlock documents one public element.
type DocBlock struct {
	Component         string
	Element           string
	Tier              delivery.Tier
	Source            string
	Summary           string
	IntegrationPoints []string
	UsageExample      string
	// Callable elements only.
	Signature  string
	Parameters []Param
	Returns    []string
	Errors     []string
	// Stateful elements only.
	StateManagement string
}

// Callable reports whether the block carries call documentation.
func (b DocBlock) Callable() bool {
	return b.Signature != ""
}

// Synthesize builds a block for every public element of an emitted code
// unit.
func Synthesize(result delivery.CodeResult) ([]DocBlock, error) {
	unit := result.Unit
	if unit.Kind != delivery.KindCode {
		return nil, fmt.Errorf("docsynth: %s is a %s unit, not code", unit.ID, unit.Kind)
	}
	if !result.Emitted {
		return nil, fmt.Errorf("%w: %s", ErrCodeNotEmitted, unit.ID)
	}
	paths := result.Paths
	if len(paths) == 0 {
		paths = unit.Payload.Paths
	}
	var blocks []DocBlock
	for _, el := range unit.PublicElements() {
		block := DocBlock{
			Component: unit.Component,
			Element:   el.Name,
			Tier:      unit.Tier,
			Source:    unit.ID,
			Summary:   strings.TrimSpace(el.Description),
		}
		if block.Summary == "" {
			block.Summary = fmt.Sprintf("%s of the %s component.", el.Name, unit.Component)
		}
		for _, use := range el.Uses {
			block.IntegrationPoints = append(block.IntegrationPoints, "Uses "+use)
		}
		for _, dep := range el.DependsOn {
			block.IntegrationPoints = append(block.IntegrationPoints, "Depends on "+dep)
		}
		for _, path := range paths {
			block.IntegrationPoints = append(block.IntegrationPoints, "Defined in "+path)
		}
		if len(block.IntegrationPoints) == 0 {
			block.IntegrationPoints = []string{fmt.Sprintf("Part of %s; no external integration declared.", unit.Component)}
		}

		sig, callable := ParseSignature(el.Signature)
		switch {
		case strings.TrimSpace(el.Example) != "":
			block.UsageExample = strings.TrimSpace(el.Example)
		case callable:
			block.UsageExample = sig.Call()
		default:
			block.UsageExample = fmt.Sprintf("Use %s through the %s component.", el.Name, unit.Component)
		}
		if callable {
			block.Signature = strings.TrimSpace(el.Signature)
			block.Parameters = sig.Params
			block.Returns = sig.Returns
			block.Errors = append(block.Errors, el.Errors...)
			if len(block.Errors) == 0 && sig.ReturnsError() {
				block.Errors = []string{"Returns an error when the call fails."}
			}
		}
		if el.Stateful {
			block.StateManagement = fmt.Sprintf("%s keeps state across calls; callers share one instance per %s.", el.Name, unit.Component)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// SynthesizeAll covers every code result a doc unit references, in the
// order the doc unit lists them.
func SynthesizeAll(unit delivery.WorkUnit, results map[string]delivery.CodeResult) ([]DocBlock, error) {
	if unit.Kind != delivery.KindDoc {
		return nil, fmt.Errorf("docsynth: %s is not a doc unit", unit.ID)
	}
	var blocks []DocBlock
	for _, id := range unit.Documents {
		result, ok := results[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCodeNotEmitted, id)
		}
		produced, err := Synthesize(result)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, produced...)
	}
	return blocks, nil
}
