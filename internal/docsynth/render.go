package docsynth

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/delivery"
)

// Render writes the blocks of one doc unit as markdown.
func Render(unit delivery.WorkUnit, blocks []DocBlock) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s: %s\n", unit.Component, unit.Tier.Key())
	for _, block := range blocks {
		fmt.Fprintf(&buf, "\n## %s\n\n%s\n", block.Element, block.Summary)

		buf.WriteString("\n### Integration points\n\n")
		for _, point := range block.IntegrationPoints {
			fmt.Fprintf(&buf, "- %s\n", point)
		}

		buf.WriteString("\n### Usage\n\n```\n")
		buf.WriteString(block.UsageExample)
		buf.WriteString("\n```\n")

		if block.Callable() {
			fmt.Fprintf(&buf, "\n### Signature\n\n`%s`\n", block.Signature)
			if len(block.Parameters) > 0 {
				buf.WriteString("\n### Parameters\n\n")
				for _, p := range block.Parameters {
					if p.Type == "" {
						fmt.Fprintf(&buf, "- `%s`\n", p.Name)
					} else {
						fmt.Fprintf(&buf, "- `%s` (%s)\n", p.Name, p.Type)
					}
				}
			}
			if len(block.Returns) > 0 {
				fmt.Fprintf(&buf, "\n### Returns\n\n%s\n", strings.Join(block.Returns, ", "))
			}
			if len(block.Errors) > 0 {
				buf.WriteString("\n### Errors\n\n")
				for _, e := range block.Errors {
					fmt.Fprintf(&buf, "- %s\n", e)
				}
			}
		}
		if block.StateManagement != "" {
			fmt.Fprintf(&buf, "\n### State management\n\n%s\n", block.StateManagement)
		}
		fmt.Fprintf(&buf, "\n_Source: %s_\n", block.Source)
	}
	return buf.Bytes()
}

// ErrEdited is wrapped when a generated document was changed by hand.
var ErrEdited = errors.New("docsynth: document edited by hand")

// EditedError names the document Write refused to replace.
type EditedError struct {
	Path   string
	Reason string
}

func (e *EditedError) Error() string {
	return fmt.Sprintf("%s: %s %s; move or delete it to regenerate", ErrEdited, e.Path, e.Reason)
}

func (e *EditedError) Unwrap() error { return ErrEdited }

// Writer persists rendered docs through the artifact store. It never
// replaces a document someone edited after it was generated.
type Writer struct {
	store *artifact.Store
}

// NewWriter builds a writer on store.
func NewWriter(store *artifact.Store) *Writer {
	return &Writer{store: store}
}

// Write renders blocks for unit and stores them. It returns the written path.
func (w *Writer) Write(unit delivery.WorkUnit, blocks []DocBlock) (string, error) {
	if unit.Kind != delivery.KindDoc {
		return "", fmt.Errorf("docsynth: %s is not a doc unit", unit.ID)
	}
	ref := artifact.DocBlock(unit.Component, int(unit.Tier))
	check, err := w.store.Check(ref)
	switch {
	case err != nil && check.State != artifact.StateInvalid:
		return "", fmt.Errorf("docsynth: check %s: %w", unit.ID, err)
	case check.State == artifact.StateInvalid:
		return "", &EditedError{Path: check.Path, Reason: "not written by forge"}
	case check.Edited:
		return "", &EditedError{Path: check.Path, Reason: "changed since it was generated"}
	}
	meta := artifact.Metadata{
		Component: unit.Component,
		Inputs:    append([]string{}, unit.Documents...),
		Notes:     map[string]string{"unit": unit.ID},
	}
	if err := w.store.Write(ref, Render(unit, blocks), meta); err != nil {
		return "", fmt.Errorf("docsynth: write %s: %w", unit.ID, err)
	}
	return w.store.Path(ref), nil
}
