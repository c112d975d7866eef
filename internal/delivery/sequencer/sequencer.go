// Package sequencer turns planned work units into a delivery plan: one
// conventional commit per unit, with every documentation commit of a
// component after all of that component's code commits.
package sequencer

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/delivery"
)

// ErrSequencing is wrapped by every rejected plan.
var ErrSequencing = errors.New("sequencer: invalid delivery order")

// SequencingError explains why a unit could not be sequenced.
type SequencingError struct {
	UnitID    string
	Component string
	Reason    string
}

func (e *SequencingError) Error() string {
	if e.UnitID == "" {
		return fmt.Sprintf("%s: %s", ErrSequencing, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrSequencing, e.UnitID, e.Reason)
}

func (e *SequencingError) Unwrap() error { return ErrSequencing }

const defaultSummaryMax = 72

// Sequencer derives commit descriptors and enforces delivery order.
type Sequencer struct {
	types      map[string]string
	summaryMax int
	completed  map[string]bool
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithCommitTypes maps tier keys and "docs" to conventional commit types.
func WithCommitTypes(types map[string]string) Option {
	return func(s *Sequencer) {
		for key, value := range types {
			if value = strings.TrimSpace(value); value != "" {
				s.types[strings.ToLower(key)] = value
			}
		}
	}
}

// WithSummaryMax caps the commit summary length in runes.
func WithSummaryMax(limit int) Option {
	return func(s *Sequencer) {
		if limit > 0 {
			s.summaryMax = limit
		}
	}
}

// WithCompleted marks code units delivered by a previous run. Doc units may
// document them even though they are no longer part of the input.
func WithCompleted(ids []string) Option {
	return func(s *Sequencer) {
		for _, id := range ids {
			s.completed[id] = true
		}
	}
}

// New builds a sequencer with feat/test/docs commit types.
func New(opts ...Option) *Sequencer {
	s := &Sequencer{
		types: map[string]string{
			"models":      "feat",
			"core":        "feat",
			"modules":     "feat",
			"logic":       "feat",
			"integration": "feat",
			"tests":       "test",
			"docs":        "docs",
		},
		summaryMax: defaultSummaryMax,
		completed:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sequence checks units in input order and returns the plan. The first
// violation rejects the whole plan; no descriptor is produced for the
// offending unit or anything after it.
func (s *Sequencer) Sequence(units []delivery.WorkUnit) (delivery.Plan, error) {
	remainingCode := map[string]int{}
	codeOwner := map[string]string{}
	seenIDs := map[string]bool{}
	for _, unit := range units {
		if unit.Kind == delivery.KindCode {
			remainingCode[unit.Component]++
			codeOwner[unit.ID] = unit.Component
		}
	}

	plan := delivery.Plan{Component: commonComponent(units)}
	sequenced := map[string]bool{}
	elementOwner := map[string]string{}
	pathOwner := map[string]string{}
	for _, unit := range units {
		if err := checkShape(unit); err != nil {
			return delivery.Plan{}, err
		}
		if seenIDs[unit.ID] {
			return delivery.Plan{}, reject(unit, "duplicate unit id")
		}
		seenIDs[unit.ID] = true

		switch unit.Kind {
		case delivery.KindCode:
			for _, el := range unit.Elements {
				key := unit.Component + "\x00" + artifact.Slug(el.Name)
				if prev, ok := elementOwner[key]; ok {
					return delivery.Plan{}, reject(unit, fmt.Sprintf("element %s is already delivered by %s", el.Name, prev))
				}
				elementOwner[key] = unit.ID
			}
			for _, p := range unit.Payload.Paths {
				key := unit.Component + "\x00" + path.Clean(strings.TrimSpace(p))
				if prev, ok := pathOwner[key]; ok {
					return delivery.Plan{}, reject(unit, fmt.Sprintf("path %s is already produced by %s", p, prev))
				}
				pathOwner[key] = unit.ID
			}
			remainingCode[unit.Component]--
			sequenced[unit.ID] = true
		case delivery.KindDoc:
			if left := remainingCode[unit.Component]; left > 0 {
				return delivery.Plan{}, reject(unit, fmt.Sprintf("%d code unit(s) of %s are not sequenced yet", left, unit.Component))
			}
			if len(unit.Documents) == 0 {
				return delivery.Plan{}, reject(unit, "doc unit documents no code units")
			}
			for _, ref := range unit.Documents {
				if s.completed[ref] {
					continue
				}
				owner, known := codeOwner[ref]
				switch {
				case !known:
					return delivery.Plan{}, reject(unit, fmt.Sprintf("documents unknown code unit %s", ref))
				case owner != unit.Component:
					return delivery.Plan{}, reject(unit, fmt.Sprintf("documents %s of component %s", ref, owner))
				case !sequenced[ref]:
					return delivery.Plan{}, reject(unit, fmt.Sprintf("documents %s before it is sequenced", ref))
				}
			}
		}
		plan.Steps = append(plan.Steps, delivery.Step{Unit: unit, Commit: s.Describe(unit)})
	}
	return plan, nil
}

// Describe derives the commit descriptor for unit from its content alone.
func (s *Sequencer) Describe(unit delivery.WorkUnit) delivery.CommitDescriptor {
	key := unit.Tier.Key()
	var summary string
	if unit.Kind == delivery.KindDoc {
		key = "docs"
		summary = fmt.Sprintf("document %s tier", unit.Tier.Key())
	} else {
		summary = "add " + unit.Title
	}
	commitType := s.types[key]
	if commitType == "" {
		commitType = "feat"
	}
	return delivery.CommitDescriptor{
		Type:    commitType,
		Scope:   artifact.Slug(unit.Component),
		Summary: truncate(summary, s.summaryMax),
		Body:    body(unit),
	}
}

// Validate re-checks a finished plan: unique ids, complete descriptors,
// documented units earlier in the plan, and for every component all code
// steps before the first doc step.
func Validate(plan delivery.Plan) error {
	lastCode := map[string]int{}
	firstDoc := map[string]int{}
	position := map[string]int{}
	for i, step := range plan.Steps {
		unit := step.Unit
		if _, dup := position[unit.ID]; dup {
			return reject(unit, "duplicate unit id")
		}
		position[unit.ID] = i
		if step.Commit.Type == "" || step.Commit.Summary == "" {
			return reject(unit, "missing commit descriptor")
		}
		switch unit.Kind {
		case delivery.KindCode:
			lastCode[unit.Component] = i
		case delivery.KindDoc:
			if _, ok := firstDoc[unit.Component]; !ok {
				firstDoc[unit.Component] = i
			}
			for _, ref := range unit.Documents {
				if at, ok := position[ref]; !ok {
					if laterIndex(plan, ref) > i {
						return reject(unit, fmt.Sprintf("documents %s before it is sequenced", ref))
					}
				} else if at > i {
					return reject(unit, fmt.Sprintf("documents %s before it is sequenced", ref))
				}
			}
		default:
			return reject(unit, fmt.Sprintf("unknown unit kind %q", unit.Kind))
		}
	}
	for component, doc := range firstDoc {
		if code, ok := lastCode[component]; ok && code > doc {
			return &SequencingError{
				UnitID:    plan.Steps[doc].Unit.ID,
				Component: component,
				Reason:    fmt.Sprintf("documentation precedes code step %s", plan.Steps[code].Unit.ID),
			}
		}
	}
	return nil
}

func laterIndex(plan delivery.Plan, id string) int {
	for i, step := range plan.Steps {
		if step.Unit.ID == id {
			return i
		}
	}
	return -1
}

func checkShape(unit delivery.WorkUnit) error {
	switch {
	case strings.TrimSpace(unit.ID) == "":
		return reject(unit, "unit id is required")
	case strings.TrimSpace(unit.Component) == "":
		return reject(unit, "unit has no component")
	case unit.Kind != delivery.KindCode && unit.Kind != delivery.KindDoc:
		return reject(unit, fmt.Sprintf("unknown unit kind %q", unit.Kind))
	case !unit.Tier.Valid():
		return reject(unit, fmt.Sprintf("unit spans no single tier (%d)", int(unit.Tier)))
	}
	return nil
}

func reject(unit delivery.WorkUnit, reason string) *SequencingError {
	return &SequencingError{UnitID: unit.ID, Component: unit.Component, Reason: reason}
}

func commonComponent(units []delivery.WorkUnit) string {
	if len(units) == 0 {
		return ""
	}
	name := units[0].Component
	for _, u := range units[1:] {
		if u.Component != name {
			return ""
		}
	}
	return name
}

func body(unit delivery.WorkUnit) string {
	var lines []string
	for _, el := range unit.Elements {
		if el.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", el.Name, el.Description))
		} else {
			lines = append(lines, "- "+el.Name)
		}
	}
	if len(unit.Documents) > 0 {
		lines = append(lines, "", "Documents: "+strings.Join(unit.Documents, ", "))
	}
	if len(unit.Payload.Paths) > 0 {
		lines = append(lines, "", "Paths: "+strings.Join(unit.Payload.Paths, ", "))
	}
	lines = append(lines, "", "Unit: "+unit.ID)
	return strings.TrimLeft(strings.Join(lines, "\n"), "\n")
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
