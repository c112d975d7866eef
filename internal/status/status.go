// Package status owns the per-component delivery state. A component moves
// from not-started to in-progress to done and never back.
package status

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the delivery state of one component.
type State string

const (
	NotStarted State = "not-started"
	InProgress State = "in-progress"
	Done       State = "done"
)

// ErrInvalidTransition is wrapped by every rejected state change.
var ErrInvalidTransition = errors.New("status: invalid transition")

// InvalidTransitionError records the rejected change and the state the
// ledger actually held.
type InvalidTransitionError struct {
	Component string
	From      State
	To        State
	Current   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s for %s: %s -> %s (current %s)", ErrInvalidTransition, e.Component, e.From, e.To, e.Current)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ParseState accepts the canonical names and a few common spellings.
func ParseState(value string) (State, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	switch normalized {
	case "not-started", "todo", "pending", "planned":
		return NotStarted, nil
	case "in-progress", "wip", "started", "active":
		return InProgress, nil
	case "done", "complete", "completed", "finished":
		return Done, nil
	}
	return "", fmt.Errorf("status: unknown state %q", value)
}

var legal = map[State]State{
	NotStarted: InProgress,
	InProgress: Done,
}

// Record is the ledger entry for one component.
type Record struct {
	Component string
	State     State
	UpdatedAt time.Time
	line      int
}

// Ledger is an immutable snapshot of component states. Every change
// returns a new ledger and leaves the receiver untouched.
type Ledger struct {
	records []Record
}

// NewLedger builds a ledger from records.
func NewLedger(records ...Record) Ledger {
	return Ledger{records: append([]Record(nil), records...)}
}

// Records returns a copy of the entries in ledger order.
func (l Ledger) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Lookup returns the record for component, matched case-insensitively.
func (l Ledger) Lookup(component string) (Record, bool) {
	if idx := l.index(component); idx >= 0 {
		return l.records[idx], true
	}
	return Record{}, false
}

// State returns the component state, not-started when absent.
func (l Ledger) State(component string) State {
	if rec, ok := l.Lookup(component); ok {
		return rec.State
	}
	return NotStarted
}

func (l Ledger) index(component string) int {
	needle := strings.TrimSpace(component)
	for i, rec := range l.records {
		if strings.EqualFold(rec.Component, needle) {
			return i
		}
	}
	return -1
}

func (l Ledger) with(rec Record) Ledger {
	next := l.Records()
	if idx := l.index(rec.Component); idx >= 0 {
		rec.Component = next[idx].Component
		rec.line = next[idx].line
		next[idx] = rec
	} else {
		next = append(next, rec)
	}
	return Ledger{records: next}
}

// Advance moves component from one state to the next. Only
// not-started -> in-progress and in-progress -> done are legal. Re-applying
// a legal transition the component already made is a no-op; anything else
// fails with an InvalidTransitionError and the input ledger is returned as is.
func Advance(ledger Ledger, component string, from, to State) (Ledger, error) {
	return advanceAt(ledger, component, from, to, time.Now())
}

func advanceAt(ledger Ledger, component string, from, to State, at time.Time) (Ledger, error) {
	component = strings.TrimSpace(component)
	if component == "" {
		return ledger, fmt.Errorf("status: component name is required")
	}
	current := ledger.State(component)
	if next, ok := legal[from]; !ok || next != to {
		return ledger, &InvalidTransitionError{Component: component, From: from, To: to, Current: current}
	}
	if current == to {
		return ledger, nil
	}
	if current != from {
		return ledger, &InvalidTransitionError{Component: component, From: from, To: to, Current: current}
	}
	return ledger.with(Record{Component: component, State: to, UpdatedAt: at.UTC()}), nil
}
