package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/kingrea/forge/internal/design"
)

var (
	// ErrNotFound means no catalog entry is similar enough to the request.
	ErrNotFound = errors.New("resolver: component not found")
	// ErrAmbiguousMatch means several entries qualify and one must be chosen.
	ErrAmbiguousMatch = errors.New("resolver: ambiguous component name")
)

// NotFoundError reports a request with no qualifying candidates. It carries
// no suggestions; the caller has to ask for a different name.
type NotFoundError struct {
	Requested string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNotFound, e.Requested)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AmbiguousMatchError carries the ranked candidates for an external choice.
type AmbiguousMatchError struct {
	Requested  string
	Candidates []Candidate
}

func (e *AmbiguousMatchError) Error() string {
	names := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("%s: %q matches %s", ErrAmbiguousMatch, e.Requested, strings.Join(names, ", "))
}

func (e *AmbiguousMatchError) Unwrap() error { return ErrAmbiguousMatch }

// Candidate is one ranked suggestion.
type Candidate struct {
	Component design.Component
	Name      string
	// MatchedOn is the name or alias that produced the score.
	MatchedOn string
	Alias     bool
	Score     float64
	Fuzzy     int
}

// Resolution is a successful lookup. Non-exact resolutions must be
// confirmed before anything is planned for them.
type Resolution struct {
	Requested            string
	Component            design.Component
	Exact                bool
	RequiresConfirmation bool
	Candidate            *Candidate
}

// Resolver scores requests against a catalog.
type Resolver struct {
	threshold float64
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithThreshold overrides the minimum similarity. Values outside (0, 1] are ignored.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 && threshold <= 1 {
			r.threshold = threshold
		}
	}
}

// New builds a resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold reports the active similarity threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve looks requested up in catalog.
func (r *Resolver) Resolve(requested string, catalog *design.Document) (Resolution, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		return Resolution{}, &NotFoundError{Requested: requested}
	}
	if component, ok := catalog.Lookup(name); ok {
		return Resolution{Requested: name, Component: component, Exact: true}, nil
	}
	candidates := r.Candidates(name, catalog)
	switch len(candidates) {
	case 0:
		return Resolution{}, &NotFoundError{Requested: name}
	case 1:
		c := candidates[0]
		return Resolution{
			Requested:            name,
			Component:            c.Component,
			RequiresConfirmation: true,
			Candidate:            &c,
		}, nil
	default:
		return Resolution{}, &AmbiguousMatchError{Requested: name, Candidates: candidates}
	}
}

// Confirmed turns a chosen candidate into a resolution.
func Confirmed(requested string, c Candidate) Resolution {
	return Resolution{Requested: requested, Component: c.Component, Candidate: &c}
}

// Candidates returns every catalog entry scoring at or above the threshold,
// best first. Each component appears once, scored by its best name or alias.
func (r *Resolver) Candidates(requested string, catalog *design.Document) []Candidate {
	if catalog == nil {
		return nil
	}
	var out []Candidate
	for _, component := range catalog.Components {
		best := Candidate{Component: component, Name: component.Name, MatchedOn: component.Name, Score: Similarity(requested, component.Name)}
		for _, alias := range component.Aliases {
			score := Similarity(requested, alias)
			if score > best.Score {
				best.Score = score
				best.MatchedOn = alias
				best.Alias = true
			}
		}
		if best.Score >= r.threshold {
			best.Fuzzy = fuzzyScore(requested, best.MatchedOn)
			out = append(out, best)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Fuzzy != out[j].Fuzzy {
			return out[i].Fuzzy > out[j].Fuzzy
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// fuzzyScore is the sahilm/fuzzy subsequence score of requested inside
// target, or a large negative number when it is not a subsequence.
func fuzzyScore(requested, target string) int {
	matches := fuzzy.Find(normalize(requested), []string{normalize(target)})
	if len(matches) == 0 {
		return -1 << 20
	}
	return matches[0].Score
}
