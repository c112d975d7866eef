package engine

import (
	"context"
	"errors"

	"github.com/kingrea/forge/internal/delivery/resolver"
)

// ErrDeclined is returned when the external actor rejects every suggestion.
var ErrDeclined = errors.New("engine: component match declined")

// Confirmer is the synchronous boundary where a person settles a
// non-exact match. Implementations block until they hold a definite answer.
type Confirmer interface {
	// Confirm accepts or rejects the single suggestion for requested.
	Confirm(ctx context.Context, requested string, suggestion resolver.Candidate) (bool, error)
	// Choose picks one of the ranked candidates. ok is false when none is
	// acceptable.
	Choose(ctx context.Context, requested string, candidates []resolver.Candidate) (choice resolver.Candidate, ok bool, err error)
}

// RefuseConfirmer declines everything. It backs non-interactive runs, where
// only exact matches may proceed.
type RefuseConfirmer struct{}

func (RefuseConfirmer) Confirm(context.Context, string, resolver.Candidate) (bool, error) {
	return false, nil
}

func (RefuseConfirmer) Choose(context.Context, string, []resolver.Candidate) (resolver.Candidate, bool, error) {
	return resolver.Candidate{}, false, nil
}
