package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/delivery"
)

// ErrStateNotFound is returned when no checkpoint exists for a component.
var ErrStateNotFound = errors.New("engine: state not found")

// State is the resume checkpoint of one component.
type State struct {
	RunID     string `json:"run_id"`
	Component string `json:"component"`
	// PlanFingerprint identifies the full plan the checkpoint was taken
	// against. A mismatch on resume means the design changed in between.
	PlanFingerprint string                         `json:"plan_fingerprint"`
	Completed       []string                       `json:"completed"`
	Results         map[string]delivery.CodeResult `json:"results,omitempty"`
	Commits         map[string]string              `json:"commits,omitempty"`
	StartedAt       time.Time                      `json:"started_at"`
	UpdatedAt       time.Time                      `json:"updated_at"`
}

// IsCompleted reports whether unit id was delivered by an earlier run.
func (s State) IsCompleted(id string) bool {
	for _, done := range s.Completed {
		if done == id {
			return true
		}
	}
	return false
}

func (s *State) markCompleted(id, commit string, at time.Time) {
	if !s.IsCompleted(id) {
		s.Completed = append(s.Completed, id)
	}
	if s.Commits == nil {
		s.Commits = make(map[string]string)
	}
	if commit != "" {
		s.Commits[id] = commit
	}
	s.UpdatedAt = at
}

// Repository keeps checkpoints as JSON artifacts under .forge/state.
type Repository struct {
	store *artifact.Store
}

// NewRepository creates a repository on the artifact store.
func NewRepository(store *artifact.Store) *Repository {
	return &Repository{store: store}
}

// Load reads the checkpoint for component.
func (r *Repository) Load(component string) (State, error) {
	var state State
	if _, err := r.store.ReadJSON(artifact.RunState(component), &state); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("engine: load state for %s: %w", component, err)
	}
	return state, nil
}

// Save writes the checkpoint atomically.
func (r *Repository) Save(state State) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("engine: encode state: %w", err)
	}
	meta := artifact.Metadata{
		Component: state.Component,
		Notes:     map[string]string{"run_id": state.RunID},
	}
	if err := r.store.Write(artifact.RunState(state.Component), encoded, meta); err != nil {
		return fmt.Errorf("engine: save state for %s: %w", state.Component, err)
	}
	return nil
}

// Clear drops the checkpoint once a component is done.
func (r *Repository) Clear(component string) error {
	if err := r.store.Remove(artifact.RunState(component)); err != nil {
		return fmt.Errorf("engine: clear state for %s: %w", component, err)
	}
	return nil
}
