// Package artifact defines the files forge reads and writes inside a
// workspace. Each artifact has a stable identifier, a kind and a resolver
// that maps it onto the workspace layout.
package artifact

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Kind captures the storage shape and serialization format for an artifact.
type Kind string

const (
	// KindDocument represents a markdown document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON represents a JSON document enriched with a _forge metadata block.
	KindJSON Kind = "json"
)

// Producer is recorded in the metadata of every artifact forge writes.
const Producer = "forge"

// Layout lists the workspace locations artifact paths resolve against.
type Layout struct {
	Workspace    string
	ForgeDir     string
	DocsDir      string
	StatusLedger string
}

// PathResolver returns the fully-qualified path to an artifact.
type PathResolver func(Layout) string

// ArtifactRef declares a stable identifier and metadata for an artifact.
type ArtifactRef struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	Optional    bool
	path        PathResolver
}

// Path resolves the artifact path for the provided layout.
func (r ArtifactRef) Path(layout Layout) string {
	if r.path == nil {
		return ""
	}
	resolved := r.path(layout)
	if resolved == "" {
		return ""
	}
	return filepath.Clean(resolved)
}

// Validate ensures the reference is well-formed.
func (r ArtifactRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// Metadata captures provenance stored inside artifact frontmatter or metadata blocks.
type Metadata struct {
	ArtifactID string
	Producer   string
	Version    string
	Component  string
	Inputs     []string
	CreatedAt  time.Time
	Checksum   string
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the artifact ID, producer and timestamps.
func (m Metadata) WithDefaults(ref ArtifactRef, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.Producer == "" {
		clone.Producer = Producer
	}
	if clone.Version == "" {
		clone.Version = "1"
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref ArtifactRef) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.Producer == "" {
		return fmt.Errorf("artifact: producer is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("artifact: version is required for %s", ref.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      ArtifactRef
	Path     string
	State    State
	Metadata *Metadata
	// Edited is set when the body no longer matches the recorded checksum,
	// usually because someone changed the file by hand.
	Edited bool
	Err    error
}

func newDocRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindDocument,
		path:        resolver,
	}
}

func newJSONRef(id, name, desc string, resolver PathResolver) ArtifactRef {
	return ArtifactRef{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindJSON,
		path:        resolver,
	}
}

// StatusLedger is the markdown document recording per-component state.
var StatusLedger = newDocRef("status-ledger", "Status Ledger", "Per-component delivery state", func(l Layout) string {
	if l.StatusLedger != "" {
		return l.StatusLedger
	}
	return filepath.Join(l.Workspace, "STATUS.md")
})

// DocBlock references the generated documentation for one tier of a component.
func DocBlock(component string, tier int) ArtifactRef {
	id := fmt.Sprintf("docs-%s-%d", Slug(component), tier)
	return newDocRef(id, "Component Docs", fmt.Sprintf("Documentation for %s tier %d", component, tier), func(l Layout) string {
		if l.DocsDir == "" {
			return ""
		}
		return filepath.Join(l.DocsDir, Slug(component), strconv.Itoa(tier)+".md")
	})
}

// RunState references the resume checkpoint kept for a component.
func RunState(component string) ArtifactRef {
	id := "run-state-" + Slug(component)
	return newJSONRef(id, "Run State", "Resume checkpoint for "+component, func(l Layout) string {
		if l.ForgeDir == "" {
			return ""
		}
		return filepath.Join(l.ForgeDir, "state", Slug(component)+".json")
	})
}

// Slug lowercases name and folds every run of non-alphanumerics to "-".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
