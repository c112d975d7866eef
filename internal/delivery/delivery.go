// Package delivery holds the values passed between the planning stages:
// work units, commit descriptors and the sequenced delivery plan.
package delivery

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/kingrea/forge/internal/design"
)

// Kind separates implementation work from documentation work.
type Kind string

const (
	KindCode Kind = "code"
	KindDoc  Kind = "doc"
)

// Rank orders kinds: every code unit of a component precedes its doc units.
func (k Kind) Rank() int {
	if k == KindDoc {
		return 1
	}
	return 0
}

// Tier is a fixed layer of a component, lowest first.
type Tier int

const (
	TierModels Tier = iota + 1
	TierCore
	TierModules
	TierLogic
	TierIntegration
	TierTests
)

// Tiers lists every tier in delivery order.
var Tiers = []Tier{TierModels, TierCore, TierModules, TierLogic, TierIntegration, TierTests}

var tierKeys = map[Tier]string{
	TierModels:      "models",
	TierCore:        "core",
	TierModules:     "modules",
	TierLogic:       "logic",
	TierIntegration: "integration",
	TierTests:       "tests",
}

// Key returns the configuration key of the tier.
func (t Tier) Key() string {
	if key, ok := tierKeys[t]; ok {
		return key
	}
	return fmt.Sprintf("tier-%d", int(t))
}

func (t Tier) String() string {
	return fmt.Sprintf("%d-%s", int(t), t.Key())
}

// Valid reports whether t is one of the fixed tiers.
func (t Tier) Valid() bool {
	_, ok := tierKeys[t]
	return ok
}

// Payload is the opaque material a platform producer attaches to a unit.
type Payload struct {
	Platform string   `json:"platform"`
	Paths    []string `json:"paths,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// WorkUnit is the smallest deliverable: one tier of one component.
type WorkUnit struct {
	ID        string           `json:"id"`
	Component string           `json:"component"`
	Kind      Kind             `json:"kind"`
	Tier      Tier             `json:"tier"`
	Seq       int              `json:"seq"`
	Title     string           `json:"title"`
	Elements  []design.Element `json:"elements,omitempty"`
	// Documents lists the code unit IDs a doc unit describes.
	Documents []string `json:"documents,omitempty"`
	Payload   Payload  `json:"payload"`
}

// Less orders units of the same component by (kind rank, tier, seq).
func (u WorkUnit) Less(other WorkUnit) bool {
	if u.Kind.Rank() != other.Kind.Rank() {
		return u.Kind.Rank() < other.Kind.Rank()
	}
	if u.Tier != other.Tier {
		return u.Tier < other.Tier
	}
	return u.Seq < other.Seq
}

// PublicElements returns the elements a doc unit must cover.
func (u WorkUnit) PublicElements() []design.Element {
	var out []design.Element
	for _, el := range u.Elements {
		if el.Public {
			out = append(out, el)
		}
	}
	return out
}

// CommitDescriptor is the conventional commit derived from one unit.
type CommitDescriptor struct {
	Type    string `json:"type"`
	Scope   string `json:"scope"`
	Summary string `json:"summary"`
	Body    string `json:"body,omitempty"`
}

// Header renders "type(scope): summary".
func (c CommitDescriptor) Header() string {
	if c.Scope == "" {
		return fmt.Sprintf("%s: %s", c.Type, c.Summary)
	}
	return fmt.Sprintf("%s(%s): %s", c.Type, c.Scope, c.Summary)
}

// Step pairs a unit with its commit.
type Step struct {
	Unit   WorkUnit         `json:"unit"`
	Commit CommitDescriptor `json:"commit"`
}

// Plan is the ordered list of steps for one delivery run.
type Plan struct {
	Component string `json:"component"`
	Steps     []Step `json:"steps"`
	// Blockers lists declared component dependencies that are not done yet.
	Blockers []string `json:"blockers,omitempty"`
}

// Fingerprint hashes the unit ids and commit headers in order. Two plans
// with the same fingerprint deliver the same commits.
func (p Plan) Fingerprint() string {
	h := blake3.New()
	for _, step := range p.Steps {
		fmt.Fprintf(h, "%s\x00%s\x00%s\n", step.Unit.ID, step.Unit.Kind, step.Commit.Header())
		h.Write([]byte(strings.Join(step.Unit.Documents, ",")))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CodeResult describes a code unit after emission.
type CodeResult struct {
	Unit    WorkUnit `json:"unit"`
	Emitted bool     `json:"emitted"`
	Paths   []string `json:"paths,omitempty"`
	Commit  string   `json:"commit,omitempty"`
}
