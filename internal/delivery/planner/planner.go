// Package planner expands one component into dependency-ordered work units:
// a code unit per element, tier by tier, followed by the doc units that
// describe the public ones.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/delivery"
	"github.com/kingrea/forge/internal/design"
	"github.com/kingrea/forge/internal/platform"
)

var (
	// ErrDependencyCycle means elements depend on each other in a loop.
	ErrDependencyCycle = errors.New("planner: dependency cycle")
	// ErrUnknownDependency means an element depends on a name the component does not declare.
	ErrUnknownDependency = errors.New("planner: unknown dependency")
)

// CycleError lists the elements forming a loop.
type CycleError struct {
	Component string
	Path      []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s in %s: %s", ErrDependencyCycle, e.Component, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }

// UnknownDependencyError names the offending reference.
type UnknownDependencyError struct {
	Component  string
	Element    string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s: %s element %s depends on %q", ErrUnknownDependency, e.Component, e.Element, e.Dependency)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// Planner turns components into work units.
type Planner struct {
	includeTests bool
	producers    *platform.Registry
}

// Option customizes a Planner.
type Option func(*Planner)

// WithTests adds a tests unit when the component declares no test elements.
func WithTests(enabled bool) Option {
	return func(p *Planner) {
		p.includeTests = enabled
	}
}

// WithProducers sets the platform registry used to fill payloads.
func WithProducers(reg *platform.Registry) Option {
	return func(p *Planner) {
		if reg != nil {
			p.producers = reg
		}
	}
}

// New builds a planner backed by the built-in platform producers.
func New(opts ...Option) *Planner {
	p := &Planner{producers: platform.DefaultRegistry()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type node struct {
	element design.Element
	index   int
	base    delivery.Tier
	tier    delivery.Tier
	deps    []int
}

// Plan returns the ordered units for component. The same component always
// yields the same list.
func (p *Planner) Plan(component design.Component) ([]delivery.WorkUnit, error) {
	elements := component.Elements
	if len(elements) == 0 {
		elements = []design.Element{{
			Name:        component.Name,
			Kind:        "core",
			Description: component.Summary,
			Public:      true,
		}}
	}
	nodes, err := buildGraph(component.Name, elements)
	if err != nil {
		return nil, err
	}
	if err := assignTiers(component.Name, nodes); err != nil {
		return nil, err
	}

	slug := artifact.Slug(component.Name)
	byTier := map[delivery.Tier][]*node{}
	for _, n := range nodes {
		byTier[n.tier] = append(byTier[n.tier], n)
	}

	var units []delivery.WorkUnit
	hasTests := len(byTier[delivery.TierTests]) > 0
	for _, tier := range delivery.Tiers {
		ordered := orderWithinTier(byTier[tier], nodes)
		for seq, n := range ordered {
			units = append(units, delivery.WorkUnit{
				ID:        fmt.Sprintf("%s/code/%d/%s", slug, tier, artifact.Slug(n.element.Name)),
				Component: component.Name,
				Kind:      delivery.KindCode,
				Tier:      tier,
				Seq:       seq + 1,
				Title:     n.element.Name,
				Elements:  []design.Element{n.element},
			})
		}
		if tier == delivery.TierTests && p.includeTests && !hasTests {
			units = append(units, delivery.WorkUnit{
				ID:        fmt.Sprintf("%s/code/%d/tests", slug, tier),
				Component: component.Name,
				Kind:      delivery.KindCode,
				Tier:      tier,
				Seq:       1,
				Title:     "tests",
			})
		}
	}

	var docs []delivery.WorkUnit
	for _, tier := range delivery.Tiers {
		var documented []string
		var public []design.Element
		for _, unit := range units {
			if unit.Tier != tier {
				continue
			}
			if pub := unit.PublicElements(); len(pub) > 0 {
				documented = append(documented, unit.ID)
				public = append(public, pub...)
			}
		}
		if len(public) == 0 {
			continue
		}
		docs = append(docs, delivery.WorkUnit{
			ID:        fmt.Sprintf("%s/doc/%d", slug, tier),
			Component: component.Name,
			Kind:      delivery.KindDoc,
			Tier:      tier,
			Seq:       1,
			Title:     tier.Key() + " docs",
			Elements:  public,
			Documents: documented,
		})
	}
	units = append(units, docs...)

	if err := p.fillPayloads(component, units); err != nil {
		return nil, err
	}
	return units, nil
}

func (p *Planner) fillPayloads(component design.Component, units []delivery.WorkUnit) error {
	var note string
	producer, err := p.producers.Resolve(component.Platform)
	if err != nil {
		producer, err = p.producers.Resolve(platform.Generic)
		if err != nil {
			return fmt.Errorf("planner: %w", err)
		}
		note = fmt.Sprintf("platform %q is not registered; generic rules applied", component.Platform)
	}
	for i := range units {
		payload, err := producer.Produce(platform.Request{Component: component.Name, Unit: units[i]})
		if err != nil {
			return fmt.Errorf("planner: %s payload for %s: %w", producer.Name(), units[i].ID, err)
		}
		if note != "" {
			payload.Notes = append([]string{note}, payload.Notes...)
		}
		units[i].Payload = payload
	}
	return nil
}

func buildGraph(component string, elements []design.Element) ([]*node, error) {
	nodes := make([]*node, len(elements))
	index := make(map[string]int, len(elements))
	for i, el := range elements {
		key := artifact.Slug(el.Name)
		if prev, ok := index[key]; ok {
			return nil, fmt.Errorf("planner: %s declares element %q twice (%q)", component, el.Name, elements[prev].Name)
		}
		index[key] = i
		nodes[i] = &node{element: el, index: i, base: TierOf(el)}
	}
	for _, n := range nodes {
		for _, dep := range n.element.DependsOn {
			target, ok := index[artifact.Slug(dep)]
			if !ok {
				return nil, &UnknownDependencyError{Component: component, Element: n.element.Name, Dependency: dep}
			}
			n.deps = append(n.deps, target)
		}
	}
	return nodes, nil
}

// assignTiers raises every element to at least the tier of its
// dependencies and rejects cycles.
func assignTiers(component string, nodes []*node) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	var stack []int
	var visit func(int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			start := 0
			for idx, v := range stack {
				if v == i {
					start = idx
					break
				}
			}
			var path []string
			for _, v := range stack[start:] {
				path = append(path, nodes[v].element.Name)
			}
			path = append(path, nodes[i].element.Name)
			return &CycleError{Component: component, Path: path}
		}
		state[i] = visiting
		stack = append(stack, i)
		n := nodes[i]
		n.tier = n.base
		for _, dep := range n.deps {
			if err := visit(dep); err != nil {
				return err
			}
			if nodes[dep].tier > n.tier {
				n.tier = nodes[dep].tier
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return nil
	}
	for i := range nodes {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

// orderWithinTier is Kahn's algorithm with the ready set ordered by
// declaration index.
func orderWithinTier(tierNodes []*node, all []*node) []*node {
	if len(tierNodes) == 0 {
		return nil
	}
	inTier := map[int]bool{}
	for _, n := range tierNodes {
		inTier[n.index] = true
	}
	indegree := map[int]int{}
	dependents := map[int][]int{}
	for _, n := range tierNodes {
		indegree[n.index] += 0
		for _, dep := range n.deps {
			if inTier[dep] {
				indegree[n.index]++
				dependents[dep] = append(dependents[dep], n.index)
			}
		}
	}
	var ready []int
	for idx, deg := range indegree {
		if deg == 0 {
			ready = append(ready, idx)
		}
	}
	sort.Ints(ready)
	ordered := make([]*node, 0, len(tierNodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, all[next])
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				sort.Ints(ready)
			}
		}
	}
	return ordered
}
