// Package design models the component catalog described by a workspace's
// design document.
package design

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateComponent is returned when two components share a name.
var ErrDuplicateComponent = errors.New("design: duplicate component")

// DuplicateComponentError identifies the clashing declarations.
type DuplicateComponentError struct {
	Name      string
	FirstLine int
	Line      int
}

func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("%s %q (line %d, first declared on line %d)", ErrDuplicateComponent, e.Name, e.Line, e.FirstLine)
}

func (e *DuplicateComponentError) Unwrap() error { return ErrDuplicateComponent }

// Document is the immutable catalog parsed from a design document.
type Document struct {
	Path       string
	Hash       string
	Components []Component
}

// Component is one entry of the catalog.
type Component struct {
	Name      string
	Aliases   []string
	DependsOn []string
	Platform  string
	Summary   string
	Elements  []Element
	Line      int
}

// Element is a sub-element of a component in declaration order.
type Element struct {
	Name        string
	Kind        string
	Description string
	DependsOn   []string
	Public      bool
	Stateful    bool
	Signature   string
	Uses        []string
	Example     string
	Errors      []string
}

// Names lists component names in declaration order.
func (d *Document) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Components))
	for _, c := range d.Components {
		names = append(names, c.Name)
	}
	return names
}

// Lookup finds a component by exact case-insensitive name.
func (d *Document) Lookup(name string) (Component, bool) {
	if d == nil {
		return Component{}, false
	}
	needle := strings.TrimSpace(name)
	for _, c := range d.Components {
		if strings.EqualFold(c.Name, needle) {
			return c, true
		}
	}
	return Component{}, false
}

