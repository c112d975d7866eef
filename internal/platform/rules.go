package platform

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/delivery"
)

// Rules is a declarative producer: per-tier path templates and notes.
// Templates may use {component}, {Component}, {element}, {Element} and
// {tier}.
type Rules struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	Paths       map[string][]string `yaml:"paths,omitempty"`
	Notes       map[string][]string `yaml:"notes,omitempty"`
}

// Validate ensures the rules are usable.
func (r Rules) Validate() error {
	if normalizeName(r.Name) == "" {
		return fmt.Errorf("platform: rules name is required")
	}
	for key := range r.Paths {
		if !knownSection(key) {
			return fmt.Errorf("platform: %s: unknown tier %q in paths", r.Name, key)
		}
	}
	for key := range r.Notes {
		if !knownSection(key) {
			return fmt.Errorf("platform: %s: unknown tier %q in notes", r.Name, key)
		}
	}
	return nil
}

// Normalized lowercases the name and section keys.
func (r Rules) Normalized() Rules {
	out := Rules{Name: normalizeName(r.Name), Description: strings.TrimSpace(r.Description)}
	out.Paths = lowerKeys(r.Paths)
	out.Notes = lowerKeys(r.Notes)
	return out
}

// Factory returns a factory producing r.
func (r Rules) Factory() Factory {
	rules := r.Normalized()
	return func() (Producer, error) {
		if err := rules.Validate(); err != nil {
			return nil, err
		}
		return rulesProducer{rules: rules}, nil
	}
}

type rulesProducer struct {
	rules Rules
}

func (p rulesProducer) Name() string { return p.rules.Name }

func (p rulesProducer) Produce(req Request) (delivery.Payload, error) {
	unit := req.Unit
	payload := delivery.Payload{Platform: p.rules.Name}
	section := unit.Tier.Key()
	if unit.Kind == delivery.KindDoc {
		section = "docs"
	}
	targets := elementNames(unit)
	seen := map[string]bool{}
	if unit.Kind == delivery.KindCode {
		for _, tmpl := range p.rules.Paths[section] {
			for _, element := range targets {
				path := expand(tmpl, req.Component, element, unit.Tier)
				if path != "" && !seen[path] {
					seen[path] = true
					payload.Paths = append(payload.Paths, path)
				}
			}
		}
	}
	for _, note := range p.rules.Notes[section] {
		payload.Notes = append(payload.Notes, expand(note, req.Component, unit.Title, unit.Tier))
	}
	return payload, nil
}

func elementNames(unit delivery.WorkUnit) []string {
	if len(unit.Elements) == 0 {
		return []string{unit.Title}
	}
	names := make([]string, 0, len(unit.Elements))
	for _, el := range unit.Elements {
		names = append(names, el.Name)
	}
	return names
}

func expand(tmpl, component, element string, tier delivery.Tier) string {
	replacer := strings.NewReplacer(
		"{component}", artifact.Slug(component),
		"{Component}", pascal(component),
		"{element}", artifact.Slug(element),
		"{Element}", pascal(element),
		"{tier}", tier.Key(),
	)
	return replacer.Replace(tmpl)
}

// pascal turns "pdf-viewer" or "pdfView" into "PdfViewer" / "PdfView".
func pascal(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range strings.TrimSpace(name) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func knownSection(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "docs" {
		return true
	}
	for _, tier := range delivery.Tiers {
		if tier.Key() == key {
			return true
		}
	}
	return false
}

func lowerKeys(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for key, values := range in {
		k := strings.ToLower(strings.TrimSpace(key))
		out[k] = append(out[k], values...)
	}
	return out
}

func builtinRules() []Rules {
	return []Rules{
		{
			Name:        Generic,
			Description: "Language-neutral layout under src/<component>",
			Paths: map[string][]string{
				"models":      {"src/{component}/models/{element}"},
				"core":        {"src/{component}/{element}"},
				"modules":     {"src/{component}/modules/{element}"},
				"logic":       {"src/{component}/logic/{element}"},
				"integration": {"src/{component}/integration/{element}"},
				"tests":       {"tests/{component}/{element}_test"},
			},
		},
		{
			Name:        "web",
			Description: "TypeScript web application layout",
			Paths: map[string][]string{
				"models":      {"src/{component}/types/{Element}.ts"},
				"core":        {"src/{component}/{Element}.tsx"},
				"modules":     {"src/{component}/components/{Element}.tsx"},
				"logic":       {"src/{component}/hooks/use{Element}.ts"},
				"integration": {"src/{component}/styles/{element}.css"},
				"tests":       {"src/{component}/__tests__/{Element}.test.tsx"},
			},
			Notes: map[string][]string{
				"modules":     {"Keep {Component} components presentational; state lives in hooks."},
				"integration": {"Scope styles to the {component} root class."},
				"docs":        {"Document props and emitted events for {Component}."},
			},
		},
		{
			Name:        "ui",
			Description: "Native UI toolkit layout",
			Paths: map[string][]string{
				"models":      {"ui/{component}/model/{Element}.swift"},
				"core":        {"ui/{component}/{Element}Scene.swift"},
				"modules":     {"ui/{component}/views/{Element}View.swift"},
				"logic":       {"ui/{component}/controllers/{Element}Controller.swift"},
				"integration": {"ui/{component}/theme/{Element}Style.swift"},
				"tests":       {"ui/{component}/Tests/{Element}Tests.swift"},
			},
			Notes: map[string][]string{
				"logic": {"Controllers own state; views stay declarative."},
			},
		},
		{
			Name:        "ops",
			Description: "Infrastructure and deployment layout",
			Paths: map[string][]string{
				"models":      {"ops/{component}/schema/{element}.yaml"},
				"core":        {"ops/{component}/{element}.tf"},
				"modules":     {"ops/{component}/modules/{element}/main.tf"},
				"logic":       {"ops/{component}/scripts/{element}.sh"},
				"integration": {"ops/{component}/pipelines/{element}.yaml"},
				"tests":       {"ops/{component}/tests/{element}_test.sh"},
			},
			Notes: map[string][]string{
				"core": {"Pin provider versions for {component}."},
			},
		},
	}
}
