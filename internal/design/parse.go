package design

import (
	"regexp"
	"strings"

	"github.com/kingrea/forge/internal/markdown"
)

var (
	componentHeading = regexp.MustCompile(`(?i)^component\s*:\s*(.+)$`)
	keyLine          = regexp.MustCompile(`^([A-Za-z][A-Za-z -]*?)\s*:\s*(.*)$`)
)

var elementSections = map[string]bool{
	"elements":     true,
	"sub-elements": true,
	"subelements":  true,
	"structure":    true,
}

// Parse builds a catalog from markdown source. Components are either the
// child headings of a "Components" heading or any "Component: name"
// heading.
func Parse(source []byte) (*Document, error) {
	p := &parser{seen: map[string]int{}}
	for _, block := range markdown.Blocks(source) {
		if err := p.consume(block); err != nil {
			return nil, err
		}
	}
	p.flush()
	return &Document{Components: p.components}, nil
}

type parser struct {
	components []Component
	seen       map[string]int

	catalogLevel int
	current      *Component
	currentLevel int
	inElements   bool
	// private records an explicit "private" on the latest element.
	private bool
}

func (p *parser) consume(block markdown.Block) error {
	switch block.Kind {
	case markdown.KindHeading:
		return p.heading(block)
	case markdown.KindParagraph:
		if p.current == nil {
			return nil
		}
		var prose []string
		for _, line := range block.Lines {
			if !p.keyValue(line) {
				prose = append(prose, line)
			}
		}
		if p.current.Summary == "" && len(prose) > 0 && !p.inElements {
			p.current.Summary = strings.Join(prose, " ")
		}
	case markdown.KindListItem:
		if p.current == nil {
			return nil
		}
		if !p.inElements {
			p.keyValue(block.Text)
			return nil
		}
		if block.Level == 1 {
			if el, ok := parseElement(block.Text); ok {
				p.current.Elements = append(p.current.Elements, el)
				_, attrs := splitAttributes(strings.TrimSpace(block.Text))
				p.private = privateMarked(attrs)
			}
			return nil
		}
		if n := len(p.current.Elements); n > 0 {
			el := &p.current.Elements[n-1]
			applyAttribute(el, block.Text)
			if privateMarked([]string{block.Text}) {
				p.private = true
			}
			if el.Signature != "" && !p.private {
				el.Public = true
			}
		}
	}
	return nil
}

func (p *parser) heading(block markdown.Block) error {
	title := strings.TrimSpace(block.Text)
	if p.catalogLevel > 0 && block.Level <= p.catalogLevel {
		p.catalogLevel = 0
	}
	if m := componentHeading.FindStringSubmatch(title); m != nil {
		return p.start(strings.TrimSpace(m[1]), block)
	}
	if strings.EqualFold(title, "components") {
		p.flush()
		p.catalogLevel = block.Level
		return nil
	}
	if p.catalogLevel > 0 && block.Level == p.catalogLevel+1 {
		return p.start(title, block)
	}
	if p.current != nil && block.Level > p.currentLevel {
		p.inElements = elementSections[normalizeSection(title)]
		return nil
	}
	p.flush()
	return nil
}

func (p *parser) start(name string, block markdown.Block) error {
	p.flush()
	name = strings.Trim(name, "`* ")
	key := strings.ToLower(name)
	if first, ok := p.seen[key]; ok {
		return &DuplicateComponentError{Name: name, FirstLine: first, Line: block.Line}
	}
	p.seen[key] = block.Line
	p.current = &Component{Name: name, Line: block.Line}
	p.currentLevel = block.Level
	p.inElements = false
	return nil
}

func (p *parser) flush() {
	if p.current != nil {
		p.components = append(p.components, *p.current)
	}
	p.current = nil
	p.currentLevel = 0
	p.inElements = false
}

// keyValue applies a component-level "Key: value" line and reports whether
// the line was recognised.
func (p *parser) keyValue(line string) bool {
	m := keyLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return false
	}
	value := strings.TrimSpace(m[2])
	switch strings.ToLower(strings.TrimSpace(m[1])) {
	case "aliases", "alias", "also known as":
		p.current.Aliases = append(p.current.Aliases, splitList(value)...)
	case "platform":
		p.current.Platform = strings.ToLower(value)
	case "depends on", "depends-on", "dependencies", "requires":
		p.current.DependsOn = append(p.current.DependsOn, splitList(value)...)
	case "summary", "purpose":
		p.current.Summary = value
	default:
		return false
	}
	return true
}

func normalizeSection(title string) string {
	title = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(title), ":")))
	return strings.ReplaceAll(title, " ", "-")
}

// parseElement reads "name: description (attr; attr: value)".
func parseElement(text string) (Element, bool) {
	text = strings.TrimSpace(text)
	body, attrs := splitAttributes(text)
	var el Element
	if idx := strings.Index(body, ":"); idx >= 0 {
		el.Name = strings.TrimSpace(body[:idx])
		el.Description = strings.TrimSpace(body[idx+1:])
	} else {
		el.Name = strings.TrimSpace(body)
	}
	el.Name = strings.Trim(el.Name, "`* ")
	if el.Name == "" {
		return Element{}, false
	}
	for _, attr := range attrs {
		applyAttribute(&el, attr)
	}
	if el.Signature != "" && !privateMarked(attrs) {
		el.Public = true
	}
	return el, true
}

func privateMarked(attrs []string) bool {
	for _, attr := range attrs {
		if strings.EqualFold(strings.TrimSpace(attr), "private") {
			return true
		}
	}
	return false
}

// splitAttributes separates a trailing balanced "( ... )" group holding
// attributes from the rest of the text. Groups without a key or a known
// flag stay part of the description.
func splitAttributes(text string) (string, []string) {
	if !strings.HasSuffix(text, ")") {
		return text, nil
	}
	depth := 0
	open := -1
	for i := len(text) - 1; i >= 0; i-- {
		switch text[i] {
		case ')':
			depth++
		case '(':
			depth--
		}
		if depth == 0 {
			open = i
			break
		}
	}
	if open <= 0 {
		return text, nil
	}
	inner := text[open+1 : len(text)-1]
	parts := splitTopLevel(inner, ';')
	recognised := false
	for _, part := range parts {
		if isAttribute(part) {
			recognised = true
			break
		}
	}
	if !recognised {
		return text, nil
	}
	return strings.TrimSpace(text[:open]), parts
}

func splitTopLevel(value string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				if part := strings.TrimSpace(value[start:i]); part != "" {
					parts = append(parts, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(value[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

var attributeKeys = map[string]string{
	"kind":       "kind",
	"type":       "kind",
	"depends":    "depends",
	"depends on": "depends",
	"deps":       "depends",
	"signature":  "signature",
	"sig":        "signature",
	"uses":       "uses",
	"integrates": "uses",
	"example":    "example",
	"usage":      "example",
	"errors":     "errors",
	"raises":     "errors",
}

func splitKey(attr string) (string, string, bool) {
	idx := strings.Index(attr, ":")
	if idx < 0 {
		return "", "", false
	}
	key, ok := attributeKeys[strings.ToLower(strings.TrimSpace(attr[:idx]))]
	if !ok {
		return "", "", false
	}
	return key, strings.TrimSpace(attr[idx+1:]), true
}

func isAttribute(attr string) bool {
	if _, _, ok := splitKey(attr); ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(attr)) {
	case "public", "private", "stateful":
		return true
	}
	return false
}

func applyAttribute(el *Element, attr string) {
	attr = strings.TrimSpace(attr)
	if key, value, ok := splitKey(attr); ok {
		switch key {
		case "kind":
			el.Kind = strings.ToLower(value)
		case "depends":
			el.DependsOn = append(el.DependsOn, splitList(value)...)
		case "signature":
			el.Signature = strings.Trim(value, "`")
		case "uses":
			el.Uses = append(el.Uses, splitList(value)...)
		case "example":
			el.Example = strings.Trim(value, "`")
		case "errors":
			el.Errors = append(el.Errors, splitList(value)...)
		}
		return
	}
	switch strings.ToLower(attr) {
	case "public":
		el.Public = true
	case "private":
		el.Public = false
	case "stateful":
		el.Stateful = true
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range splitTopLevel(value, ',') {
		part = strings.Trim(strings.TrimSpace(part), "`")
		if part != "" && !strings.EqualFold(part, "none") && part != "-" {
			out = append(out, part)
		}
	}
	return out
}
