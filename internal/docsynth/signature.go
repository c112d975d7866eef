package docsynth

import (
	"strings"
)

// Param is one declared parameter of a callable element.
type Param struct {
	Name string
	Type string
}

// Signature is a parsed callable signature.
type Signature struct {
	Name    string
	Params  []Param
	Returns []string
}

// ParseSignature understands "name(args) ret", "name(args): ret" and
// "name(args) -> ret". Returns may be a parenthesized list.
func ParseSignature(value string) (Signature, bool) {
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), "`"))
	value = strings.TrimPrefix(value, "func ")
	open := strings.IndexByte(value, '(')
	if open <= 0 {
		return Signature{}, false
	}
	name := strings.TrimSpace(value[:open])
	if name == "" || strings.ContainsAny(name, " \t") {
		return Signature{}, false
	}
	closeIdx := matchingParen(value, open)
	if closeIdx < 0 {
		return Signature{}, false
	}
	sig := Signature{Name: name}
	for _, raw := range splitTopLevel(value[open+1 : closeIdx]) {
		sig.Params = append(sig.Params, parseParam(raw))
	}
	rest := strings.TrimSpace(value[closeIdx+1:])
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(rest, "->"), ":"))
	if strings.HasPrefix(rest, "(") && matchingParen(rest, 0) == len(rest)-1 {
		rest = rest[1 : len(rest)-1]
	}
	sig.Returns = splitTopLevel(rest)
	return sig, true
}

// ReturnsError reports whether one of the returns looks like an error value.
func (s Signature) ReturnsError() bool {
	for _, ret := range s.Returns {
		lower := strings.ToLower(ret)
		if strings.HasSuffix(lower, "error") || strings.HasPrefix(lower, "result<") {
			return true
		}
	}
	return false
}

// Call renders a call expression using the parameter names.
func (s Signature) Call() string {
	args := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		if p.Name != "" {
			args = append(args, p.Name)
		} else {
			args = append(args, p.Type)
		}
	}
	return s.Name + "(" + strings.Join(args, ", ") + ")"
}

func parseParam(raw string) Param {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, ":"); idx > 0 {
		return Param{Name: strings.TrimSpace(raw[:idx]), Type: strings.TrimSpace(raw[idx+1:])}
	}
	if idx := strings.IndexAny(raw, " \t"); idx > 0 {
		return Param{Name: raw[:idx], Type: strings.TrimSpace(raw[idx+1:])}
	}
	return Param{Name: raw}
}

func matchingParen(value string, open int) int {
	depth := 0
	for i := open; i < len(value); i++ {
		switch value[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if value[i] == '>' && i > 0 && value[i-1] == '-' {
				continue
			}
			depth--
			if depth == 0 && value[i] == ')' {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(value string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if value[i] == '>' && i > 0 && value[i-1] == '-' {
				continue
			}
			depth--
		case ',':
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
