package planner

import (
	"strings"
	"unicode"

	"github.com/kingrea/forge/internal/delivery"
	"github.com/kingrea/forge/internal/design"
)

var tierWords = map[string]delivery.Tier{
	"model": delivery.TierModels, "type": delivery.TierModels, "schema": delivery.TierModels,
	"entity": delivery.TierModels, "dto": delivery.TierModels, "data": delivery.TierModels,
	"record": delivery.TierModels, "enum": delivery.TierModels,

	"core": delivery.TierCore, "structure": delivery.TierCore, "layout": delivery.TierCore,
	"shell": delivery.TierCore, "container": delivery.TierCore, "root": delivery.TierCore,
	"skeleton": delivery.TierCore, "scaffold": delivery.TierCore, "config": delivery.TierCore,

	"view": delivery.TierModules, "component": delivery.TierModules, "subcomponent": delivery.TierModules,
	"module": delivery.TierModules, "widget": delivery.TierModules, "page": delivery.TierModules,
	"screen": delivery.TierModules, "panel": delivery.TierModules, "dialog": delivery.TierModules,

	"logic": delivery.TierLogic, "handler": delivery.TierLogic, "service": delivery.TierLogic,
	"controller": delivery.TierLogic, "hook": delivery.TierLogic, "action": delivery.TierLogic,
	"reducer": delivery.TierLogic, "store": delivery.TierLogic, "usecase": delivery.TierLogic,
	"business": delivery.TierLogic, "validator": delivery.TierLogic,

	"style": delivery.TierIntegration, "styling": delivery.TierIntegration, "theme": delivery.TierIntegration,
	"css": delivery.TierIntegration, "integration": delivery.TierIntegration, "adapter": delivery.TierIntegration,
	"client": delivery.TierIntegration, "gateway": delivery.TierIntegration, "connector": delivery.TierIntegration,
	"binding": delivery.TierIntegration,

	"test": delivery.TierTests, "spec": delivery.TierTests, "e2e": delivery.TierTests,
	"fixture": delivery.TierTests,
}

// TierOf returns the declared tier of an element: from its kind, else from
// the words in its name, else the modules tier.
func TierOf(el design.Element) delivery.Tier {
	if tier, ok := lookupWords(el.Kind); ok {
		return tier
	}
	if tier, ok := lookupWords(el.Name); ok {
		return tier
	}
	return delivery.TierModules
}

func lookupWords(value string) (delivery.Tier, bool) {
	for _, word := range words(value) {
		if tier, ok := tierWords[word]; ok {
			return tier, true
		}
		if singular := strings.TrimSuffix(word, "s"); singular != word {
			if tier, ok := tierWords[singular]; ok {
				return tier, true
			}
		}
	}
	return 0, false
}

// words splits on non-alphanumerics and camelCase boundaries.
func words(value string) []string {
	var out []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	runes := []rune(value)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return out
}
