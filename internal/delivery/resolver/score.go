package resolver

import (
	"strings"
	"unicode"
)

// Similarity metric
//
// Names are normalized first: lower case, with "_", "." and whitespace
// folded to "-" and repeated dashes collapsed. The score of a requested
// name against a catalog name is the larger of
//
//   - the Dice coefficient over the dash-separated token sets, and
//   - 1 - levenshtein(a, b) / max(len(a), len(b)) over the normalized runes.
//
// Normalized-equal names score 1.0. A candidate qualifies when its score is
// at least the threshold (DefaultThreshold unless configured). Ties on score
// are broken by the sahilm/fuzzy subsequence score, then by name.

// DefaultThreshold is the minimum similarity for a suggestion.
const DefaultThreshold = 0.5

func normalize(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == '_' || r == '.' || r == '-' || unicode.IsSpace(r) {
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
			continue
		}
		b.WriteRune(r)
		dash = false
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Similarity scores two raw names in [0, 1].
func Similarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dice := tokenDice(na, nb)
	edit := editRatio(na, nb)
	if dice > edit {
		return dice
	}
	return edit
}

func tokenDice(a, b string) float64 {
	left := tokenSet(a)
	right := tokenSet(b)
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	shared := 0
	for token := range left {
		if right[token] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(left)+len(right))
}

func tokenSet(name string) map[string]bool {
	set := map[string]bool{}
	for _, token := range strings.Split(name, "-") {
		if token != "" {
			set[token] = true
		}
	}
	return set
}

func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
