package resolver

import (
	"errors"
	"math"
	"testing"

	"github.com/kingrea/forge/internal/design"
)

func catalog(components ...design.Component) *design.Document {
	return &design.Document{Components: components}
}

func named(names ...string) *design.Document {
	doc := &design.Document{}
	for _, name := range names {
		doc.Components = append(doc.Components, design.Component{Name: name})
	}
	return doc
}

func TestExactMatchNeedsNoConfirmation(t *testing.T) {
	res, err := New().Resolve("pdf-viewer", named("pdf-viewer", "chat-panel"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !res.Exact || res.RequiresConfirmation || res.Component.Name != "pdf-viewer" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestExactMatchIgnoresCaseAndSpace(t *testing.T) {
	res, err := New().Resolve("  PDF-Viewer ", named("pdf-viewer", "pdf-viewer-legacy"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !res.Exact || res.Component.Name != "pdf-viewer" {
		t.Fatalf("exact match should win outright: %+v", res)
	}
}

func TestAmbiguousRequestReturnsRankedCandidates(t *testing.T) {
	doc := named("pdf-viewer", "image-viewer")
	_, err := New().Resolve("viewer", doc)
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
	var ambiguous *AmbiguousMatchError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousMatchError, got %T", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Fatalf("expected both candidates, got %+v", ambiguous.Candidates)
	}
	seen := map[string]bool{}
	for _, c := range ambiguous.Candidates {
		seen[c.Name] = true
	}
	if !seen["pdf-viewer"] || !seen["image-viewer"] {
		t.Fatalf("unexpected candidates: %+v", ambiguous.Candidates)
	}
	again := New().Candidates("viewer", doc)
	for i := range again {
		if again[i].Name != ambiguous.Candidates[i].Name {
			t.Fatalf("ranking must be deterministic: %+v vs %+v", again, ambiguous.Candidates)
		}
	}
}

func TestSingleSuggestionRequiresConfirmation(t *testing.T) {
	res, err := New().Resolve("pdf_viewer", named("pdf-viewer", "chat-panel"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.Exact || !res.RequiresConfirmation || res.Candidate == nil {
		t.Fatalf("non-exact match must require confirmation: %+v", res)
	}
	if res.Candidate.Score != 1 {
		t.Fatalf("normalized-equal names should score 1, got %v", res.Candidate.Score)
	}
}

func TestAliasMatchIsStillASuggestion(t *testing.T) {
	doc := catalog(
		design.Component{Name: "pdf-viewer", Aliases: []string{"reader"}},
		design.Component{Name: "chat-panel"},
	)
	res, err := New().Resolve("Reader", doc)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !res.RequiresConfirmation || res.Component.Name != "pdf-viewer" {
		t.Fatalf("alias match must be confirmed: %+v", res)
	}
	if !res.Candidate.Alias || res.Candidate.MatchedOn != "reader" {
		t.Fatalf("expected alias candidate, got %+v", res.Candidate)
	}
}

func TestNotFoundCarriesNoSuggestions(t *testing.T) {
	_, err := New().Resolve("billing", named("pdf-viewer", "chat-panel"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Requested != "billing" {
		t.Fatalf("unexpected not found error: %#v", err)
	}
	if _, err := New().Resolve("   ", named("pdf-viewer")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank request should not resolve, got %v", err)
	}
}

func TestThresholdOption(t *testing.T) {
	doc := named("pdf-viewer", "image-viewer")
	if got := New(WithThreshold(0.9)).Candidates("viewer", doc); len(got) != 0 {
		t.Fatalf("strict threshold should reject partial matches: %+v", got)
	}
	if New(WithThreshold(3)).Threshold() != DefaultThreshold {
		t.Fatalf("out of range threshold should be ignored")
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"viewer", "pdf-viewer", 2.0 / 3.0},
		{"PDF Viewer", "pdf_viewer", 1},
		{"chat", "chart", 0.8},
		{"", "chat", 0},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
