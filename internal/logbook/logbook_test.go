package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLines(t *testing.T) {
	dir := t.TempDir()
	book, err := New(filepath.Join(dir, "logs", "delivery.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("pdf-viewer", "entry-%d", i)
	}
	lines := book.Tail(3, "")
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestTailFiltersByComponent(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	book, err := New(filepath.Join(t.TempDir(), "delivery.log"), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Commit("pdf-viewer", "pdf-viewer/code/1/model", "feat(pdf-viewer): add model")
	book.Status("chat-panel", "not-started", "in-progress")
	book.Warn("", "workspace   has\nno readme")

	lines := book.Tail(10, "pdf-viewer")
	if len(lines) != 1 {
		t.Fatalf("expected one pdf-viewer entry, got %v", lines)
	}
	want := "2026-10-17T09:00:00Z COMMIT pdf-viewer pdf-viewer/code/1/model feat(pdf-viewer): add model"
	if lines[0] != want {
		t.Fatalf("line = %q, want %q", lines[0], want)
	}
	all := book.Tail(10, "")
	if len(all) != 3 || !strings.HasSuffix(all[2], "WARN   - workspace has no readme") {
		t.Fatalf("unexpected journal: %q", all)
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("x", "ignored")
	if book.Tail(5, "") != nil {
		t.Fatalf("nil logbook must not return lines")
	}
}
