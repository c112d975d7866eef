package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) (*Store, Layout) {
	t.Helper()
	root := t.TempDir()
	layout := Layout{
		Workspace: root,
		ForgeDir:  filepath.Join(root, ".forge"),
		DocsDir:   filepath.Join(root, "docs", "components"),
	}
	clock := func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return NewStore(layout, WithClock(clock)), layout
}

func TestDocumentRoundTrip(t *testing.T) {
	store, layout := testStore(t)
	ref := DocBlock("PDF Viewer", 3)
	body := []byte("# PdfView\n\nRenders pages.\n")
	if err := store.Write(ref, body, Metadata{Component: "pdf-viewer", Inputs: []string{"pdf-viewer/code/3/view"}}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	want := filepath.Join(layout.DocsDir, "pdf-viewer", "3.md")
	if store.Path(ref) != want {
		t.Fatalf("expected path %s, got %s", want, store.Path(ref))
	}
	result, err := store.Check(ref)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if result.State != StateReady || result.Edited {
		t.Fatalf("unexpected check result: %+v", result)
	}
	if result.Metadata.Producer != Producer || result.Metadata.Component != "pdf-viewer" {
		t.Fatalf("unexpected metadata: %+v", result.Metadata)
	}
	if !result.Metadata.CreatedAt.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("clock not applied: %v", result.Metadata.CreatedAt)
	}
	_, got, err := store.ReadDocument(ref)
	if err != nil {
		t.Fatalf("ReadDocument returned error: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("body mismatch:\nwant %q\ngot  %q", body, got)
	}
}

func TestCheckFlagsHandEditedDocuments(t *testing.T) {
	store, _ := testStore(t)
	ref := StatusLedger
	if err := store.Write(ref, []byte("- pdf-viewer: done\n"), Metadata{}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	path := store.Path(ref)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	edited := strings.Replace(string(data), "done", "in-progress", 1)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	result, err := store.Check(ref)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !result.Edited {
		t.Fatalf("expected edited flag after manual change")
	}
}

func TestReadDocumentWithoutFrontMatter(t *testing.T) {
	store, layout := testStore(t)
	path := filepath.Join(layout.Workspace, "STATUS.md")
	if err := os.WriteFile(path, []byte("# Status\r\n- [x] chat-panel\r\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	meta, body, err := store.ReadDocument(StatusLedger)
	if err != nil {
		t.Fatalf("ReadDocument returned error: %v", err)
	}
	if meta.ArtifactID != "" {
		t.Fatalf("expected empty metadata, got %+v", meta)
	}
	if string(body) != "# Status\n- [x] chat-panel\n" {
		t.Fatalf("unexpected body %q", body)
	}
	result, err := store.Check(StatusLedger)
	if !errors.Is(err, ErrMissingFrontMatter) || result.State != StateInvalid {
		t.Fatalf("expected invalid state, got %+v (%v)", result, err)
	}
}

func TestJSONRoundTripAndRemove(t *testing.T) {
	store, layout := testStore(t)
	ref := RunState("pdf-viewer")
	if err := store.Write(ref, []byte(`{"run_id":"abc","completed":["a","b"]}`), Metadata{Component: "pdf-viewer"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if want := filepath.Join(layout.ForgeDir, "state", "pdf-viewer.json"); store.Path(ref) != want {
		t.Fatalf("expected %s, got %s", want, store.Path(ref))
	}
	var payload struct {
		RunID     string   `json:"run_id"`
		Completed []string `json:"completed"`
	}
	meta, err := store.ReadJSON(ref, &payload)
	if err != nil {
		t.Fatalf("ReadJSON returned error: %v", err)
	}
	if meta.ArtifactID != ref.ID || payload.RunID != "abc" || len(payload.Completed) != 2 {
		t.Fatalf("unexpected decode: %+v %+v", meta, payload)
	}
	if err := store.Remove(ref); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	result, err := store.Check(ref)
	if err != nil || result.State != StateMissing {
		t.Fatalf("expected missing after remove, got %+v (%v)", result, err)
	}
	if err := store.Remove(ref); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
}

func TestCheckRejectsMismatchedIDs(t *testing.T) {
	store, _ := testStore(t)
	if err := store.Write(DocBlock("chat", 1), []byte("x"), Metadata{}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	other := DocBlock("chat", 1)
	other.ID = "something-else"
	result, err := store.Check(other)
	if err == nil || result.State != StateInvalid {
		t.Fatalf("expected invalid result, got %+v (%v)", result, err)
	}
}

func TestUnresolvablePaths(t *testing.T) {
	store := NewStore(Layout{Workspace: t.TempDir()})
	if err := store.Write(DocBlock("chat", 1), []byte("x"), Metadata{}); err == nil {
		t.Fatalf("expected error without docs dir")
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"PDF Viewer":     "pdf-viewer",
		" chat_panel ":   "chat-panel",
		"api/v2 gateway": "api-v2-gateway",
		"--odd--":        "odd",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
