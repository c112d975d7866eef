package design

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const sampleDesign = `# Reader Architecture

Some intro text.

## Components

### PDF Viewer

Aliases: pdf, document viewer
Platform: Web
Depends on: chat-panel
Summary: Renders PDF documents inside the reader.

#### Elements

- model: Document data (kind: model)
- view: PdfView renders pages (kind: view; depends: model; stateful; signature: Render(doc Document, page int) (Image, error); uses: canvas, worker; example: view.Render(doc, 1); errors: ErrPageRange)
- toolbar: zoom buttons (fast)
  - kind: component
  - public

### chat-panel

Lets readers ask questions.

## Component: search

Platform: ops

### Structure

- index: builds the index (private; signature: Build(docs []Doc) error)

## Appendix

- not: an element
`

func TestParseCatalog(t *testing.T) {
	doc, err := Parse([]byte(sampleDesign))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := doc.Names(); !reflect.DeepEqual(got, []string{"PDF Viewer", "chat-panel", "search"}) {
		t.Fatalf("unexpected names: %v", got)
	}
	viewer := doc.Components[0]
	if !reflect.DeepEqual(viewer.Aliases, []string{"pdf", "document viewer"}) {
		t.Fatalf("unexpected aliases: %#v", viewer.Aliases)
	}
	if viewer.Platform != "web" || viewer.Summary != "Renders PDF documents inside the reader." {
		t.Fatalf("unexpected component fields: %+v", viewer)
	}
	if !reflect.DeepEqual(viewer.DependsOn, []string{"chat-panel"}) {
		t.Fatalf("unexpected component deps: %#v", viewer.DependsOn)
	}
	if len(viewer.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %+v", viewer.Elements)
	}
	model := viewer.Elements[0]
	if model.Name != "model" || model.Kind != "model" || model.Description != "Document data" || model.Public {
		t.Fatalf("unexpected model element: %+v", model)
	}
	view := viewer.Elements[1]
	want := Element{
		Name:        "view",
		Kind:        "view",
		Description: "PdfView renders pages",
		DependsOn:   []string{"model"},
		Public:      true,
		Stateful:    true,
		Signature:   "Render(doc Document, page int) (Image, error)",
		Uses:        []string{"canvas", "worker"},
		Example:     "view.Render(doc, 1)",
		Errors:      []string{"ErrPageRange"},
	}
	if !reflect.DeepEqual(view, want) {
		t.Fatalf("unexpected view element:\nwant %+v\ngot  %+v", want, view)
	}
	toolbar := viewer.Elements[2]
	if toolbar.Description != "zoom buttons (fast)" || toolbar.Kind != "component" || !toolbar.Public {
		t.Fatalf("unexpected toolbar element: %+v", toolbar)
	}

	chat := doc.Components[1]
	if chat.Summary != "Lets readers ask questions." || len(chat.Elements) != 0 {
		t.Fatalf("unexpected chat component: %+v", chat)
	}
	search := doc.Components[2]
	if search.Platform != "ops" || len(search.Elements) != 1 {
		t.Fatalf("unexpected search component: %+v", search)
	}
	if search.Elements[0].Public || search.Elements[0].Signature != "Build(docs []Doc) error" {
		t.Fatalf("private element should stay private: %+v", search.Elements[0])
	}
}

func TestNestedSignatureMakesElementPublic(t *testing.T) {
	source := `## Components

### shell

#### Elements

- layout: page frame
  - kind: core
  - signature: Layout(children Node) Node
- secret: internal helper
  - private
  - signature: helper() error
- draft: not ready (private)
  - signature: Draft() error
`
	doc, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	els := doc.Components[0].Elements
	if len(els) != 3 {
		t.Fatalf("expected 3 elements, got %+v", els)
	}
	if !els[0].Public || els[0].Signature != "Layout(children Node) Node" || els[0].Kind != "core" {
		t.Fatalf("nested signature should make layout public: %+v", els[0])
	}
	if els[1].Public {
		t.Fatalf("private sub-bullet should win over signature: %+v", els[1])
	}
	if els[2].Public {
		t.Fatalf("inline private should win over nested signature: %+v", els[2])
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	doc, err := Parse([]byte(sampleDesign))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if c, ok := doc.Lookup("  pdf viewer "); !ok || c.Name != "PDF Viewer" {
		t.Fatalf("expected lookup hit, got %+v %v", c, ok)
	}
	if _, ok := doc.Lookup("pdf"); ok {
		t.Fatalf("aliases must not match exactly")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	source := "## Components\n\n### chat\n\n### Chat\n"
	_, err := Parse([]byte(source))
	if !errors.Is(err, ErrDuplicateComponent) {
		t.Fatalf("expected ErrDuplicateComponent, got %v", err)
	}
	var dup *DuplicateComponentError
	if !errors.As(err, &dup) || dup.FirstLine != 3 || dup.Line != 5 {
		t.Fatalf("unexpected duplicate error: %#v", err)
	}
}

func TestLoaderReloadsChangedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ARCHITECTURE.md")
	if err := os.WriteFile(path, []byte("## Component: one\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loader := NewLoader()
	first, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	again, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if first != again {
		t.Fatalf("expected cached document on unchanged file")
	}

	touched := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, touched, touched); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	same, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if same != first {
		t.Fatalf("identical content should reuse the parsed document")
	}

	if err := os.WriteFile(path, []byte("## Component: two\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	later := time.Now().Add(4 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	changed, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if changed == first || changed.Names()[0] != "two" || changed.Path != path {
		t.Fatalf("expected reparsed document, got %+v", changed)
	}
}
