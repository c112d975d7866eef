package platform

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kingrea/forge/internal/delivery"
	"github.com/kingrea/forge/internal/design"
)

func codeUnit(tier delivery.Tier, elements ...string) delivery.WorkUnit {
	unit := delivery.WorkUnit{ID: "pdf-viewer/code/x", Component: "PDF Viewer", Kind: delivery.KindCode, Tier: tier, Title: "unit"}
	for _, name := range elements {
		unit.Elements = append(unit.Elements, design.Element{Name: name})
	}
	return unit
}

func TestDefaultRegistryProducesPaths(t *testing.T) {
	reg := DefaultRegistry()
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"generic", "ops", "ui", "web"}) {
		t.Fatalf("unexpected built-ins: %v", got)
	}
	producer, err := reg.Resolve("Web")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	payload, err := producer.Produce(Request{Component: "PDF Viewer", Unit: codeUnit(delivery.TierModules, "page-view")})
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	if payload.Platform != "web" {
		t.Fatalf("unexpected platform %q", payload.Platform)
	}
	if !reflect.DeepEqual(payload.Paths, []string{"src/pdf-viewer/components/PageView.tsx"}) {
		t.Fatalf("unexpected paths: %v", payload.Paths)
	}
	if len(payload.Notes) != 1 || !strings.Contains(payload.Notes[0], "PDFViewer") {
		t.Fatalf("unexpected notes: %v", payload.Notes)
	}
}

func TestBuiltinPathsAreDistinctPerElement(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range reg.Names() {
		producer, err := reg.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve %s: %v", name, err)
		}
		for tier := delivery.TierModels; tier <= delivery.TierTests; tier++ {
			layout, err := producer.Produce(Request{Component: "shell-app", Unit: codeUnit(tier, "layout")})
			if err != nil {
				t.Fatalf("%s %s: %v", name, tier, err)
			}
			shell, err := producer.Produce(Request{Component: "shell-app", Unit: codeUnit(tier, "shell")})
			if err != nil {
				t.Fatalf("%s %s: %v", name, tier, err)
			}
			for _, p := range layout.Paths {
				for _, q := range shell.Paths {
					if p == q {
						t.Fatalf("%s %s: elements share path %s", name, tier, p)
					}
				}
			}
		}
	}
}

func TestResolveEmptyNameUsesGeneric(t *testing.T) {
	producer, err := DefaultRegistry().Resolve("  ")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if producer.Name() != Generic {
		t.Fatalf("expected generic producer, got %s", producer.Name())
	}
	payload, err := producer.Produce(Request{Component: "chat", Unit: codeUnit(delivery.TierCore)})
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	if !reflect.DeepEqual(payload.Paths, []string{"src/chat/unit"}) {
		t.Fatalf("element-less unit should use its title: %v", payload.Paths)
	}
}

func TestResolveUnknownPlatform(t *testing.T) {
	if _, err := DefaultRegistry().Resolve("mainframe"); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := DefaultRegistry()
	if err := reg.Register("web", Rules{Name: "web"}.Factory()); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestDocUnitsOnlyCarryNotes(t *testing.T) {
	producer, err := DefaultRegistry().Resolve("web")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	unit := codeUnit(delivery.TierModules, "page-view")
	unit.Kind = delivery.KindDoc
	payload, err := producer.Produce(Request{Component: "chat", Unit: unit})
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	if len(payload.Paths) != 0 || len(payload.Notes) != 1 {
		t.Fatalf("unexpected doc payload: %+v", payload)
	}
}

const yamlRules = `name: Mobile
description: React Native
paths:
  Models: ["app/{component}/types/{Element}.ts"]
notes:
  docs: ["Screenshots welcome"]
`

const goRules = `package main

func PlatformDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"name": "web",
			"paths": map[string]any{
				"models": []string{"web/{component}/{element}.go"},
			},
		},
	}, nil
}
`

func TestRegisterDirLoadsYAMLAndGoRules(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mobile.yaml"), []byte(yamlRules), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "web.go"), []byte(goRules), 0o644); err != nil {
		t.Fatalf("write go: %v", err)
	}
	reg := DefaultRegistry()
	if err := RegisterDir(reg, dir); err != nil {
		t.Fatalf("RegisterDir returned error: %v", err)
	}
	mobile, err := reg.Resolve("mobile")
	if err != nil {
		t.Fatalf("Resolve mobile: %v", err)
	}
	payload, err := mobile.Produce(Request{Component: "chat", Unit: codeUnit(delivery.TierModels, "message")})
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	if !reflect.DeepEqual(payload.Paths, []string{"app/chat/types/Message.ts"}) {
		t.Fatalf("unexpected mobile paths: %v", payload.Paths)
	}
	web, err := reg.Resolve("web")
	if err != nil {
		t.Fatalf("Resolve web: %v", err)
	}
	payload, err = web.Produce(Request{Component: "chat", Unit: codeUnit(delivery.TierModels, "message")})
	if err != nil {
		t.Fatalf("Produce returned error: %v", err)
	}
	if !reflect.DeepEqual(payload.Paths, []string{"web/chat/message.go"}) {
		t.Fatalf("go rules should override built-in web: %v", payload.Paths)
	}
}

func TestLoadDirRejectsUnknownTier(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("name: bad\npaths:\n  widgets: [x]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected unknown tier error")
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	files, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(files) != 0 {
		t.Fatalf("expected no files and no error, got %v %v", files, err)
	}
}

func TestGoRulesMissingFunction(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected error for missing PlatformDefinitions")
	}
}
