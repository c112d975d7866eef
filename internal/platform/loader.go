package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"
)

const goDefinitionFuncName = "PlatformDefinitions"

// RulesFile pairs parsed rules with their on-disk source.
type RulesFile struct {
	Rules Rules
	Path  string
}

// ParseRulesYAML decodes and validates a single rules payload.
func ParseRulesYAML(data []byte) (Rules, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Rules{}, fmt.Errorf("platform: rules payload is empty")
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("platform: decode rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules.Normalized(), nil
}

// LoadDir reads every *.yaml/*.yml and *.go rules file in dir. Missing
// directories are treated as "no plugins".
func LoadDir(dir string) ([]RulesFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("platform: read %s: %w", trimmed, err)
	}
	var files []RulesFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(trimmed, entry.Name())
		switch {
		case isYAMLFile(entry.Name()):
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("platform: read %s: %w", path, err)
			}
			rules, err := ParseRulesYAML(data)
			if err != nil {
				return nil, fmt.Errorf("platform: %s: %w", path, err)
			}
			files = append(files, RulesFile{Rules: rules, Path: filepath.Clean(path)})
		case filepath.Ext(entry.Name()) == ".go":
			goFiles, err := loadGoRulesFile(path)
			if err != nil {
				return nil, err
			}
			files = append(files, goFiles...)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// RegisterDir loads dir and installs every rules file into reg. Plugin
// rules override built-ins of the same name; two plugins claiming the same
// name is an error.
func RegisterDir(reg *Registry, dir string) error {
	if reg == nil {
		return nil
	}
	files, err := LoadDir(dir)
	if err != nil {
		return err
	}
	seen := make(map[string]string)
	for _, file := range files {
		name := file.Rules.Name
		if existing, ok := seen[name]; ok {
			return fmt.Errorf("platform: duplicate platform %s (%s and %s)", name, existing, file.Path)
		}
		seen[name] = file.Path
		if err := reg.Replace(name, file.Rules.Factory()); err != nil {
			return fmt.Errorf("platform: register %s from %s: %w", name, file.Path, err)
		}
	}
	return nil
}

func loadGoRulesFile(path string) ([]RulesFile, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("platform: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("platform: load stdlib symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("platform: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("platform: %s must define %s() ([]map[string]any, error): %w", path, goDefinitionFuncName, err)
	}
	defs, callErr := invokeDefinitionFunc(fnValue)
	if callErr != nil {
		return nil, fmt.Errorf("platform: %s: %w", path, callErr)
	}
	files := make([]RulesFile, 0, len(defs))
	for idx, raw := range defs {
		payload, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("platform: %s definition[%d]: %w", path, idx, err)
		}
		rules, err := ParseRulesYAML(payload)
		if err != nil {
			return nil, fmt.Errorf("platform: %s definition[%d]: %w", path, idx, err)
		}
		files = append(files, RulesFile{Rules: rules, Path: fmt.Sprintf("%s#%d", path, idx+1)})
	}
	return files, nil
}

func invokeDefinitionFunc(value reflect.Value) ([]map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goDefinitionFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return ([]map[string]any[, error])", goDefinitionFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned non-error second value", goDefinitionFuncName)
	}
	defsVal := results[0]
	if defs, ok := defsVal.Interface().([]map[string]any); ok {
		return defs, nil
	}
	if defsVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return []map[string]any", goDefinitionFuncName)
	}
	out := make([]map[string]any, defsVal.Len())
	for i := 0; i < defsVal.Len(); i++ {
		m, ok := defsVal.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not map[string]any", goDefinitionFuncName, i)
		}
		out[i] = m
	}
	return out, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
