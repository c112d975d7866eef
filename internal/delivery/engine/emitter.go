package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kingrea/forge/internal/delivery"
	"github.com/kingrea/forge/internal/design"
)

// EmitRequest carries everything an emitter needs for one code unit.
type EmitRequest struct {
	Workspace string
	Component design.Component
	Unit      delivery.WorkUnit
	Commit    delivery.CommitDescriptor
}

// Emitter produces the files of one code unit and returns their
// workspace-relative paths.
type Emitter interface {
	Emit(ctx context.Context, req EmitRequest) ([]string, error)
}

// ScaffoldEmitter writes a placeholder at every payload path that does not
// exist yet. Existing files are left untouched.
type ScaffoldEmitter struct{}

func (ScaffoldEmitter) Emit(ctx context.Context, req EmitRequest) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Unit.Payload.Paths) == 0 {
		return nil, fmt.Errorf("engine: %s has no payload paths", req.Unit.ID)
	}
	paths := make([]string, 0, len(req.Unit.Payload.Paths))
	for _, rel := range req.Unit.Payload.Paths {
		target, err := workspacePath(req.Workspace, rel)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(target); err == nil {
			paths = append(paths, filepath.ToSlash(rel))
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("engine: stat %s: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("engine: create dir for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, scaffold(rel, req), 0o644); err != nil {
			return nil, fmt.Errorf("engine: write %s: %w", rel, err)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	return paths, nil
}

// CommandEmitter hands the unit prompt to an external code generator and
// waits for it to exit. The prompt is appended as the last argument and also
// exported as FORGE_PROMPT.
type CommandEmitter struct {
	Argv   []string
	Stdout io.Writer
	Stderr io.Writer
}

func (c CommandEmitter) Emit(ctx context.Context, req EmitRequest) ([]string, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("engine: emitter command is not configured")
	}
	prompt := Prompt(req)
	args := append(append([]string{}, c.Argv[1:]...), prompt)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	cmd.Dir = req.Workspace
	cmd.Env = append(os.Environ(),
		"FORGE_PROMPT="+prompt,
		"FORGE_UNIT="+req.Unit.ID,
		"FORGE_COMPONENT="+req.Unit.Component,
		"FORGE_PATHS="+strings.Join(req.Unit.Payload.Paths, string(os.PathListSeparator)),
	)
	var stderr bytes.Buffer
	cmd.Stdout = c.Stdout
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(c.Stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("engine: emitter %s for %s: %w (stderr: %s)",
			c.Argv[0], req.Unit.ID, err, strings.TrimSpace(stderr.String()))
	}
	var paths []string
	for _, rel := range req.Unit.Payload.Paths {
		target, err := workspacePath(req.Workspace, rel)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(target); err == nil {
			paths = append(paths, filepath.ToSlash(rel))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("engine: emitter %s wrote none of %s", c.Argv[0], strings.Join(req.Unit.Payload.Paths, ", "))
	}
	return paths, nil
}

// Prompt renders the instructions for one code unit.
func Prompt(req EmitRequest) string {
	var b strings.Builder
	unit := req.Unit
	fmt.Fprintf(&b, "Implement %s of component %s (tier %s).\n", unit.Title, unit.Component, unit.Tier)
	if summary := strings.TrimSpace(req.Component.Summary); summary != "" {
		fmt.Fprintf(&b, "Component summary: %s\n", summary)
	}
	if len(unit.Elements) > 0 {
		b.WriteString("Elements:\n")
		for _, el := range unit.Elements {
			fmt.Fprintf(&b, "- %s", el.Name)
			if el.Description != "" {
				fmt.Fprintf(&b, ": %s", el.Description)
			}
			if el.Signature != "" {
				fmt.Fprintf(&b, " [signature: %s]", el.Signature)
			}
			if len(el.DependsOn) > 0 {
				fmt.Fprintf(&b, " [depends on: %s]", strings.Join(el.DependsOn, ", "))
			}
			b.WriteByte('\n')
		}
	}
	if len(unit.Payload.Paths) > 0 {
		fmt.Fprintf(&b, "Write: %s\n", strings.Join(unit.Payload.Paths, ", "))
	}
	for _, note := range unit.Payload.Notes {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	fmt.Fprintf(&b, "The change will be committed as %q.\n", req.Commit.Header())
	return strings.TrimRight(b.String(), "\n")
}

func workspacePath(workspace, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("engine: payload path %s escapes the workspace", rel)
	}
	return filepath.Join(workspace, clean), nil
}

var commentPrefixes = map[string]string{
	".go": "//", ".ts": "//", ".tsx": "//", ".js": "//", ".jsx": "//",
	".swift": "//", ".kt": "//", ".java": "//", ".rs": "//", ".c": "//",
	".py": "#", ".sh": "#", ".yaml": "#", ".yml": "#", ".tf": "#", ".rb": "#",
	".sql": "--", ".lua": "--",
}

func scaffold(rel string, req EmitRequest) []byte {
	ext := strings.ToLower(filepath.Ext(rel))
	var lines []string
	lines = append(lines, fmt.Sprintf("%s: %s", req.Unit.Component, req.Unit.Title))
	for _, el := range req.Unit.Elements {
		line := el.Name
		if el.Description != "" {
			line += ": " + el.Description
		}
		lines = append(lines, line)
		if el.Signature != "" {
			lines = append(lines, "  "+el.Signature)
		}
	}
	lines = append(lines, req.Unit.Payload.Notes...)

	var b strings.Builder
	switch {
	case ext == ".css":
		b.WriteString("/*\n")
		for _, line := range lines {
			b.WriteString(" * " + line + "\n")
		}
		b.WriteString(" */\n")
	case ext == ".md":
		b.WriteString("# " + lines[0] + "\n")
		for _, line := range lines[1:] {
			b.WriteString("\n" + line + "\n")
		}
	default:
		prefix, ok := commentPrefixes[ext]
		if !ok {
			prefix = "#"
		}
		for _, line := range lines {
			b.WriteString(prefix + " " + line + "\n")
		}
	}
	return []byte(b.String())
}
