// internal/config/config.go
//
// This package handles configuration and the .forge directory structure.
// Every workspace that uses forge gets a .forge/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ForgeDir is the name of the directory we create in each workspace
	ForgeDir = ".forge"

	// DefaultThreshold is the minimum similarity for a non-exact component match.
	DefaultThreshold = 0.5

	defaultDocsDir      = "docs/components"
	defaultSummaryLimit = 72
)

const defaultProjectConfigYAML = `# forge workspace configuration
version: 1

# File names searched for anywhere in the workspace (case-insensitive).
# Files excluded by .gitignore are still found unless --respect-ignore is set.
documents:
  design: [ARCHITECTURE.md, DESIGN.md]
  status: [STATUS.md, PROGRESS.md]
  readme: [README.md]

index:
  skip_dirs: [.git]

resolver:
  threshold: 0.5

planner:
  include_tests: false

commits:
  types:
    models: feat
    core: feat
    modules: feat
    logic: feat
    integration: feat
    tests: test
    docs: docs
  summary_max: 72

docs:
  dir: docs/components

# emitter.mode is "scaffold" (placeholder files) or "command" (run argv with the unit prompt appended).
emitter:
  mode: scaffold
  # command: [opencode, run]

log:
  mode: production
`

// DocumentNames lists candidate file names for each indexed artifact.
type DocumentNames struct {
	Design []string `yaml:"design"`
	Status []string `yaml:"status"`
	Readme []string `yaml:"readme"`
}

// IndexConfig tunes the workspace walk.
type IndexConfig struct {
	SkipDirs []string `yaml:"skip_dirs"`
}

// ResolverConfig tunes component name matching.
type ResolverConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// PlannerConfig tunes work unit expansion.
type PlannerConfig struct {
	IncludeTests bool `yaml:"include_tests"`
}

// CommitConfig carries the commit message conventions.
type CommitConfig struct {
	Types      map[string]string `yaml:"types"`
	SummaryMax int               `yaml:"summary_max"`
	SignOff    bool              `yaml:"sign_off,omitempty"`
}

// DocsConfig locates the documentation area.
type DocsConfig struct {
	Dir string `yaml:"dir"`
}

// EmitterConfig selects how code units are produced.
type EmitterConfig struct {
	Mode    string   `yaml:"mode"`
	Command []string `yaml:"command,omitempty"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// ProjectConfig models .forge/config.yaml.
type ProjectConfig struct {
	Version   int            `yaml:"version"`
	Documents DocumentNames  `yaml:"documents"`
	Index     IndexConfig    `yaml:"index"`
	Resolver  ResolverConfig `yaml:"resolver"`
	Planner   PlannerConfig  `yaml:"planner"`
	Commits   CommitConfig   `yaml:"commits"`
	Docs      DocsConfig     `yaml:"docs"`
	Emitter   EmitterConfig  `yaml:"emitter"`
	Log       LogConfig      `yaml:"log"`
}

// Config holds the runtime configuration for forge.
type Config struct {
	// WorkspaceDir is the directory forge operates on
	WorkspaceDir string

	// ForgeProjectDir is WorkspaceDir/.forge
	ForgeProjectDir string

	Project ProjectConfig
}

// InitForgeDir creates the .forge directory structure in the given workspace.
//
// Structure created:
// .forge/
// ├── config.yaml
// ├── logs/       <- forge.log (structured) and delivery.log (logbook)
// ├── state/      <- resume checkpoints, one per component
// └── platforms/  <- optional platform rule plugins (*.yaml, *.go)
func InitForgeDir(workspaceDir string) error {
	forgeDir := filepath.Join(workspaceDir, ForgeDir)
	dirs := []string{
		filepath.Join(forgeDir, "logs"),
		filepath.Join(forgeDir, "state"),
		filepath.Join(forgeDir, "platforms"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(forgeDir, "config.yaml"))
}

// NewConfig creates a Config populated with workspace settings. A missing
// config.yaml yields the defaults.
func NewConfig(workspaceDir string) (*Config, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve workspace: %w", err)
	}
	cfg := &Config{
		WorkspaceDir:    abs,
		ForgeProjectDir: filepath.Join(abs, ForgeDir),
		Project:         defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns an in-memory configuration rooted at workspaceDir without
// touching the filesystem.
func Default(workspaceDir string) *Config {
	return &Config{
		WorkspaceDir:    workspaceDir,
		ForgeProjectDir: filepath.Join(workspaceDir, ForgeDir),
		Project:         defaultProjectConfig(),
	}
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.ForgeProjectDir, "logs")
}

// StateDir returns the path to the resume checkpoint directory
func (c *Config) StateDir() string {
	return filepath.Join(c.ForgeProjectDir, "state")
}

// PlatformsDir returns the directory scanned for platform rule plugins
func (c *Config) PlatformsDir() string {
	return filepath.Join(c.ForgeProjectDir, "platforms")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ForgeProjectDir, "config.yaml")
}

// DocsDir returns the absolute documentation area.
func (c *Config) DocsDir() string {
	return resolvePath(c.WorkspaceDir, c.Project.Docs.Dir)
}

// CommitType returns the conventional commit type configured for a tier or
// for documentation ("docs").
func (c *Config) CommitType(key string) string {
	if value, ok := c.Project.Commits.Types[key]; ok && value != "" {
		return value
	}
	return defaultCommitTypes()[key]
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.normalize()
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Documents: DocumentNames{
			Design: []string{"ARCHITECTURE.md", "DESIGN.md"},
			Status: []string{"STATUS.md", "PROGRESS.md"},
			Readme: []string{"README.md"},
		},
		Index:    IndexConfig{SkipDirs: []string{".git"}},
		Resolver: ResolverConfig{Threshold: DefaultThreshold},
		Commits: CommitConfig{
			Types:      defaultCommitTypes(),
			SummaryMax: defaultSummaryLimit,
		},
		Docs:    DocsConfig{Dir: defaultDocsDir},
		Emitter: EmitterConfig{Mode: "scaffold"},
		Log:     LogConfig{Mode: "production"},
	}
}

func defaultCommitTypes() map[string]string {
	return map[string]string{
		"models":      "feat",
		"core":        "feat",
		"modules":     "feat",
		"logic":       "feat",
		"integration": "feat",
		"tests":       "test",
		"docs":        "docs",
	}
}

func (pc *ProjectConfig) applyDefaults() {
	defaults := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = 1
	}
	if len(pc.Documents.Design) == 0 {
		pc.Documents.Design = defaults.Documents.Design
	}
	if len(pc.Documents.Status) == 0 {
		pc.Documents.Status = defaults.Documents.Status
	}
	if len(pc.Documents.Readme) == 0 {
		pc.Documents.Readme = defaults.Documents.Readme
	}
	if len(pc.Index.SkipDirs) == 0 {
		pc.Index.SkipDirs = defaults.Index.SkipDirs
	}
	if pc.Resolver.Threshold == 0 {
		pc.Resolver.Threshold = DefaultThreshold
	}
	if pc.Commits.Types == nil {
		pc.Commits.Types = map[string]string{}
	}
	for key, value := range defaults.Commits.Types {
		if strings.TrimSpace(pc.Commits.Types[key]) == "" {
			pc.Commits.Types[key] = value
		}
	}
	if pc.Commits.SummaryMax == 0 {
		pc.Commits.SummaryMax = defaultSummaryLimit
	}
	if strings.TrimSpace(pc.Docs.Dir) == "" {
		pc.Docs.Dir = defaultDocsDir
	}
	if strings.TrimSpace(pc.Emitter.Mode) == "" {
		pc.Emitter.Mode = "scaffold"
	}
	if strings.TrimSpace(pc.Log.Mode) == "" {
		pc.Log.Mode = "production"
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Documents.Design = trimAll(pc.Documents.Design)
	pc.Documents.Status = trimAll(pc.Documents.Status)
	pc.Documents.Readme = trimAll(pc.Documents.Readme)
	pc.Index.SkipDirs = trimAll(pc.Index.SkipDirs)
	types := make(map[string]string, len(pc.Commits.Types))
	for key, value := range pc.Commits.Types {
		types[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	pc.Commits.Types = types
	pc.Docs.Dir = strings.TrimSpace(pc.Docs.Dir)
	pc.Emitter.Mode = strings.ToLower(strings.TrimSpace(pc.Emitter.Mode))
	pc.Emitter.Command = trimAll(pc.Emitter.Command)
	pc.Log.Mode = strings.ToLower(strings.TrimSpace(pc.Log.Mode))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Documents.Design) == 0 {
		return fmt.Errorf("documents.design needs at least one file name")
	}
	if pc.Resolver.Threshold <= 0 || pc.Resolver.Threshold > 1 {
		return fmt.Errorf("resolver.threshold must be in (0, 1], got %v", pc.Resolver.Threshold)
	}
	if pc.Commits.SummaryMax < 20 {
		return fmt.Errorf("commits.summary_max must be >= 20")
	}
	switch pc.Emitter.Mode {
	case "scaffold":
	case "command":
		if len(pc.Emitter.Command) == 0 {
			return fmt.Errorf("emitter.command is required when emitter.mode is command")
		}
	default:
		return fmt.Errorf("emitter.mode must be 'scaffold' or 'command'")
	}
	return nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

// Save persists the current project configuration back to config.yaml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.normalize()
	c.Project.applyDefaults()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.ForgeProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure forge dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
