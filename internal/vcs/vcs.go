// Package vcs persists delivery steps as commits. Repository drives the git
// CLI against one working tree (every command runs as "git -C <dir>");
// Recorder keeps commits in memory for dry runs and tests.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Message is the rendered form of a commit descriptor.
type Message struct {
	Header string
	Body   string
}

// String joins header and body the way git expects them.
func (m Message) String() string {
	body := strings.TrimSpace(m.Body)
	if body == "" {
		return m.Header
	}
	return m.Header + "\n\n" + body
}

// Commit describes one persisted change.
type Commit struct {
	ID      string
	Message Message
	Paths   []string
}

// Committer persists one atomic change made of the given workspace paths.
type Committer interface {
	Commit(ctx context.Context, msg Message, paths []string) (Commit, error)
}

// ErrNothingToCommit is returned when the staged paths carry no change.
var ErrNothingToCommit = errors.New("vcs: nothing to commit")

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir     string
	signOff bool
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string, signOff bool) *Repository {
	return &Repository{dir: dir, signOff: signOff}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns stdout.
// Stderr is folded into the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// IsRepository reports whether dir sits inside a git working tree.
func (r *Repository) IsRepository(ctx context.Context) bool {
	out, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// IsIgnored reports whether git's exclusion rules cover path.
func (r *Repository) IsIgnored(ctx context.Context, path string) (bool, error) {
	rel, err := r.relative(path)
	if err != nil {
		return false, err
	}
	command := exec.CommandContext(ctx, "git", "-C", r.dir, "check-ignore", "-q", "--", rel)
	err = command.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git check-ignore %s: %w", rel, err)
}

// Commit stages exactly the given paths and records one commit. Ignored
// paths are force-added so documentation excluded from history still lands
// in the change that introduced it.
func (r *Repository) Commit(ctx context.Context, msg Message, paths []string) (Commit, error) {
	if strings.TrimSpace(msg.Header) == "" {
		return Commit{}, fmt.Errorf("vcs: commit header is required")
	}
	if len(paths) == 0 {
		return Commit{}, fmt.Errorf("vcs: %q has no paths to commit", msg.Header)
	}
	rels := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := r.relative(p)
		if err != nil {
			return Commit{}, err
		}
		rels = append(rels, rel)
	}
	if _, err := r.Run(ctx, append([]string{"add", "--force", "--"}, rels...)...); err != nil {
		return Commit{}, err
	}
	staged, err := r.Run(ctx, append([]string{"diff", "--cached", "--name-only", "--"}, rels...)...)
	if err != nil {
		return Commit{}, err
	}
	if strings.TrimSpace(staged) == "" {
		return Commit{}, fmt.Errorf("%w: %s", ErrNothingToCommit, msg.Header)
	}
	args := []string{"commit", "--quiet", "-m", msg.String()}
	if r.signOff {
		args = append(args, "--signoff")
	}
	args = append(args, "--")
	args = append(args, rels...)
	if _, err := r.Run(ctx, args...); err != nil {
		return Commit{}, err
	}
	head, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return Commit{}, err
	}
	return Commit{ID: strings.TrimSpace(head), Message: msg, Paths: rels}, nil
}

func (r *Repository) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return "", fmt.Errorf("vcs: %s is outside %s: %w", path, r.dir, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("vcs: %s is outside %s", path, r.dir)
	}
	return filepath.ToSlash(rel), nil
}

// Recorder is an in-memory Committer.
type Recorder struct {
	Commits []Commit
	// FailAt makes the n-th commit (1-based) fail; zero disables.
	FailAt int
}

// Commit appends the change to the recorder.
func (r *Recorder) Commit(ctx context.Context, msg Message, paths []string) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}
	if r.FailAt > 0 && len(r.Commits)+1 == r.FailAt {
		return Commit{}, fmt.Errorf("vcs: recorder configured to fail commit %d", r.FailAt)
	}
	c := Commit{
		ID:      fmt.Sprintf("dry-%03d", len(r.Commits)+1),
		Message: msg,
		Paths:   append([]string(nil), paths...),
	}
	r.Commits = append(r.Commits, c)
	return c, nil
}
