// Package workspace finds the artifacts forge plans from: the design
// document, the status ledger and the readme. The walk covers the whole tree
// on purpose; these files are often excluded from version control, so
// exclusion rules are only honored when a caller explicitly asks for it.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/forge/internal/config"
)

// ErrMissingDesignDoc means no design artifact exists anywhere in the
// workspace. Planning must halt; there is nothing to resolve against.
var ErrMissingDesignDoc = errors.New("workspace: design document not found")

// MissingDesignDocError records where the indexer looked.
type MissingDesignDocError struct {
	Root     string
	Searched []string
}

func (e *MissingDesignDocError) Error() string {
	return fmt.Sprintf("%s under %s (looked for %s)", ErrMissingDesignDoc, e.Root, strings.Join(e.Searched, ", "))
}

func (e *MissingDesignDocError) Unwrap() error { return ErrMissingDesignDoc }

// IgnoreChecker reports whether version control excludes a path.
type IgnoreChecker interface {
	IsIgnored(ctx context.Context, path string) (bool, error)
}

// LocateOptions configures the walk.
type LocateOptions struct {
	Names    config.DocumentNames
	SkipDirs []string
	// IncludeIgnored bypasses version-control exclusion rules. It defaults to
	// true through DefaultLocateOptions; turning it off requires Ignore.
	IncludeIgnored bool
	Ignore         IgnoreChecker
}

// DefaultLocateOptions builds options from configuration with exclusion
// rules bypassed.
func DefaultLocateOptions(cfg *config.Config) LocateOptions {
	return LocateOptions{
		Names:          cfg.Project.Documents,
		SkipDirs:       cfg.Project.Index.SkipDirs,
		IncludeIgnored: true,
	}
}

// Documents lists the absolute paths of the located artifacts. Empty
// strings mean "not present".
type Documents struct {
	Root         string
	Readme       string
	Design       string
	StatusLedger string
}

// Locate walks root and picks the best match for every artifact kind. The
// shallowest match wins; ties go to the earlier configured name, then to
// the lexicographically smaller path.
func Locate(ctx context.Context, root string, opts LocateOptions) (Documents, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Documents{}, fmt.Errorf("workspace: resolve root: %w", err)
	}
	if !opts.IncludeIgnored && opts.Ignore == nil {
		return Documents{}, fmt.Errorf("workspace: exclusion rules requested without an ignore checker")
	}
	skip := make(map[string]struct{}, len(opts.SkipDirs)+1)
	skip[".git"] = struct{}{}
	for _, dir := range opts.SkipDirs {
		skip[dir] = struct{}{}
	}

	design := newMatcher(opts.Names.Design)
	status := newMatcher(opts.Names.Status)
	readme := newMatcher(opts.Names.Readme)

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != abs {
				if _, ok := skip[d.Name()]; ok {
					return filepath.SkipDir
				}
			}
			return nil
		}
		rel, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, m := range []*matcher{design, status, readme} {
			m.offer(rel)
		}
		return nil
	})
	if walkErr != nil {
		return Documents{}, fmt.Errorf("workspace: walk %s: %w", abs, walkErr)
	}

	docs := Documents{Root: abs}
	pick := func(m *matcher) (string, error) {
		for _, candidate := range m.ranked() {
			full := filepath.Join(abs, filepath.FromSlash(candidate.rel))
			if !opts.IncludeIgnored {
				ignored, err := opts.Ignore.IsIgnored(ctx, full)
				if err != nil {
					return "", fmt.Errorf("workspace: %w", err)
				}
				if ignored {
					continue
				}
			}
			return full, nil
		}
		return "", nil
	}
	if docs.Design, err = pick(design); err != nil {
		return Documents{}, err
	}
	if docs.Design == "" {
		return docs, &MissingDesignDocError{Root: abs, Searched: opts.Names.Design}
	}
	if docs.StatusLedger, err = pick(status); err != nil {
		return Documents{}, err
	}
	if docs.Readme, err = pick(readme); err != nil {
		return Documents{}, err
	}
	return docs, nil
}

// StatusLedgerPath returns the located ledger or, when none exists yet, the
// path a new one should be created at (first configured name, next to the
// design document).
func (d Documents) StatusLedgerPath(names config.DocumentNames) string {
	if d.StatusLedger != "" {
		return d.StatusLedger
	}
	name := "STATUS.md"
	if len(names.Status) > 0 {
		name = filepath.Base(names.Status[0])
	}
	if d.Design != "" {
		return filepath.Join(filepath.Dir(d.Design), name)
	}
	return filepath.Join(d.Root, name)
}

type candidate struct {
	rel       string
	depth     int
	nameIndex int
}

type matcher struct {
	names      []string
	candidates []candidate
}

func newMatcher(names []string) *matcher {
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		lowered = append(lowered, strings.ToLower(filepath.ToSlash(strings.TrimSpace(n))))
	}
	return &matcher{names: lowered}
}

// offer records rel when it matches a configured name. Names containing a
// slash match as a path suffix, bare names match the file name.
func (m *matcher) offer(rel string) {
	lower := strings.ToLower(rel)
	base := lower[strings.LastIndex(lower, "/")+1:]
	for idx, name := range m.names {
		if name == "" {
			continue
		}
		var ok bool
		if strings.Contains(name, "/") {
			ok = lower == name || strings.HasSuffix(lower, "/"+name)
		} else {
			ok = base == name
		}
		if ok {
			m.candidates = append(m.candidates, candidate{rel: rel, depth: strings.Count(rel, "/"), nameIndex: idx})
			return
		}
	}
}

func (m *matcher) ranked() []candidate {
	out := append([]candidate(nil), m.candidates...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		if out[i].nameIndex != out[j].nameIndex {
			return out[i].nameIndex < out[j].nameIndex
		}
		return out[i].rel < out[j].rel
	})
	return out
}
