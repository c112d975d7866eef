package status

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/kingrea/forge/internal/artifact"
	"github.com/kingrea/forge/internal/markdown"
)

// Tracker persists the ledger as a markdown list inside the status
// document. Lines that are not ledger entries are kept as written.
type Tracker struct {
	store *artifact.Store
	now   func() time.Time
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the clock used for UpdatedAt stamps.
func WithClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = clock
	}
}

// NewTracker builds a tracker writing through store.
func NewTracker(store *artifact.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the ledger location.
func (t *Tracker) Path() string {
	return t.store.Path(artifact.StatusLedger)
}

// Load reads the ledger. A missing document is an empty ledger.
func (t *Tracker) Load() (Ledger, error) {
	ledger, _, err := t.load()
	return ledger, err
}

// Advance applies a transition and persists the result. The document is
// replaced atomically, so a failed write leaves the previous ledger intact.
func (t *Tracker) Advance(component string, from, to State) (Ledger, error) {
	ledger, body, err := t.load()
	if err != nil {
		return Ledger{}, err
	}
	next, err := advanceAt(ledger, component, from, to, t.now())
	if err != nil {
		return ledger, err
	}
	if next.State(component) == ledger.State(component) {
		return ledger, nil
	}
	if err := t.save(next, body); err != nil {
		return ledger, err
	}
	return next, nil
}

func (t *Tracker) load() (Ledger, []byte, error) {
	_, body, err := t.store.ReadDocument(artifact.StatusLedger)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Ledger{}, nil, nil
		}
		return Ledger{}, nil, fmt.Errorf("status: read ledger: %w", err)
	}
	return ParseLedger(body), body, nil
}

func (t *Tracker) save(ledger Ledger, body []byte) error {
	content := renderLedger(ledger, body)
	if err := t.store.Write(artifact.StatusLedger, content, artifact.Metadata{}); err != nil {
		return fmt.Errorf("status: write ledger: %w", err)
	}
	return nil
}

var entryPattern = regexp.MustCompile(`^(.+?)\s*:\s*([A-Za-z_ -]+?)\s*(?:\(([^)]*)\))?$`)

// ParseLedger reads "- name: state" entries, optionally followed by a
// parenthesized RFC3339 timestamp. Task items ("- [x] name", "- [ ] name")
// without an explicit state map to done and not-started.
func ParseLedger(body []byte) Ledger {
	var records []Record
	seen := map[string]bool{}
	for _, block := range markdown.Blocks(body) {
		if block.Kind != markdown.KindListItem {
			continue
		}
		rec, ok := parseEntry(block)
		if !ok {
			continue
		}
		key := strings.ToLower(rec.Component)
		if seen[key] {
			continue
		}
		seen[key] = true
		records = append(records, rec)
	}
	return Ledger{records: records}
}

func parseEntry(block markdown.Block) (Record, bool) {
	text := strings.TrimSpace(block.Text)
	if m := entryPattern.FindStringSubmatch(text); m != nil {
		if state, err := ParseState(m[2]); err == nil {
			rec := Record{Component: strings.Trim(strings.TrimSpace(m[1]), "`*"), State: state, line: block.Line}
			if ts := strings.TrimSpace(m[3]); ts != "" {
				if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
					rec.UpdatedAt = parsed.UTC()
				}
			}
			return rec, rec.Component != ""
		}
	}
	switch block.Task {
	case markdown.TaskDone:
		return Record{Component: strings.Trim(text, "`*"), State: Done, line: block.Line}, text != ""
	case markdown.TaskOpen:
		return Record{Component: strings.Trim(text, "`*"), State: NotStarted, line: block.Line}, text != ""
	}
	return Record{}, false
}

// renderLedger rewrites the entry lines of body in place and appends new
// entries after the last existing one.
func renderLedger(ledger Ledger, body []byte) []byte {
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if len(body) == 0 {
		lines = []string{"# Status", ""}
	}
	lastEntry := -1
	var appended []string
	for _, rec := range ledger.records {
		if rec.line > 0 && rec.line <= len(lines) {
			lines[rec.line-1] = indentOf(lines[rec.line-1]) + formatEntry(rec)
			if rec.line-1 > lastEntry {
				lastEntry = rec.line - 1
			}
			continue
		}
		appended = append(appended, formatEntry(rec))
	}
	if len(appended) > 0 {
		if lastEntry < 0 {
			lines = append(lines, appended...)
		} else {
			tail := append(appended, lines[lastEntry+1:]...)
			lines = append(lines[:lastEntry+1], tail...)
		}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func formatEntry(rec Record) string {
	if rec.UpdatedAt.IsZero() {
		return fmt.Sprintf("- %s: %s", rec.Component, rec.State)
	}
	return fmt.Sprintf("- %s: %s (%s)", rec.Component, rec.State, rec.UpdatedAt.UTC().Format(time.RFC3339))
}

func indentOf(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
