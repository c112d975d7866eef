// Package logbook keeps the human-readable delivery journal: one line per
// committed unit, status change or halt, so `forge status` can show what
// happened in earlier runs.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the kind of journal entry.
type Level string

const (
	LevelInfo   Level = "INFO"
	LevelCommit Level = "COMMIT"
	LevelStatus Level = "STATUS"
	LevelWarn   Level = "WARN"
	LevelError  Level = "ERROR"
)

// Logbook appends journal entries to a plain text file.
type Logbook struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.now = clock
		}
	}
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	book := &Logbook{path: path, now: time.Now}
	for _, opt := range opts {
		opt(book)
	}
	return book, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry scoped to a component ("-" when unscoped).
func (l *Logbook) Append(level Level, component, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	scope := strings.TrimSpace(component)
	if scope == "" {
		scope = "-"
	}
	line := fmt.Sprintf("%s %-6s %s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		scope,
		strings.Join(strings.Fields(message), " "),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries. A non-empty
// component keeps only entries scoped to it.
func (l *Logbook) Tail(maxLines int, component string) []string {
	if l == nil || maxLines <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if component != "" && entryComponent(line) != component {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}

func entryComponent(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}

// Info appends an informational entry.
func (l *Logbook) Info(component, format string, args ...any) {
	l.Append(LevelInfo, component, fmt.Sprintf(format, args...))
}

// Commit records a persisted work unit.
func (l *Logbook) Commit(component, unitID, header string) {
	l.Append(LevelCommit, component, unitID+" "+header)
}

// Status records a ledger transition.
func (l *Logbook) Status(component, from, to string) {
	l.Append(LevelStatus, component, from+" -> "+to)
}

// Warn appends a warning entry.
func (l *Logbook) Warn(component, format string, args ...any) {
	l.Append(LevelWarn, component, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(component, format string, args ...any) {
	l.Append(LevelError, component, fmt.Sprintf(format, args...))
}
