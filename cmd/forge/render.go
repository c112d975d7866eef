package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/forge/internal/config"
	"github.com/kingrea/forge/internal/delivery"
	"github.com/kingrea/forge/internal/delivery/engine"
	"github.com/kingrea/forge/internal/status"
	"github.com/kingrea/forge/internal/workspace"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB347"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	stateStyles  = map[status.State]lipgloss.Style{
		status.NotStarted: lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		status.InProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB347")),
		status.Done:       lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77")),
	}
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func stepRows(steps []delivery.Step) [][]string {
	rows := make([][]string, 0, len(steps))
	for i, step := range steps {
		target := strings.Join(step.Unit.Payload.Paths, "\n")
		if step.Unit.Kind == delivery.KindDoc {
			target = "documents " + strings.Join(step.Unit.Documents, "\n")
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(step.Unit.Kind),
			step.Unit.Tier.String(),
			step.Commit.Header(),
			target,
		})
	}
	return rows
}

func renderBlockers(b *strings.Builder, blockers []string) {
	if len(blockers) == 0 {
		return
	}
	b.WriteString(warnStyle.Render("dependencies not done yet: "+strings.Join(blockers, ", ")) + "\n")
}

func renderPlan(prep engine.Preparation) string {
	var b strings.Builder
	component := prep.Component()
	title := fmt.Sprintf("Delivery plan for %s", component.Name)
	if !prep.Resolution.Exact {
		title += mutedStyle.Render(fmt.Sprintf(" (requested %q)", prep.Resolution.Requested))
	}
	b.WriteString(headingStyle.Render(title) + "\n")
	if component.Platform != "" {
		b.WriteString(mutedStyle.Render("platform "+component.Platform) + "\n")
	}
	renderBlockers(&b, prep.Plan.Blockers)
	if len(prep.Completed) > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d unit(s) already delivered by an interrupted run", len(prep.Completed))) + "\n")
	}
	if len(prep.Plan.Steps) == 0 {
		b.WriteString("nothing left to deliver\n")
		return b.String()
	}
	t := newTable("#", "kind", "tier", "commit", "files").Rows(stepRows(prep.Plan.Steps)...)
	b.WriteString(t.Render() + "\n")
	b.WriteString(mutedStyle.Render("fingerprint "+prep.Fingerprint) + "\n")
	return b.String()
}

func renderReport(report engine.Report, dryRun bool) string {
	var b strings.Builder
	heading := fmt.Sprintf("Delivered %d of %d unit(s) for %s", len(report.Delivered), len(report.Plan.Steps), report.Component)
	if dryRun {
		heading += " (dry run)"
	}
	b.WriteString(headingStyle.Render(heading) + "\n")
	renderBlockers(&b, report.Plan.Blockers)
	if len(report.Skipped) > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("resumed run %s, skipped %d delivered unit(s)", report.RunID, len(report.Skipped))) + "\n")
	}
	if len(report.Commits) > 0 {
		rows := make([][]string, 0, len(report.Commits))
		for _, c := range report.Commits {
			id := c.ID
			if len(id) > 12 {
				id = id[:12]
			}
			rows = append(rows, []string{id, c.Message.Header, strings.Join(c.Paths, "\n")})
		}
		b.WriteString(newTable("commit", "message", "files").Rows(rows...).Render() + "\n")
	}
	state := report.Ledger.State(report.Component)
	b.WriteString(fmt.Sprintf("%s is %s\n", report.Component, stateStyle(state).Render(string(state))))
	return b.String()
}

func stateStyle(state status.State) lipgloss.Style {
	if style, ok := stateStyles[state]; ok {
		return style
	}
	return lipgloss.NewStyle()
}

func renderLedger(ledger status.Ledger, path, component string) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Status") + mutedStyle.Render(" "+path) + "\n")
	var rows [][]string
	for _, rec := range ledger.Records() {
		if component != "" && !strings.EqualFold(rec.Component, component) {
			continue
		}
		updated := ""
		if !rec.UpdatedAt.IsZero() {
			updated = rec.UpdatedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{rec.Component, stateStyle(rec.State).Render(string(rec.State)), updated})
	}
	if len(rows) == 0 {
		if component != "" {
			state := ledger.State(component)
			b.WriteString(fmt.Sprintf("%s is %s\n", component, stateStyle(state).Render(string(state))))
		} else {
			b.WriteString("no components recorded yet\n")
		}
		return b.String()
	}
	b.WriteString(newTable("component", "state", "updated").Rows(rows...).Render() + "\n")
	return b.String()
}

func renderTail(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return headingStyle.Render("Recent activity") + "\n" + mutedStyle.Render(strings.Join(lines, "\n")) + "\n"
}

func renderDocuments(docs workspace.Documents, cfg *config.Config) string {
	var b strings.Builder
	rel := func(path string) string {
		if r, err := filepath.Rel(docs.Root, path); err == nil && !strings.HasPrefix(r, "..") {
			return filepath.ToSlash(r)
		}
		return path
	}
	b.WriteString(headingStyle.Render("Workspace") + " " + docs.Root + "\n")
	rows := [][]string{{"design", rel(docs.Design)}}
	if docs.StatusLedger != "" {
		rows = append(rows, []string{"status", rel(docs.StatusLedger)})
	} else {
		rows = append(rows, []string{"status", rel(docs.StatusLedgerPath(cfg.Project.Documents)) + mutedStyle.Render(" (created on first run)")})
	}
	if docs.Readme != "" {
		rows = append(rows, []string{"readme", rel(docs.Readme)})
	} else {
		rows = append(rows, []string{"readme", mutedStyle.Render("not found")})
	}
	rows = append(rows, []string{"docs", rel(cfg.DocsDir())})
	b.WriteString(newTable("artifact", "path").Rows(rows...).Render() + "\n")
	return b.String()
}
