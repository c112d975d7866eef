package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/forge/internal/delivery/resolver"
)

// candidateItem implements list.Item for one resolver candidate.
type candidateItem struct {
	candidate resolver.Candidate
}

func (i candidateItem) Title() string { return i.candidate.Name }

func (i candidateItem) Description() string {
	desc := fmt.Sprintf("score %.2f", i.candidate.Score)
	if i.candidate.Alias {
		desc += fmt.Sprintf(" via alias %q", i.candidate.MatchedOn)
	}
	if summary := strings.TrimSpace(i.candidate.Component.Summary); summary != "" {
		desc += " · " + summary
	}
	return desc
}

func (i candidateItem) FilterValue() string { return i.candidate.Name }

// chooser is the bubbletea model behind the interactive Confirmer. It ends
// with either a chosen candidate or a decline.
type chooser struct {
	requested string
	menu      list.Model
	single    bool
	chosen    *resolver.Candidate
	declined  bool
	width     int
}

func newChooser(requested string, candidates []resolver.Candidate, single bool) *chooser {
	items := make([]list.Item, len(candidates))
	for i, c := range candidates {
		items[i] = candidateItem{candidate: c}
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	if single {
		menu.Title = fmt.Sprintf("No component named %q. Did you mean:", requested)
	} else {
		menu.Title = fmt.Sprintf("%q matches several components", requested)
	}
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.Styles.Title = titleStyle
	return &chooser{requested: requested, menu: menu, single: single}
}

func (c *chooser) Init() tea.Cmd {
	return nil
}

func (c *chooser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.menu.SetSize(max(0, msg.Width-4), max(0, msg.Height-6))
		return c, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q", "n":
			c.declined = true
			return c, tea.Quit
		case "enter", "y":
			item, ok := c.menu.SelectedItem().(candidateItem)
			if !ok {
				c.declined = true
				return c, tea.Quit
			}
			choice := item.candidate
			c.chosen = &choice
			return c, tea.Quit
		}
	}
	var cmd tea.Cmd
	c.menu, cmd = c.menu.Update(msg)
	return c, cmd
}

func (c *chooser) View() string {
	if c.chosen != nil || c.declined {
		return ""
	}
	hint := "Enter → use component    Esc → cancel"
	if c.single {
		hint = "y / Enter → yes    n / Esc → no"
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, c.menu.View(), hintStyle.Render(hint)))
}

// result reports the outcome once the program has quit.
func (c *chooser) result() (resolver.Candidate, bool) {
	if c.declined || c.chosen == nil {
		return resolver.Candidate{}, false
	}
	return *c.chosen, true
}
