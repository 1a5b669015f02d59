// Package browse is a read-only terminal browser for the corpus: a
// filterable list of every entry with a glamour-rendered preview.
package browse

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/workspace"
)

var (
	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)
)

// entry is one browsable corpus entry.
type entry struct {
	kind        string
	name        string
	source      string
	description string
	body        string
}

func (e entry) Title() string       { return fmt.Sprintf("[%s] %s", e.kind, e.name) }
func (e entry) Description() string { return fmt.Sprintf("%s · %s", e.source, e.description) }
func (e entry) FilterValue() string { return e.kind + " " + e.name + " " + e.description }

// entriesFromSnapshot flattens a snapshot into list items, commands
// first.
func entriesFromSnapshot(snap *workspace.Snapshot) []list.Item {
	var items []list.Item
	for _, c := range snap.Commands {
		items = append(items, entry{kind: workspace.KindCommand, name: c.Name, source: c.Source, description: c.Description, body: c.Body})
	}
	for _, sk := range snap.Skills {
		items = append(items, entry{kind: workspace.KindSkill, name: sk.Name, source: sk.Source, description: sk.Description, body: sk.Body})
	}
	for _, a := range snap.Agents {
		items = append(items, entry{kind: workspace.KindAgent, name: a.Name, source: a.Source, description: a.Description, body: a.Persona})
	}
	return items
}

type viewState int

const (
	stateList viewState = iota
	statePreview
)

type model struct {
	list     list.Model
	viewport viewport.Model
	state    viewState
	current  entry
	width    int
	height   int
}

func newModel(items []list.Item) model {
	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 0, 0)
	l.Title = "promptpack corpus"
	l.Styles.Title = titleStyle
	l.SetShowStatusBar(true)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "preview")),
		}
	}

	return model{list: l, state: stateList}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-1)
		m.viewport = viewport.New(msg.Width, msg.Height-2)
		if m.state == statePreview {
			m.viewport.SetContent(m.renderBody(m.current))
		}
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateList:
			// Let the list's filter input consume keys first.
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "enter":
				if item, ok := m.list.SelectedItem().(entry); ok {
					m.current = item
					m.state = statePreview
					m.viewport = viewport.New(m.width, m.height-2)
					m.viewport.SetContent(m.renderBody(item))
				}
				return m, nil
			}
		case statePreview:
			switch msg.String() {
			case "q", "esc":
				m.state = stateList
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.state == statePreview {
		header := badgeStyle.Render(m.current.kind) + titleStyle.Render(m.current.name)
		footer := helpStyle.Render("↑/↓ scroll · esc back · ctrl+c quit")
		return header + "\n" + m.viewport.View() + "\n" + footer
	}
	return m.list.View()
}

// renderBody runs the entry body through glamour, falling back to the
// raw Markdown if rendering fails.
func (m model) renderBody(e entry) string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return e.body
	}

	rendered, err := renderer.Render(e.body)
	if err != nil {
		return e.body
	}
	return strings.TrimRight(rendered, "\n") + "\n"
}

// Run opens the browser over a snapshot and blocks until the user quits.
func Run(ctx context.Context, snap *workspace.Snapshot) error {
	items := entriesFromSnapshot(snap)
	if len(items) == 0 {
		return errors.New("the corpus is empty; run 'promptpack init' to scaffold one")
	}

	program := tea.NewProgram(newModel(items), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return errors.Wrap(err, "browser failed")
}
