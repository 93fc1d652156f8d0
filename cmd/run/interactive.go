package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/runtime"
	"github.com/wippyai/so-runtime/symtab"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	dataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// pageSize is the number of rows shown at once.
const pageSize = 20

type modelState int

const (
	stateBrowse modelState = iota
	stateDetail
)

type interactiveModel struct {
	reg      *hostcall.Registry
	filter   textinput.Model
	entries  []symtab.Entry
	visible  []symtab.Entry
	selected int
	offset   int
	state    modelState
}

func newInteractiveModel(rt *runtime.Runtime) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "filter: "
	ti.Placeholder = "symbol name"
	ti.Width = 40
	ti.Focus()

	entries := rt.Table().Entries()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	m := &interactiveModel{
		reg:     rt.Registry(),
		filter:  ti,
		entries: entries,
		state:   stateBrowse,
	}
	m.applyFilter()
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for _, e := range m.entries {
		if q == "" || strings.Contains(strings.ToLower(e.Name), q) {
			m.visible = append(m.visible, e)
		}
	}
	m.selected, m.offset = 0, 0
}

func (m *interactiveModel) move(delta int) {
	m.selected = max(0, min(len(m.visible)-1, m.selected+delta))
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+pageSize {
		m.offset = m.selected - pageSize + 1
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "up":
			m.move(-1)
			return m, nil
		case "down":
			m.move(1)
			return m, nil
		case "pgup":
			m.move(-pageSize)
			return m, nil
		case "pgdown":
			m.move(pageSize)
			return m, nil
		case "enter":
			if m.state == stateBrowse && len(m.visible) > 0 {
				m.state = stateDetail
			} else {
				m.state = stateBrowse
			}
			return m, nil
		case "esc":
			if m.state == stateDetail {
				m.state = stateBrowse
				return m, nil
			}
			return m, tea.Quit
		}
	}

	if m.state != stateBrowse {
		return m, nil
	}
	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.applyFilter()
	}
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Symbol Table"))
	fmt.Fprintf(&b, " %d of %d symbols\n\n", len(m.visible), len(m.entries))

	switch m.state {
	case stateBrowse:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		end := min(len(m.visible), m.offset+pageSize)
		for i := m.offset; i < end; i++ {
			line := m.formatEntry(m.visible[i])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if len(m.visible) == 0 {
			b.WriteString(errorStyle.Render("  no match"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("type to filter • ↑/↓ select • enter details • esc quit"))

	case stateDetail:
		b.WriteString(m.detail(m.visible[m.selected]))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter back • esc back"))
	}
	return b.String()
}

func (m *interactiveModel) formatEntry(e symtab.Entry) string {
	name := funcStyle.Render(e.Name)
	if e.Kind == symtab.KindData {
		name = dataStyle.Render(e.Name)
	}
	return fmt.Sprintf("0x%08x %s %s", e.Addr, name, typeStyle.Render(e.Sig))
}

func (m *interactiveModel) detail(e symtab.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", funcStyle.Render(e.Name), typeStyle.Render(e.Kind.String()))
	fmt.Fprintf(&b, "address   0x%08x\n", e.Addr)
	if e.Kind == symtab.KindFunc {
		fmt.Fprintf(&b, "signature %s\n", e.Sig)
		fmt.Fprintf(&b, "variadic  %v\n", e.Variadic)
		if h, ok := m.reg.Lookup(e.Addr); ok {
			fmt.Fprintf(&b, "host      %s\n", h.Name)
		}
		if t := m.reg.Target(e.Addr); t != e.Addr {
			fmt.Fprintf(&b, "redirect  0x%08x %s\n", t, m.reg.Name(t))
		}
	}
	return b.String()
}

func runInteractive(ctx context.Context, cfg runtime.Config) error {
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	p := tea.NewProgram(newInteractiveModel(rt), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
