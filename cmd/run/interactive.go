package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/script-modules/binding"
	"github.com/wippyai/script-modules/enginetest"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	moduleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	exportStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type explorerModel struct {
	err        error
	bind       *binding.Binding
	cleanup    func()
	tableFile  string
	dirPath    string
	nodeCompat bool
	names      []string
	input      textinput.Model
	required   string
	result     []string
	selected   int
	state      modelState
}

type modelState int

const (
	stateSelectModule modelState = iota
	stateInputSpecifier
	stateShowResult
)

func newExplorerModel(tableFile, dirPath string, nodeCompat bool) *explorerModel {
	return &explorerModel{
		tableFile:  tableFile,
		dirPath:    dirPath,
		nodeCompat: nodeCompat,
		state:      stateSelectModule,
	}
}

type loadedMsg struct {
	err     error
	bind    *binding.Binding
	names   []string
	cleanup func()
}

type requireResultMsg struct {
	err       error
	specifier string
	lines     []string
}

func (m *explorerModel) Init() tea.Cmd {
	return m.loadModules
}

func (m *explorerModel) loadModules() tea.Msg {
	ctx := context.Background()

	reg, names, cleanup, err := buildRegistry(ctx, m.tableFile, m.dirPath)
	if err != nil {
		cleanup()
		return loadedMsg{err: err}
	}

	eng := enginetest.New()
	bind := binding.Attach(eng, reg, nil, &binding.Options{NodeCompat: m.nodeCompat})
	return loadedMsg{bind: bind, names: names, cleanup: cleanup}
}

func (m *explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.cleanup != nil {
				m.cleanup()
			}
			return m, tea.Quit

		case "q":
			if m.state != stateInputSpecifier {
				if m.cleanup != nil {
					m.cleanup()
				}
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectModule && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectModule && m.selected < len(m.names)-1 {
				m.selected++
			}

		case "t":
			if m.state == stateSelectModule && m.bind != nil {
				ti := textinput.New()
				ti.Prompt = "specifier: "
				ti.Placeholder = "wippy:env or ./main.js"
				ti.Width = 48
				ti.Focus()
				m.input = ti
				m.state = stateInputSpecifier
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectModule:
				if len(m.names) > 0 {
					return m, m.requireModule(m.names[m.selected])
				}

			case stateInputSpecifier:
				return m, m.requireModule(m.input.Value())

			case stateShowResult:
				m.state = stateSelectModule
				m.result = nil
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputSpecifier:
				m.state = stateSelectModule
			case stateShowResult:
				m.state = stateSelectModule
				m.result = nil
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.bind = msg.bind
		m.names = msg.names
		m.cleanup = msg.cleanup

	case requireResultMsg:
		m.required = msg.specifier
		m.result = msg.lines
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputSpecifier {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *explorerModel) requireModule(entry string) tea.Cmd {
	return func() tea.Msg {
		spec, err := parseEntry(entry)
		if err != nil {
			return requireResultMsg{err: err, specifier: entry}
		}
		ns, err := m.bind.Require(context.Background(), spec)
		if err != nil {
			return requireResultMsg{err: err, specifier: entry}
		}
		return requireResultMsg{specifier: entry, lines: formatNamespace(ns)}
	}
}

func (m *explorerModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.bind == nil {
		return "Loading modules..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Module Explorer"))
	b.WriteString(" ")
	b.WriteString(m.sourceLabel())
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectModule:
		if len(m.names) == 0 {
			b.WriteString("No modules registered.\n\n")
			b.WriteString(helpStyle.Render("t type specifier • q quit"))
			break
		}
		b.WriteString("Select a module to require:\n\n")
		for i, name := range m.names {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + name))
			} else {
				b.WriteString(cursor + moduleStyle.Render(name))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter require • t type specifier • q quit"))

	case stateInputSpecifier:
		b.WriteString("Require a specifier:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter require • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Exports of %s:\n\n", moduleStyle.Render(m.required)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			for _, line := range m.result {
				name, value, found := strings.Cut(line, " = ")
				if found {
					b.WriteString(exportStyle.Render(name))
					b.WriteString(" = ")
					b.WriteString(resultStyle.Render(value))
				} else {
					b.WriteString(resultStyle.Render(line))
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *explorerModel) sourceLabel() string {
	switch {
	case m.dirPath != "" && m.tableFile != "":
		return m.dirPath + " + " + m.tableFile
	case m.dirPath != "":
		return m.dirPath
	default:
		return m.tableFile
	}
}

func runInteractive(tableFile, dirPath string, nodeCompat bool) error {
	p := tea.NewProgram(newExplorerModel(tableFile, dirPath, nodeCompat), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
