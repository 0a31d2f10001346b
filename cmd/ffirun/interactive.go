package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ffiobject/guest"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
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

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputData
	stateShowResult
)

type interactiveModel struct {
	err      error
	rt       *guest.Runtime
	instance *guest.Instance
	logger   *zap.Logger
	opts     options
	funcs    []guest.Export
	input    textinput.Model
	result   roundTripResult
	selected int
	state    modelState
}

func newInteractiveModel(opts options, logger *zap.Logger) *interactiveModel {
	return &interactiveModel{
		opts:   opts,
		logger: logger,
		state:  stateSelectFunc,
	}
}

type loadedMsg struct {
	err   error
	rt    *guest.Runtime
	inst  *guest.Instance
	funcs []guest.Export
}

type callResultMsg struct {
	err    error
	result roundTripResult
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadGuest
}

func (m *interactiveModel) loadGuest() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.opts.WasmFile)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := guest.NewRuntime(ctx, m.opts.guestConfig(m.logger))
	if err != nil {
		return loadedMsg{err: err}
	}

	inst, err := rt.Instantiate(ctx, data)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	var funcs []guest.Export
	for _, e := range inst.Exports() {
		if e.AcceptsObject() {
			funcs = append(funcs, e)
		}
	}
	if len(funcs) == 0 {
		rt.Close(ctx)
		return loadedMsg{err: fmt.Errorf("guest exports no function taking an object pointer")}
	}

	return loadedMsg{rt: rt, inst: inst, funcs: funcs}
}

func (m *interactiveModel) close() {
	if m.rt != nil {
		m.rt.Close(context.Background())
		m.rt = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputData {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) > 0 {
					m.prepareInput()
					m.state = stateInputData
				}
				return m, nil

			case stateInputData:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.err = nil
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateInputData, stateShowResult:
				m.state = stateSelectFunc
				m.err = nil
				return m, nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.instance = msg.inst
		m.funcs = msg.funcs
		for i, f := range m.funcs {
			if f.Name == m.opts.Func {
				m.selected = i
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputData {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Prompt = "data: "
	ti.Placeholder = "bytes to send"
	ti.SetValue(m.opts.Data)
	ti.Width = 40
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.instance == nil {
		return callResultMsg{err: fmt.Errorf("guest not loaded")}
	}
	f := m.funcs[m.selected]
	res, err := roundTrip(context.Background(), m.instance, f.Name, []byte(m.input.Value()))
	return callResultMsg{result: res, err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.instance == nil {
		return "Loading guest..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("FFI Object Runner"))
	b.WriteString(" ")
	b.WriteString(m.opts.WasmFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call with a data array:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatFunc(f)))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputData:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			var out strings.Builder
			m.result.print(&out)
			b.WriteString(resultStyle.Render(strings.TrimRight(out.String(), "\n")))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("live boxes %d • arena blocks %d • enter continue • q quit",
			m.instance.Bridge().Live(), m.instance.Bridge().Arena().Blocks())))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f guest.Export) string {
	var results []string
	for _, r := range f.Results {
		results = append(results, typeStyle.Render(api.ValueTypeName(r)))
	}
	out := funcStyle.Render(f.Name) + "(" + typeStyle.Render("object") + ")"
	if len(results) > 0 {
		out += " -> " + strings.Join(results, ", ")
	}
	return out
}

func runInteractive(opts options, logger *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(opts, logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
