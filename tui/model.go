// Package tui shows a streaming session live in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

type EventMsg transcript.Event

type StateMsg stream.State

type DoneMsg struct {
	Result transcript.Result
	Err    error
}

type model struct {
	title        string
	viewport     viewport.Model
	spinner      spinner.Model
	builder      *TranscriptBuilder
	logEntries   []string
	state        stream.State
	events       int
	firstLatency float64
	done         bool
	err          error
	ready        bool
	showLog      bool
	cancel       context.CancelFunc
}

func initialModel(title string, cancel context.CancelFunc) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	return model{
		title:        title,
		spinner:      s,
		builder:      NewTranscriptBuilder(),
		state:        stream.Connecting,
		firstLatency: -1,
		cancel:       cancel,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "tab":
			m.showLog = !m.showLog
			m.viewport.SetContent(m.contentView())
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		verticalMarginHeight := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-verticalMarginHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(m.contentView())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - verticalMarginHeight
		}

	case EventMsg:
		ev := transcript.Event(msg)
		m.events++
		m.builder.Add(ev)
		if top, ok := ev.Top(); ok && m.firstLatency < 0 && strings.TrimSpace(top.Text) != "" {
			m.firstLatency = ev.Latency
		}
		m.logEntries = append(m.logEntries, logEntry(ev))
		m.viewport.SetContent(m.contentView())
		m.viewport.GotoBottom()

	case StateMsg:
		m.state = stream.State(msg)

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if msg.Result.FirstLatency >= 0 {
			m.firstLatency = msg.Result.FirstLatency
		}
		if msg.Err != nil {
			m.logEntries = append(m.logEntries, "ERR "+msg.Err.Error())
			m.viewport.SetContent(m.contentView())
		}

	case spinner.TickMsg:
		if !m.done {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.headerView(),
		m.viewport.View(),
		m.footerView(),
	)
}

var barStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFDF5")).
	Background(lipgloss.Color("#25A065")).
	Padding(0, 1)

func (m model) headerView() string {
	title := barStyle.Render(m.title)
	status := " " + m.statusView() + " "
	line := strings.Repeat(
		"─",
		max(0, m.viewport.Width-lipgloss.Width(title)-lipgloss.Width(status)),
	)
	return lipgloss.JoinHorizontal(lipgloss.Center, title, status, line)
}

func (m model) statusView() string {
	switch {
	case m.done && m.err != nil:
		return "failed"
	case m.done:
		return m.state.String()
	default:
		return m.spinner.View() + " " + m.state.String()
	}
}

func (m model) footerView() string {
	latency := "-"
	if m.firstLatency >= 0 {
		latency = fmt.Sprintf("%.3fs", m.firstLatency)
	}
	info := barStyle.Render(fmt.Sprintf(
		"%d events, first latency %s. q to quit, Tab for log",
		m.events,
		latency,
	))
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(info)))
	return lipgloss.JoinHorizontal(lipgloss.Center, line, info)
}

func (m model) contentView() string {
	if m.showLog {
		return m.logView()
	}
	return m.TranscriptView()
}

func (m model) TranscriptView() string {
	return m.builder.RenderLines()
}

func (m model) logView() string {
	var content strings.Builder
	for _, entry := range m.logEntries {
		content.WriteString(entry)
		content.WriteString("\n")
	}
	return content.String()
}

func logEntry(ev transcript.Event) string {
	text := ""
	if top, ok := ev.Top(); ok {
		text = top.Text
	}
	return fmt.Sprintf("%s %6.3fs %q", getLogPrefix(ev.IsPartial), ev.Latency, text)
}

func getLogPrefix(isPartial bool) string {
	if isPartial {
		return "TMP"
	}
	return "FIN"
}
