package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FetchFunc loads a fresh status report.
type FetchFunc func(ctx context.Context) (StatusReport, error)

type reportMsg struct {
	report StatusReport
	err    error
}

type refreshMsg struct{}

// watchModel is the bubbletea model of the live status view.
type watchModel struct {
	ctx      context.Context
	fetch    FetchFunc
	interval time.Duration
	renderer *StatusRenderer
	spinner  spinner.Model

	report   StatusReport
	err      error
	loaded   bool
	quitting bool
}

func newWatchModel(ctx context.Context, fetch FetchFunc, interval time.Duration) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))
	return &watchModel{
		ctx:      ctx,
		fetch:    fetch,
		interval: interval,
		renderer: NewStatusRenderer(io.Discard, false),
		spinner:  s,
	}
}

// Init implements tea.Model.
func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m *watchModel) load() tea.Cmd {
	return func() tea.Msg {
		report, err := m.fetch(m.ctx)
		return reportMsg{report: report, err: err}
	}
}

// Update implements tea.Model.
func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.load()
		}

	case reportMsg:
		m.loaded = true
		m.report, m.err = msg.report, msg.err
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshMsg{} })

	case refreshMsg:
		return m, m.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *watchModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	if !m.loaded {
		fmt.Fprintf(&b, "%s loading status\n", m.spinner.View())
		return b.String()
	}
	if m.err != nil {
		fmt.Fprintf(&b, "%s\n\n", m.renderer.styles.Error.Render("status failed: "+m.err.Error()))
	} else {
		b.WriteString(m.renderer.styles.Panel.Render(strings.TrimRight(m.renderer.format(m.report), "\n")))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(),
		m.renderer.styles.Dim.Render(fmt.Sprintf("refresh every %s, r to refresh now, q to quit", m.interval)))
	return b.String()
}

// Watch shows a live status view until the user quits or ctx is done.
func Watch(ctx context.Context, out io.Writer, fetch FetchFunc, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	p := tea.NewProgram(newWatchModel(ctx, fetch, interval),
		tea.WithContext(ctx),
		tea.WithOutput(out))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
