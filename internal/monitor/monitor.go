// Package monitor pings the service at a fixed interval and charts the round trips in the terminal.
package monitor

import (
	"context"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/utils/clock"

	"github.com/activetigger/atstress/pkg/client"
)

const (
	DefaultInterval = time.Second
	defaultWidth    = 80
	defaultHeight   = 24
)

type pingMsg struct {
	result  client.PingResult
	elapsed time.Duration
}

type tickMsg time.Time

// Model is the bubbletea model of the monitor.
type Model struct {
	ctx      context.Context
	api      client.Api
	interval time.Duration
	clock    clock.Clock

	results []client.PingResult
	width   int
	height  int
}

func NewModel(ctx context.Context, api client.Api, interval time.Duration, clk clock.Clock) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Model{
		ctx:      ctx,
		api:      api,
		interval: interval,
		clock:    clk,
		width:    defaultWidth,
		height:   defaultHeight,
	}
}

func (m *Model) Results() []client.PingResult {
	return m.results
}

func (m *Model) Init() tea.Cmd {
	return m.ping()
}

func (m *Model) ping() tea.Cmd {
	return func() tea.Msg {
		start := m.clock.Now()
		result := m.api.Ping(m.ctx)
		return pingMsg{result: result, elapsed: m.clock.Since(start)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case pingMsg:
		m.results = append(m.results, msg.result)
		// Pings start every interval, whatever their round trip.
		wait := m.interval - msg.elapsed
		if wait <= 0 {
			return m, m.ping()
		}
		return m, tea.Tick(wait, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})
	case tickMsg:
		return m, m.ping()
	}
	return m, nil
}

func (m *Model) View() string {
	return Render(m.results, m.interval, m.width, m.height) + "\n"
}

// Run shows the monitor until the user quits or ctx is cancelled, then prints a summary to out.
func Run(ctx context.Context, api client.Api, interval time.Duration, in io.Reader, out io.Writer) (Stats, error) {
	m := NewModel(ctx, api, interval, nil)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return Summarize(m.Results()), err
	}
	stats := Summarize(m.Results())
	stats.Print(out)
	return stats, nil
}
