package monitor

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/activetigger/atstress/pkg/client"
	"github.com/activetigger/atstress/pkg/client/fake"
)

func ok(ms int) client.PingResult {
	return client.PingResult{Available: true, StatusCode: 200, RoundTrip: time.Duration(ms) * time.Millisecond}
}

func failed() client.PingResult {
	return client.PingResult{}
}

func TestSummarize(t *testing.T) {
	tests := map[string]struct {
		results  []client.PingResult
		expected Stats
	}{
		"empty": {
			expected: Stats{},
		},
		"only failures": {
			results:  []client.PingResult{failed(), failed()},
			expected: Stats{Pings: 2, Errors: 2},
		},
		"mixed": {
			results: []client.PingResult{ok(30), failed(), ok(10), ok(20)},
			expected: Stats{
				Pings:  4,
				Errors: 1,
				Avg:    20 * time.Millisecond,
				Min:    10 * time.Millisecond,
				Max:    30 * time.Millisecond,
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Summarize(tc.results))
		})
	}
}

func TestStats_Print(t *testing.T) {
	out := &bytes.Buffer{}
	Summarize([]client.PingResult{ok(10), failed(), ok(30)}).Print(out)
	assert.Equal(t, "--- Monitor Summary ---\nTotal pings: 3\nAvg: 20 ms\nMin: 10 ms\nMax: 30 ms\nErrors: 1/3\n", out.String())

	out.Reset()
	Summarize([]client.PingResult{failed()}).Print(out)
	assert.Equal(t, "--- Monitor Summary ---\nTotal pings: 1\nErrors: 1/1\n", out.String())
}

func TestRender_BarsScaledToMax(t *testing.T) {
	width := 40
	view := Render([]client.PingResult{ok(50), ok(100), failed()}, time.Second, width, 24)
	lines := strings.Split(view, "\n")

	assert.Contains(t, lines[0], "(every 1s, 3 pings)")
	barMax := width - labelWidth - len(separator)
	assert.Equal(t, barMax/2, strings.Count(lines[2], barChar))
	assert.Contains(t, lines[2], "50 ms")
	assert.Equal(t, barMax, strings.Count(lines[3], barChar))
	assert.Contains(t, lines[4], "-- ms")
	assert.Contains(t, lines[4], "FAIL")
	assert.Contains(t, view, "avg 75 ms | min 50 ms | max 100 ms | errors 1/3")
}

func TestRender_KeepsMostRecent(t *testing.T) {
	var results []client.PingResult
	for i := 1; i <= 20; i++ {
		results = append(results, ok(i))
	}
	view := Render(results, time.Second, 80, 8)
	bars := 0
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, barChar) {
			bars++
		}
	}
	assert.Equal(t, 3, bars)
	assert.Contains(t, view, "    20 ms")
	assert.NotContains(t, view, "    17 ms")
}

func TestRender_TinyTerminal(t *testing.T) {
	view := Render([]client.PingResult{ok(5), ok(10)}, time.Second, 1, 1)
	assert.Contains(t, view, "10 ms")
	assert.Contains(t, view, barChar)
}

func TestFooter_NoSuccess(t *testing.T) {
	assert.Equal(t, "No successful pings yet | errors 2/2", Footer(Stats{Pings: 2, Errors: 2}))
}

func TestModel_Update(t *testing.T) {
	service := fake.NewService("admin", "pw")
	service.PingLatency = 12 * time.Millisecond
	m := NewModel(context.Background(), service, time.Second, clocktesting.NewFakeClock(time.Now()))

	msg := m.Init()()
	_, cmd := m.Update(msg)
	require.Len(t, m.Results(), 1)
	assert.True(t, m.Results()[0].Available)
	assert.NotNil(t, cmd)

	_, cmd = m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())
	assert.Len(t, m.Results(), 2)
	assert.Equal(t, 2, service.CallCount(fake.Ping))

	m.Update(tea.WindowSizeMsg{Width: 50, Height: 10})
	assert.Contains(t, m.View(), "2 pings")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
