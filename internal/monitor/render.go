package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/activetigger/atstress/pkg/client"
)

const (
	barChar = "█"
	// Lines taken by the header, the footer and the blank lines around the chart.
	reservedLines = 5
	labelWidth    = 10
	separator     = "| "
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// Render draws the most recent pings that fit in a width x height terminal, one bar per ping scaled to the
// largest observed round trip.
func Render(results []client.PingResult, interval time.Duration, width, height int) string {
	visible := results
	if rows := max(height-reservedLines, 1); len(visible) > rows {
		visible = visible[len(visible)-rows:]
	}
	stats := Summarize(results)
	scale := stats.Max
	if scale <= 0 {
		scale = time.Millisecond
	}
	barMax := max(width-labelWidth-len(separator), 1)

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("ActiveTigger API Monitor  (every %s, %d pings)", interval, len(results))))
	b.WriteString("\n\n")
	for _, r := range visible {
		if !r.Available {
			b.WriteString(fmt.Sprintf("%-*s%s%s\n", labelWidth, "    -- ms", separator, failStyle.Render("FAIL")))
			continue
		}
		bar := max(int(int64(barMax)*int64(r.RoundTrip)/int64(scale)), 1)
		label := fmt.Sprintf("%6d ms", r.RoundTrip.Milliseconds())
		b.WriteString(fmt.Sprintf("%-*s%s%s\n", labelWidth, label, separator, barStyle.Render(strings.Repeat(barChar, bar))))
	}
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(Footer(stats)))
	return b.String()
}

func Footer(stats Stats) string {
	if stats.Successes() == 0 {
		return fmt.Sprintf("No successful pings yet | errors %d/%d", stats.Errors, stats.Pings)
	}
	return fmt.Sprintf(
		"avg %d ms | min %d ms | max %d ms | errors %d/%d",
		stats.Avg.Milliseconds(), stats.Min.Milliseconds(), stats.Max.Milliseconds(), stats.Errors, stats.Pings,
	)
}
