package monitor

import (
	"fmt"
	"io"
	"time"

	"github.com/activetigger/atstress/pkg/client"
)

// Stats summarises the round trips of successful pings.
type Stats struct {
	Pings  int
	Errors int
	Avg    time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Successes is the number of pings that reached the service.
func (s Stats) Successes() int {
	return s.Pings - s.Errors
}

func Summarize(results []client.PingResult) Stats {
	stats := Stats{Pings: len(results)}
	var total time.Duration
	successes := 0
	for _, r := range results {
		if !r.Available {
			stats.Errors++
			continue
		}
		successes++
		if successes == 1 || r.RoundTrip < stats.Min {
			stats.Min = r.RoundTrip
		}
		if r.RoundTrip > stats.Max {
			stats.Max = r.RoundTrip
		}
		total += r.RoundTrip
	}
	if successes > 0 {
		stats.Avg = total / time.Duration(successes)
	}
	return stats
}

// Print writes the summary shown when the monitor exits.
func (s Stats) Print(out io.Writer) {
	fmt.Fprintln(out, "--- Monitor Summary ---")
	fmt.Fprintf(out, "Total pings: %d\n", s.Pings)
	if s.Successes() > 0 {
		fmt.Fprintf(out, "Avg: %d ms\n", s.Avg.Milliseconds())
		fmt.Fprintf(out, "Min: %d ms\n", s.Min.Milliseconds())
		fmt.Fprintf(out, "Max: %d ms\n", s.Max.Milliseconds())
	}
	fmt.Fprintf(out, "Errors: %d/%d\n", s.Errors, s.Pings)
}
