// Package report renders per-host status lines and the final summary.
// Output is human-readable only; there is no machine-parseable format.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/mcrossjr/fleetpass/internal/rotate"
)

// Console implements rotate.Reporter on a writer, normally stdout.
type Console struct {
	out  io.Writer
	ok   *color.Color
	bad  *color.Color
	host *color.Color
}

// NewConsole creates a Console writing to w. Colors follow the fatih/color
// global TTY detection; they switch off automatically when piped.
func NewConsole(w io.Writer) *Console {
	return &Console{
		out:  w,
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		host: color.New(color.FgCyan),
	}
}

// HostDone writes one status line for a processed host.
func (c *Console) HostDone(r *rotate.HostResult) {
	if r.OK() {
		c.ok.Fprintf(c.out, "  ok   ")
		fmt.Fprintf(c.out, "%s (%s)\n", c.host.Sprint(r.Host), r.Duration.Round(time.Millisecond))
		return
	}
	c.bad.Fprintf(c.out, "  fail ")
	fmt.Fprintf(c.out, "%s: %s\n", c.host.Sprint(r.Host), r.Diagnostic())
}

// Summary writes the final aggregate block.
func (c *Console) Summary(s *rotate.Summary) {
	total := s.Total()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Password Update Summary")
	fmt.Fprintln(c.out, "-----------------------")
	c.ok.Fprintf(c.out, "Succeeded: %d/%d\n", s.Succeeded, total)
	if s.Failed > 0 {
		c.bad.Fprintf(c.out, "Failed:    %d/%d\n", s.Failed, total)
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "Hosts with errors:")
		for _, h := range s.FailedHosts {
			fmt.Fprintf(c.out, "  - %s\n", c.host.Sprint(h))
		}
	} else {
		fmt.Fprintf(c.out, "Failed:    0/%d\n", total)
	}
}
