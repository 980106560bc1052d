package rotate

import (
	"fmt"
	"strings"
	"time"
)

// HostResult holds the outcome of one password update attempt on a single host.
type HostResult struct {
	Host     string
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error // connection/timeout errors
}

// OK reports whether the update succeeded on this host.
func (r *HostResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Diagnostic returns the failure text for display: the transport error if
// present, otherwise trimmed stderr, otherwise the exit code.
func (r *HostResult) Diagnostic() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if s := strings.TrimSpace(string(r.Stderr)); s != "" {
		return s
	}
	return fmt.Sprintf("remote command exited with code %d", r.ExitCode)
}

// Summary aggregates results across the whole batch.
type Summary struct {
	Succeeded   int
	Failed      int
	FailedHosts []string // encounter order
}

// Total returns the number of hosts processed.
func (s *Summary) Total() int {
	return s.Succeeded + s.Failed
}
