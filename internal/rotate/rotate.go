package rotate

import (
	"context"
	"time"
)

// Runner is the transport that applies one password update on a single host.
// The SSH and SSM layers implement it; tests substitute fakes.
type Runner interface {
	SetPassword(ctx context.Context, host, account, secret string) *HostResult
}

// Reporter receives user-facing progress events as the batch runs.
type Reporter interface {
	HostDone(r *HostResult)
	Summary(s *Summary)
}

// discard is the default Reporter when none is configured.
type discard struct{}

func (discard) HostDone(*HostResult) {}
func (discard) Summary(*Summary)     {}

// Rotator walks the host list strictly in order, one host at a time,
// applying the password update through its Runner and accumulating a Summary.
type Rotator struct {
	runner   Runner
	reporter Reporter
	timeout  time.Duration
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithTimeout bounds each host's update with a deadline. Zero disables the
// per-host deadline; connection establishment is bounded by the transport.
func WithTimeout(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithReporter sets the progress sink.
func WithReporter(rep Reporter) Option {
	return func(r *Rotator) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

// New creates a Rotator with the given Runner and options.
func New(runner Runner, opts ...Option) *Rotator {
	r := &Rotator{
		runner:   runner,
		reporter: discard{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run updates account's password to secret on every host, in host-list order.
// All preconditions are checked before the first host is contacted; a
// violation returns a *ConfigError and no connections are attempted. One
// host's failure never aborts the batch: every host is attempted exactly
// once and the aggregate Summary is returned after the last one.
func (r *Rotator) Run(ctx context.Context, hosts []string, account, secret, confirm string) (*Summary, error) {
	switch {
	case len(hosts) == 0:
		return nil, &ConfigError{Msg: "no hosts to process"}
	case account == "":
		return nil, &ConfigError{Msg: "target account must not be empty"}
	case secret == "":
		return nil, &ConfigError{Msg: "new password must not be empty"}
	case secret != confirm:
		return nil, &ConfigError{Msg: "passwords do not match"}
	}

	summary := &Summary{}
	for _, host := range hosts {
		result := r.runOne(ctx, host, account, secret)
		if result.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.FailedHosts = append(summary.FailedHosts, host)
		}
		r.reporter.HostDone(result)
	}

	r.reporter.Summary(summary)
	return summary, nil
}

func (r *Rotator) runOne(ctx context.Context, host, account, secret string) *HostResult {
	hostCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		hostCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result := r.runner.SetPassword(hostCtx, host, account, secret)
	result.Host = host
	result.Duration = time.Since(start)

	// If the per-host deadline fired but the runner didn't set an error, record it.
	if hostCtx.Err() == context.DeadlineExceeded && result.Err == nil {
		result.Err = context.DeadlineExceeded
	}
	return result
}
