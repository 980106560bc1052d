package ssh

import (
	"context"
	"fmt"

	"github.com/mcrossjr/fleetpass/internal/rotate"
)

// Runner applies password updates over one-shot SSH connections.
// It implements rotate.Runner.
type Runner struct {
	conf ClientConfig
}

// NewRunner creates a Runner with the run-wide connection settings.
// conf must have been validated before the batch starts.
func NewRunner(conf ClientConfig) *Runner {
	return &Runner{conf: conf}
}

// SetPassword connects to host, runs the chpasswd update for account, and
// returns the outcome. The connection is closed before returning; nothing
// is cached across hosts.
func (r *Runner) SetPassword(ctx context.Context, host, account, secret string) *rotate.HostResult {
	result := &rotate.HostResult{Host: host}

	client, err := Dial(ctx, host, r.conf)
	if err != nil {
		result.ExitCode = -1
		result.Err = WrapConnectError(host, fmt.Errorf("connect: %w", err))
		return result
	}
	defer client.Close()

	command, stdin := updateCommand(r.conf, account, secret)
	_, stderr, exitCode, err := client.RunCommand(ctx, command, stdin)
	result.Stderr = stderr
	result.ExitCode = exitCode
	result.Err = err
	return result
}

// updateCommand builds the remote chpasswd invocation and its stdin payload.
// chpasswd reads "account:password" lines from stdin, so the new secret
// never appears in the command string or the remote argument list. When
// escalating with sudo -S, the login password is prepended to the payload
// and consumed by sudo before chpasswd reads the rest.
func updateCommand(conf ClientConfig, account, secret string) (command string, stdin []byte) {
	entry := account + ":" + secret + "\n"

	switch {
	case conf.User == "root":
		return "chpasswd", []byte(entry)
	case conf.Password != "":
		return "sudo -S -p '' chpasswd", []byte(conf.Password + "\n" + entry)
	default:
		// Key auth carries no password to feed sudo; requires NOPASSWD.
		return "sudo -n chpasswd", []byte(entry)
	}
}
