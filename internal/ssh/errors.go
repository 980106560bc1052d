package ssh

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectError wraps an SSH connection error with a user-friendly hint.
// It classifies the same as any other host failure; the hint only helps
// the operator read the failed-host list.
type ConnectError struct {
	Host string
	Err  error
	Hint string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v (hint: %s)", e.Host, e.Err, e.Hint)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WrapConnectError wraps an SSH connection error with a friendly hint.
// If the error doesn't match any known patterns, it's returned as-is.
func WrapConnectError(host string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	// SSH authentication failure.
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify the SSH username and password or key file",
		}
	}

	// Connection refused.
	if strings.Contains(msg, "connection refused") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify SSH daemon is running on the target host",
		}
	}

	// Connection timeout.
	if isTimeout(err) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "host did not answer within the connection timeout",
		}
	}

	// DNS resolution failure.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify hostname is correct",
		}
	}

	// Known hosts: missing entry.
	if strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("use --insecure or connect once with: ssh %s", host),
		}
	}

	// Known hosts: key mismatch.
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("remove old key with: ssh-keygen -R %s", host),
		}
	}

	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
