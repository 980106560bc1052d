package ssh

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapConnectError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint string
	}{
		{
			name:     "auth failure",
			err:      fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate"),
			wantHint: "username and password or key",
		},
		{
			name:     "connection refused",
			err:      fmt.Errorf("dial tcp 10.0.0.1:22: connect: connection refused"),
			wantHint: "SSH daemon",
		},
		{
			name:     "dns failure",
			err:      fmt.Errorf("dial tcp: lookup badhost: no such host"),
			wantHint: "hostname",
		},
		{
			name:     "missing known_hosts",
			err:      fmt.Errorf("no known_hosts file found at /root/.ssh/known_hosts"),
			wantHint: "--insecure",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapConnectError("web-01", tc.err)

			var connErr *ConnectError
			if !errors.As(wrapped, &connErr) {
				t.Fatalf("expected ConnectError, got %T: %v", wrapped, wrapped)
			}
			if connErr.Host != "web-01" {
				t.Errorf("expected host web-01, got %q", connErr.Host)
			}
			if !strings.Contains(connErr.Hint, tc.wantHint) {
				t.Errorf("expected hint containing %q, got %q", tc.wantHint, connErr.Hint)
			}
			if !errors.Is(wrapped, tc.err) {
				t.Error("wrapped error should unwrap to the original")
			}
		})
	}
}

func TestWrapConnectError_Passthrough(t *testing.T) {
	err := fmt.Errorf("some unrelated failure")
	if got := WrapConnectError("web-01", err); got != err {
		t.Errorf("expected unrecognized error returned as-is, got %v", got)
	}
}

func TestWrapConnectError_Nil(t *testing.T) {
	if got := WrapConnectError("web-01", nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
