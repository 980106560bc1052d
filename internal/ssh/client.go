package ssh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	sshconfig "github.com/kevinburke/ssh_config"

	"github.com/mcrossjr/fleetpass/internal/pathutil"
)

// ClientConfig holds the run-wide connection settings. The auth mode is
// fixed for the whole batch: exactly one of Password or IdentityFile is
// set, and there is no fallback between modes.
type ClientConfig struct {
	// User is the SSH login name. Required.
	User string

	// Port overrides the SSH port. If zero, resolved from
	// ~/.ssh/config or defaults to 22.
	Port int

	// Password enables password authentication.
	Password string

	// IdentityFile enables private-key authentication with the key at
	// this path. Mutually exclusive with Password.
	IdentityFile string

	// ConnectTimeout bounds connection establishment (TCP dial plus
	// SSH handshake). Zero means no bound.
	ConnectTimeout time.Duration

	// AcceptUnknownHosts controls whether to accept hosts not in known_hosts.
	AcceptUnknownHosts bool

	// HostKeyCallback overrides the default host key verification.
	// If nil, knownhosts is used (with AcceptUnknownHosts controlling unknowns).
	HostKeyCallback ssh.HostKeyCallback
}

// Validate checks that exactly one auth mode is configured and that its
// prerequisites exist. Called once before the batch starts.
func (c ClientConfig) Validate() error {
	if c.User == "" {
		return fmt.Errorf("ssh username must not be empty")
	}
	switch {
	case c.Password != "" && c.IdentityFile != "":
		return fmt.Errorf("password and key authentication are mutually exclusive")
	case c.Password == "" && c.IdentityFile == "":
		return fmt.Errorf("either a password or a key file is required")
	}
	if c.IdentityFile != "" {
		path := pathutil.ExpandHome(c.IdentityFile)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("key file %s: %w", c.IdentityFile, err)
		}
	}
	return nil
}

// Client wraps an SSH connection to a single host.
type Client struct {
	host      string
	sshClient *ssh.Client
}

// Dial connects to the given host using the configured auth mode.
func Dial(ctx context.Context, host string, conf ClientConfig) (*Client, error) {
	addr, err := resolveAddr(host, conf)
	if err != nil {
		return nil, fmt.Errorf("resolve address for %s: %w", host, err)
	}

	authMethod, err := buildAuthMethod(conf)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := resolveHostKeyCallback(conf)
	if err != nil {
		return nil, fmt.Errorf("host key callback: %w", err)
	}

	sshConf := &ssh.ClientConfig{
		User:            conf.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         conf.ConnectTimeout,
	}

	if conf.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.ConnectTimeout)
		defer cancel()
	}

	d := net.Dialer{Timeout: conf.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// Perform SSH handshake with context cancellation.
	sshConn, chans, reqs, err := newClientConn(ctx, conn, addr, sshConf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return &Client{
		host:      host,
		sshClient: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// RunCommand executes a command on the connected host, feeding stdin to the
// remote process, and returns stdout, stderr, exit code, and any error.
// Passing the update payload through stdin keeps the secret off the remote
// command line and out of process listings.
func (c *Client) RunCommand(ctx context.Context, command string, stdin []byte) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf safeBuffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf
	if len(stdin) > 0 {
		session.Stdin = bytes.NewReader(stdin)
	}

	// Run the command, respecting context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Signal the session to close, which will cause Run to return.
		session.Signal(ssh.SIGKILL)
		session.Close()
		return nil, nil, -1, ctx.Err()
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return outBuf.Bytes(), errBuf.Bytes(), exitErr.ExitStatus(), nil
			}
			return outBuf.Bytes(), errBuf.Bytes(), -1, err
		}
		return outBuf.Bytes(), errBuf.Bytes(), 0, nil
	}
}

// Close closes the underlying SSH connection.
func (c *Client) Close() error {
	if c.sshClient == nil {
		return nil
	}
	return c.sshClient.Close()
}

// Host returns the hostname this client is connected to.
func (c *Client) Host() string {
	return c.host
}

// resolveAddr builds the dial address for a host. Hostname aliases and a
// port fallback are resolved from ~/.ssh/config; an explicit Port in conf
// always wins, then 22.
func resolveAddr(host string, conf ClientConfig) (string, error) {
	hostname := host
	if resolved := sshConfigGet(host, "Hostname"); resolved != "" {
		hostname = resolved
	}

	port := conf.Port
	if port == 0 {
		if portStr := sshConfigGet(host, "Port"); portStr != "" {
			fmt.Sscanf(portStr, "%d", &port)
		}
	}
	if port == 0 {
		port = 22
	}

	return net.JoinHostPort(hostname, fmt.Sprintf("%d", port)), nil
}

// sshConfigGet looks up a key for a host in the user's SSH config.
func sshConfigGet(host, key string) string {
	val, err := sshconfig.GetStrict(host, key)
	if err != nil {
		return ""
	}
	return val
}

// buildAuthMethod returns the single auth method for the run.
func buildAuthMethod(conf ClientConfig) (ssh.AuthMethod, error) {
	if conf.Password != "" {
		return ssh.Password(conf.Password), nil
	}

	path := pathutil.ExpandHome(conf.IdentityFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if _, ok := err.(*ssh.PassphraseMissingError); ok {
			return nil, fmt.Errorf("key file %s is passphrase-protected; decrypt it or use password auth", conf.IdentityFile)
		}
		return nil, fmt.Errorf("parse key file %s: %w", conf.IdentityFile, err)
	}
	return ssh.PublicKeys(signer), nil
}

// resolveHostKeyCallback builds the host key callback.
func resolveHostKeyCallback(conf ClientConfig) (ssh.HostKeyCallback, error) {
	if conf.HostKeyCallback != nil {
		return conf.HostKeyCallback, nil
	}

	if conf.AcceptUnknownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts file found at %s; use --insecure to skip host key verification", knownHostsPath)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// newClientConn performs the SSH handshake with context cancellation.
func newClientConn(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		conn  ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}

	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		done <- result{c, chans, reqs, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, nil, nil, ctx.Err()
	case r := <-done:
		return r.conn, r.chans, r.reqs, r.err
	}
}

// AuthModeLabel describes the configured auth mode for display.
func (c ClientConfig) AuthModeLabel() string {
	if c.IdentityFile != "" {
		return "key file " + strings.TrimSpace(c.IdentityFile)
	}
	return "password"
}
