package ssh

import (
	"context"
	"strings"
	"testing"

	gossh "golang.org/x/crypto/ssh"

	"github.com/mcrossjr/fleetpass/internal/sshtest"
)

func TestUpdateCommand(t *testing.T) {
	tests := []struct {
		name      string
		conf      ClientConfig
		wantCmd   string
		wantStdin string
	}{
		{
			name:      "root skips sudo",
			conf:      ClientConfig{User: "root", Password: "rootpw"},
			wantCmd:   "chpasswd",
			wantStdin: "deploy:s3cret\n",
		},
		{
			name:      "password mode escalates with sudo -S",
			conf:      ClientConfig{User: "admin", Password: "adminpw"},
			wantCmd:   "sudo -S -p '' chpasswd",
			wantStdin: "adminpw\ndeploy:s3cret\n",
		},
		{
			name:      "key mode requires passwordless sudo",
			conf:      ClientConfig{User: "admin", IdentityFile: "/tmp/key"},
			wantCmd:   "sudo -n chpasswd",
			wantStdin: "deploy:s3cret\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, stdin := updateCommand(tc.conf, "deploy", "s3cret")
			if cmd != tc.wantCmd {
				t.Errorf("command = %q, want %q", cmd, tc.wantCmd)
			}
			if string(stdin) != tc.wantStdin {
				t.Errorf("stdin = %q, want %q", string(stdin), tc.wantStdin)
			}
		})
	}
}

func TestUpdateCommand_SecretNeverInCommand(t *testing.T) {
	confs := []ClientConfig{
		{User: "root", Password: "rootpw"},
		{User: "admin", Password: "adminpw"},
		{User: "admin", IdentityFile: "/tmp/key"},
	}
	for _, conf := range confs {
		cmd, _ := updateCommand(conf, "deploy", "s3cret-value")
		if strings.Contains(cmd, "s3cret-value") || strings.Contains(cmd, "deploy") {
			t.Errorf("secret or account leaked into command line: %q", cmd)
		}
	}
}

func TestSetPassword_Success(t *testing.T) {
	var gotCmd string
	var gotStdin []byte

	addr, cleanup := sshtest.Start(t, sshtest.WithPassword("adminpw"), sshtest.WithCmdHandler(func(cmd string, stdin []byte) (string, string, int) {
		gotCmd = cmd
		gotStdin = stdin
		return "", "", 0
	}))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(ClientConfig{
		User:            "admin",
		Port:            port,
		Password:        "adminpw",
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	})

	result := runner.SetPassword(context.Background(), host, "deploy", "s3cret")
	if !result.OK() {
		t.Fatalf("expected success, got exit=%d err=%v", result.ExitCode, result.Err)
	}
	if gotCmd != "sudo -S -p '' chpasswd" {
		t.Errorf("unexpected remote command %q", gotCmd)
	}
	if string(gotStdin) != "adminpw\ndeploy:s3cret\n" {
		t.Errorf("unexpected stdin payload %q", string(gotStdin))
	}
}

func TestSetPassword_RemoteFailure(t *testing.T) {
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword("adminpw"), sshtest.WithCmdHandler(func(cmd string, stdin []byte) (string, string, int) {
		return "", "chpasswd: cannot lock /etc/passwd\n", 1
	}))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(ClientConfig{
		User:            "admin",
		Port:            port,
		Password:        "adminpw",
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	})

	result := runner.SetPassword(context.Background(), host, "deploy", "s3cret")
	if result.OK() {
		t.Fatal("expected failure")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Diagnostic(), "cannot lock") {
		t.Errorf("expected stderr in diagnostic, got %q", result.Diagnostic())
	}
}

func TestSetPassword_ConnectFailure(t *testing.T) {
	// A server that accepts a different password: auth is rejected.
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword("other"))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(ClientConfig{
		User:            "admin",
		Port:            port,
		Password:        "adminpw",
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	})

	result := runner.SetPassword(context.Background(), host, "deploy", "s3cret")
	if result.OK() {
		t.Fatal("expected failure")
	}
	if result.Err == nil {
		t.Fatal("expected a connect error")
	}
	if !strings.Contains(result.Err.Error(), "connect") {
		t.Errorf("expected connect error, got %v", result.Err)
	}
}

func TestSetPassword_ConnectionRefused(t *testing.T) {
	// Grab a free port and close the listener so the dial is refused.
	addr, cleanup := sshtest.Start(t)
	cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(ClientConfig{
		User:            "admin",
		Port:            port,
		Password:        "adminpw",
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	})

	result := runner.SetPassword(context.Background(), host, "deploy", "s3cret")
	if result.Err == nil {
		t.Fatal("expected a connect error")
	}
}
