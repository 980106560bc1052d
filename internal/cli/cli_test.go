package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mcrossjr/fleetpass/internal/config"
	"github.com/mcrossjr/fleetpass/internal/rotate"
)

// newRotateFlagSet mirrors the rotate command's flag names so Changed()
// behaves as it would after a real parse.
func newRotateFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
	f.String("hosts-file", "servers.txt", "")
	f.Int("port", 0, "")
	f.Duration("timeout", 10*time.Second, "")
	f.Bool("insecure", false, "")
	f.String("region", "", "")
	return f
}

func saveRotateFlags(t *testing.T) {
	t.Helper()
	saved := rotateFlags
	t.Cleanup(func() { rotateFlags = saved })
}

func TestApplyConfigDefaults_FillsUnsetFlags(t *testing.T) {
	saveRotateFlags(t)
	rotateFlags.hostsFile = "servers.txt"
	rotateFlags.port = 0
	rotateFlags.timeout = 10 * time.Second

	cfg := &config.Config{
		HostsFile: "fleet.txt",
		Port:      2222,
		Timeout:   config.Duration{Duration: 30 * time.Second},
		Insecure:  true,
		Region:    "eu-west-1",
	}
	applyConfigDefaults(newRotateFlagSet(), cfg)

	if rotateFlags.hostsFile != "fleet.txt" {
		t.Errorf("expected hosts file from config, got %q", rotateFlags.hostsFile)
	}
	if rotateFlags.port != 2222 {
		t.Errorf("expected port from config, got %d", rotateFlags.port)
	}
	if rotateFlags.timeout != 30*time.Second {
		t.Errorf("expected timeout from config, got %s", rotateFlags.timeout)
	}
	if !rotateFlags.insecure {
		t.Error("expected insecure from config")
	}
	if rotateFlags.region != "eu-west-1" {
		t.Errorf("expected region from config, got %q", rotateFlags.region)
	}
}

func TestApplyConfigDefaults_FlagsWin(t *testing.T) {
	saveRotateFlags(t)
	rotateFlags.hostsFile = "cli.txt"
	rotateFlags.port = 2022

	f := newRotateFlagSet()
	if err := f.Set("hosts-file", "cli.txt"); err != nil {
		t.Fatal(err)
	}
	if err := f.Set("port", "2022"); err != nil {
		t.Fatal(err)
	}

	applyConfigDefaults(f, &config.Config{HostsFile: "fleet.txt", Port: 2222})

	if rotateFlags.hostsFile != "cli.txt" {
		t.Errorf("expected flag value kept, got %q", rotateFlags.hostsFile)
	}
	if rotateFlags.port != 2022 {
		t.Errorf("expected flag value kept, got %d", rotateFlags.port)
	}
}

func TestLoadHostList_MissingFileNonInteractive(t *testing.T) {
	saveRotateFlags(t)
	rotateFlags.hostsFile = filepath.Join(t.TempDir(), "servers.txt")

	var b strings.Builder
	_, done, err := loadHostList(&b, false)
	if done {
		t.Error("expected done=false")
	}
	var cfgErr *rotate.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadHostList_ReadsHosts(t *testing.T) {
	saveRotateFlags(t)
	path := filepath.Join(t.TempDir(), "servers.txt")
	if err := os.WriteFile(path, []byte("host1\n# comment\n\nhost2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rotateFlags.hostsFile = path

	var b strings.Builder
	hosts, done, err := loadHostList(&b, false)
	if err != nil || done {
		t.Fatalf("unexpected err=%v done=%v", err, done)
	}
	if len(hosts) != 2 || hosts[0] != "host1" || hosts[1] != "host2" {
		t.Errorf("unexpected hosts %v", hosts)
	}
}

func TestLoadHostList_EmptyFile(t *testing.T) {
	saveRotateFlags(t)
	path := filepath.Join(t.TempDir(), "servers.txt")
	if err := os.WriteFile(path, []byte("# only comments\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rotateFlags.hostsFile = path

	var b strings.Builder
	if _, _, err := loadHostList(&b, false); err == nil {
		t.Fatal("expected error for host list with no entries")
	}
}

func TestBuildRunner_InvalidVia(t *testing.T) {
	saveRotateFlags(t)
	rotateFlags.via = "teleport"

	_, err := buildRunner(&cobra.Command{}, &answers{}, nil)
	var cfgErr *rotate.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestBuildRunner_KeyConflictsWithSSM(t *testing.T) {
	saveRotateFlags(t)
	rotateFlags.via = "ssm"
	rotateFlags.keyFile = "/tmp/id_ed25519"

	if _, err := buildRunner(&cobra.Command{}, &answers{}, nil); err == nil {
		t.Fatal("expected error for --key with --via ssm")
	}
}

func TestBuildRunner_SSHValidates(t *testing.T) {
	saveRotateFlags(t)
	rotateFlags.via = "ssh"

	// No user and no auth mode: Validate must reject before any dial.
	if _, err := buildRunner(&cobra.Command{}, &answers{}, nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNotEmpty(t *testing.T) {
	if err := notEmpty("field")(" "); err == nil {
		t.Error("expected error for blank value")
	}
	if err := notEmpty("field")("value"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
