package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mcrossjr/fleetpass/internal/config"
	"github.com/mcrossjr/fleetpass/internal/report"
	"github.com/mcrossjr/fleetpass/internal/rotate"
	"github.com/mcrossjr/fleetpass/internal/ssh"
	"github.com/mcrossjr/fleetpass/internal/ssm"
)

var rotateFlags struct {
	hostsFile string
	user      string
	keyFile   string
	port      int
	timeout   time.Duration
	insecure  bool
	via       string
	region    string
	yes       bool
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Change one account's password on every host in the host list",
	Args:  cobra.NoArgs,
	RunE:  runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)

	f := rotateCmd.Flags()
	f.StringVarP(&rotateFlags.hostsFile, "hosts-file", "f", "servers.txt", "path to the host list file")
	f.StringVarP(&rotateFlags.user, "user", "u", "", "SSH username")
	f.StringVarP(&rotateFlags.keyFile, "key", "i", "", "SSH private key file (enables key authentication)")
	f.IntVarP(&rotateFlags.port, "port", "p", 0, "SSH port (default: from ~/.ssh/config, then 22)")
	f.DurationVar(&rotateFlags.timeout, "timeout", 10*time.Second, "connection-establishment timeout per host")
	f.BoolVar(&rotateFlags.insecure, "insecure", false, "skip host key verification")
	f.StringVar(&rotateFlags.via, "via", "ssh", "execution backend: ssh or ssm")
	f.StringVar(&rotateFlags.region, "region", "", "AWS region for --via ssm")
	f.BoolVarP(&rotateFlags.yes, "yes", "y", false, "skip the confirmation prompt")
}

func runRotate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return rotate.Configf("%v", err)
	}
	applyConfigDefaults(cmd.Flags(), cfg)

	out := cmd.OutOrStdout()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	hosts, done, err := loadHostList(out, interactive)
	if err != nil {
		return cancelOr(out, err)
	}
	if done {
		return nil
	}

	a, err := collectAnswers(interactive)
	if err != nil {
		return cancelOr(out, err)
	}

	runner, err := buildRunner(cmd, a, hosts)
	if err != nil {
		return cancelOr(out, err)
	}

	if rotateFlags.via == "ssh" {
		label := ssh.ClientConfig{Password: a.password, IdentityFile: a.keyFile}.AuthModeLabel()
		fmt.Fprintf(out, "\nConnecting as %s (%s auth).\n", a.user, label)
	}
	fmt.Fprintf(out, "\nUpdating the password for %q on %d host(s) from %s:\n", a.account, len(hosts), rotateFlags.hostsFile)
	for _, h := range hosts {
		fmt.Fprintf(out, "  - %s\n", h)
	}
	if !rotateFlags.yes {
		var proceed bool
		err := ask(huh.NewConfirm().
			Title("Proceed?").
			Value(&proceed))
		if err != nil {
			return cancelOr(out, err)
		}
		if !proceed {
			fmt.Fprintln(out, "Operation cancelled.")
			return nil
		}
	}
	fmt.Fprintln(out)

	rot := rotate.New(runner,
		rotate.WithReporter(report.NewConsole(out)),
	)
	if _, err := rot.Run(cmd.Context(), hosts, a.account, a.secret, a.confirm); err != nil {
		return err
	}
	return nil
}

// applyConfigDefaults backfills flag values from the config file for flags
// the user did not set on the command line. Flags always win.
func applyConfigDefaults(flags *pflag.FlagSet, cfg *config.Config) {
	if !flags.Changed("hosts-file") && cfg.HostsFile != "" {
		rotateFlags.hostsFile = cfg.HostsFile
	}
	if !flags.Changed("port") && cfg.Port != 0 {
		rotateFlags.port = cfg.Port
	}
	if !flags.Changed("timeout") && cfg.Timeout.Duration != 0 {
		rotateFlags.timeout = cfg.Timeout.Duration
	}
	if !flags.Changed("insecure") && cfg.Insecure {
		rotateFlags.insecure = true
	}
	if !flags.Changed("region") && cfg.Region != "" {
		rotateFlags.region = cfg.Region
	}
}

// loadHostList reads the host list. When the file is missing and the
// session is interactive, it offers to write a starter template; accepting
// writes the file and ends the run cleanly (done=true) so the user can
// fill it in.
func loadHostList(out io.Writer, interactive bool) (hosts []string, done bool, err error) {
	path := rotateFlags.hostsFile

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if !interactive {
			return nil, false, rotate.Configf("hosts file %s not found", path)
		}
		var create bool
		if err := ask(huh.NewConfirm().
			Title(fmt.Sprintf("%s not found. Create a starter template?", path)).
			Value(&create)); err != nil {
			return nil, false, err
		}
		if !create {
			return nil, false, rotate.Configf("hosts file %s not found", path)
		}
		if err := config.WriteTemplate(path); err != nil {
			return nil, false, rotate.Configf("%v", err)
		}
		fmt.Fprintf(out, "Wrote %s. Add your hosts to it and run fleetpass rotate again.\n", path)
		return nil, true, nil
	}

	hosts, err = config.LoadHosts(path)
	if err != nil {
		return nil, false, rotate.Configf("%v", err)
	}
	if len(hosts) == 0 {
		return nil, false, rotate.Configf("no hosts found in %s", path)
	}
	return hosts, false, nil
}

// buildRunner constructs the backend selected by --via.
func buildRunner(cmd *cobra.Command, a *answers, hosts []string) (rotate.Runner, error) {
	switch rotateFlags.via {
	case "ssh":
		conf := ssh.ClientConfig{
			User:               a.user,
			Port:               rotateFlags.port,
			Password:           a.password,
			IdentityFile:       a.keyFile,
			ConnectTimeout:     rotateFlags.timeout,
			AcceptUnknownHosts: rotateFlags.insecure,
		}
		if err := conf.Validate(); err != nil {
			return nil, rotate.Configf("%v", err)
		}
		return ssh.NewRunner(conf), nil
	case "ssm":
		if rotateFlags.keyFile != "" {
			return nil, rotate.Configf("--key does not apply to --via ssm")
		}
		r, err := ssm.NewRunner(cmd.Context(), rotateFlags.region)
		if err != nil {
			return nil, rotate.Configf("%v", err)
		}
		if err := r.Prepare(cmd.Context(), hosts); err != nil {
			return nil, rotate.Configf("%v", err)
		}
		return r, nil
	default:
		return nil, rotate.Configf("invalid --via %q: must be ssh or ssm", rotateFlags.via)
	}
}

// cancelOr maps a prompt abort (Esc / Ctrl+C inside a form) to a clean
// cancellation; everything else passes through.
func cancelOr(out io.Writer, err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Fprintln(out, "Operation cancelled.")
		return nil
	}
	return err
}
