package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/mcrossjr/fleetpass/internal/rotate"
)

// answers holds everything collected for one run: connection credentials
// and the account whose password changes. Secrets are only ever gathered
// through masked prompts, never from flags, so they stay out of shell
// history and process listings.
type answers struct {
	user     string
	password string
	keyFile  string
	account  string
	secret   string
	confirm  string
}

// collectAnswers fills in whatever the flags did not provide. The prompts
// need a terminal; a non-interactive session fails up front instead of
// hanging on a hidden prompt.
func collectAnswers(interactive bool) (*answers, error) {
	if !interactive {
		return nil, rotate.Configf("an interactive terminal is required to enter credentials")
	}

	a := &answers{user: rotateFlags.user, keyFile: rotateFlags.keyFile}

	if rotateFlags.via == "ssh" {
		if err := a.collectSSHAuth(); err != nil {
			return nil, err
		}
	}
	return a, a.collectTarget()
}

func (a *answers) collectSSHAuth() error {
	if a.user == "" {
		err := ask(huh.NewInput().
			Title("SSH username").
			Value(&a.user).
			Validate(notEmpty("username")))
		if err != nil {
			return err
		}
	}

	if a.keyFile == "" {
		mode := "password"
		err := ask(huh.NewSelect[string]().
			Title("Authentication").
			Options(
				huh.NewOption("Password", "password"),
				huh.NewOption("Private key file", "key"),
			).
			Value(&mode))
		if err != nil {
			return err
		}
		if mode == "key" {
			err := ask(huh.NewInput().
				Title("Private key path").
				Placeholder("~/.ssh/id_ed25519").
				Value(&a.keyFile).
				Validate(notEmpty("key path")))
			if err != nil {
				return err
			}
		}
	}

	if a.keyFile == "" {
		err := ask(huh.NewInput().
			Title("SSH password").
			EchoMode(huh.EchoModePassword).
			Value(&a.password).
			Validate(notEmpty("password")))
		if err != nil {
			return err
		}
	}
	return nil
}

// collectTarget asks for the account and its new password. The confirm
// value is passed through as typed; the mismatch check happens once,
// before any host is contacted.
func (a *answers) collectTarget() error {
	return ask(
		huh.NewInput().
			Title("Account to update").
			Value(&a.account).
			Validate(notEmpty("account")),
		huh.NewInput().
			Title("New password").
			EchoMode(huh.EchoModePassword).
			Value(&a.secret).
			Validate(notEmpty("new password")),
		huh.NewInput().
			Title("Confirm new password").
			EchoMode(huh.EchoModePassword).
			Value(&a.confirm),
	)
}

// ask runs a single-group form with the given fields.
func ask(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s must not be empty", what)
		}
		return nil
	}
}
