package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrPassphraseMismatch = errors.New("passphrases do not match")

// Prompter supplies passphrases for unlocking keys and protecting exports.
type Prompter interface {
	Passphrase(prompt string, confirm bool) (string, error)
}

// readPassword is a seam over term.ReadPassword for tests.
var readPassword = term.ReadPassword

// TerminalPrompter reads OTPKEEP_PASSPHRASE when set, otherwise prompts on
// the terminal without echo. When stdin is piped it falls back to /dev/tty.
type TerminalPrompter struct {
	Out io.Writer
}

func (p TerminalPrompter) Passphrase(prompt string, confirm bool) (string, error) {
	if env := os.Getenv(EnvPassphrase); env != "" {
		return env, nil
	}

	first, err := p.read(prompt)
	if err != nil {
		return "", err
	}
	if !confirm {
		return first, nil
	}
	second, err := p.read("Confirm " + prompt)
	if err != nil {
		return "", err
	}
	if first != second {
		return "", ErrPassphraseMismatch
	}
	return first, nil
}

func (p TerminalPrompter) read(prompt string) (string, error) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprint(out, prompt)
	defer fmt.Fprintln(out)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return "", fmt.Errorf("cannot read passphrase: stdin is not a terminal; set %s", EnvPassphrase)
		}
		defer tty.Close()
		fd = int(tty.Fd())
	}

	b, err := readPassword(fd)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// StaticPrompter answers every prompt with the same passphrase.
type StaticPrompter string

func (p StaticPrompter) Passphrase(string, bool) (string, error) {
	return string(p), nil
}
