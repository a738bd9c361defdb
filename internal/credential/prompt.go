package credential

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/cockroachdb/errors"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// PromptToken asks for the tracker token. On a terminal it shows a masked
// input; otherwise it reads the first line of in.
func PromptToken(in *os.File) (string, error) {
	if !IsTerminal(in) {
		return ReadToken(in)
	}

	var token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tracker API token").
				Description("Stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token is required")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", errors.Wrap(err, "reading token")
	}
	return strings.TrimSpace(token), nil
}

// ReadToken reads a token from the first line of r.
func ReadToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "reading token")
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.New("no token provided")
	}
	return token, nil
}
