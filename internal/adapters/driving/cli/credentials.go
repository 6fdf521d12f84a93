package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Environment variables that supply secrets without storing them in config.toml.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	envPassword     = "EWSYNC_PASSWORD"
	envClientSecret = "EWSYNC_CLIENT_SECRET"
)

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

// passwordReader reads a secret from the user. Replaced in tests.
var passwordReader = readPassword

// applyCredentials fills missing secrets from the environment, prompting
// for a basic auth password as a last resort.
func applyCredentials(cmd *cobra.Command, settings *domain.AppSettings) error {
	switch settings.Auth.Method {
	case domain.AuthMethodBasic:
		if settings.Auth.Password != "" {
			return nil
		}
		if v, ok := lookupEnv(envPassword); ok {
			settings.Auth.Password = v
			return nil
		}
		cmd.PrintErrf("Password for %s: ", settings.Auth.Username)
		password, err := passwordReader(cmd.InOrStdin())
		cmd.PrintErrln()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		settings.Auth.Password = password
	case domain.AuthMethodOAuth:
		if settings.Auth.OAuth.ClientSecret != "" {
			return nil
		}
		v, ok := lookupEnv(envClientSecret)
		if !ok {
			return fmt.Errorf("%w: set auth.client_secret or %s", domain.ErrInvalidInput, envClientSecret)
		}
		settings.Auth.OAuth.ClientSecret = v
	}
	return nil
}

// readPassword reads without echo from a terminal, or a line otherwise.
func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(password), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func maskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:2] + "..." + secret[len(secret)-2:]
}
