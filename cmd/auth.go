package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/config"
	"github.com/northcutted/dock-lens/pkg/runner"
)

var (
	authEndpoint string
	authToken    string
	authCheck    bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Store the Sysdig Secure endpoint and API token",
	Long: `Store the Sysdig Secure endpoint and API token used by the scanner.

Values not given as flags are prompted for; pressing Enter keeps the stored value.
Surrounding whitespace and quotes are removed. SECURE_API_URL and SECURE_API_TOKEN
override the stored values at scan time.`,
	Example: `  dock-lens auth
  dock-lens auth --endpoint https://secure.sysdig.com --token "$TOKEN" --check`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().StringVar(&authEndpoint, "endpoint", "", "Sysdig Secure endpoint (e.g. https://secure.sysdig.com/)")
	authCmd.Flags().StringVar(&authToken, "token", "", "Sysdig Secure API token")
	authCmd.Flags().BoolVar(&authCheck, "check", false, "Check that the endpoint is reachable after saving")
}

func runAuth(cmd *cobra.Command, args []string) error {
	store, err := config.NewFileStore()
	if err != nil {
		return err
	}
	current, err := store.Load()
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	creds := config.Credentials{Endpoint: authEndpoint, Token: authToken}
	if creds.Endpoint == "" {
		if creds.Endpoint, err = prompt(in, "Sysdig Secure endpoint", current.Endpoint); err != nil {
			return err
		}
	}
	if creds.Token == "" {
		if creds.Token, err = prompt(in, "Sysdig Secure API token", current.Token); err != nil {
			return err
		}
	}

	if err := store.Save(creds); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Credentials saved to %s\n", store.Path)

	if authCheck {
		if err := runner.CheckConnectivity(cmd.Context(), config.Sanitize(creds.Endpoint), false); err != nil {
			return fmt.Errorf("credentials saved, but %s is not reachable: %w", creds.Endpoint, err)
		}
		fmt.Fprintf(stdout, "%s is reachable\n", config.Sanitize(creds.Endpoint))
	}
	return nil
}

// prompt reads one line. An empty answer keeps current.
func prompt(in *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(stdout, "%s [%s]: ", label, mask(label, current))
	} else {
		fmt.Fprintf(stdout, "%s: ", label)
	}
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	if v := config.Sanitize(line); v != "" {
		return v, nil
	}
	return current, nil
}

func mask(label, value string) string {
	if !strings.Contains(label, "token") || len(value) <= 4 {
		return value
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
