package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/verifactory/pkg/client"
)

// Credentials maps a server URL to the API key used for it.
type Credentials struct {
	Servers map[string]ServerCredential `yaml:"servers"`
}

// ServerCredential is the stored key for one server.
type ServerCredential struct {
	APIKey  string `yaml:"api_key"`
	SavedAt string `yaml:"saved_at,omitempty"`
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys for verification servers",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var serverFlag string
	var apiKeyFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a server",
		Long: `Check an API key against a Verifactory server and store it in
~/.verifactory/credentials (mode 0600). Verification commands pick it up
automatically for that server.

EXAMPLES:
  # Prompt for the key
  verifactory auth login

  # Another server
  verifactory auth login --server https://verify.example.com

  # CI
  echo "$VERIFACTORY_API_KEY" | verifactory auth login
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), serverFlag, apiKeyFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (read from stdin if not provided)")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var serverFlag string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the API key for a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout(), serverFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().BoolVar(&allFlag, "all", false, "forget keys for every server")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List servers with a stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout())
		},
	}
}

func runAuthLogin(ctx context.Context, out io.Writer, in io.Reader, serverURL, key string) error {
	if serverURL == "" {
		serverURL = getServer()
	}
	serverURL = credentialKey(serverURL)

	if key == "" {
		fmt.Fprintf(out, "API key for %s: ", serverURL)
		var err error
		if key, err = readAPIKey(out, in); err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
	}
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	valid, err := validateAPIKey(ctx, serverURL, key)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", serverURL, err)
	}
	if !valid {
		return fmt.Errorf("invalid API key for %s", serverURL)
	}

	if err := saveCredential(serverURL, key); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Fprintf(out, "✅ Logged in to %s (key: %s)\n", serverURL, maskAPIKey(key))
	return nil
}

// readAPIKey reads without echo from a terminal, otherwise the first
// non-blank line of in.
func readAPIKey(out io.Writer, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return strings.TrimSpace(string(b)), err
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", scanner.Err()
}

func runAuthLogout(out io.Writer, serverURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing credentials: %w", err)
		}
		fmt.Fprintln(out, "✅ Removed all stored API keys")
		return nil
	}

	if serverURL == "" {
		serverURL = getServer()
	}
	serverURL = credentialKey(serverURL)

	creds, err := loadCredentials()
	if err != nil {
		return err
	}
	if _, ok := creds.Servers[serverURL]; !ok {
		fmt.Fprintf(out, "No API key stored for %s\n", serverURL)
		return nil
	}

	delete(creds.Servers, serverURL)
	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Fprintf(out, "✅ Logged out of %s\n", serverURL)
	return nil
}

func runAuthStatus(out io.Writer) error {
	creds, err := loadCredentials()
	if err != nil {
		return err
	}
	if len(creds.Servers) == 0 {
		fmt.Fprintln(out, "No API keys stored. Run 'verifactory auth login'.")
		return nil
	}

	servers := make([]string, 0, len(creds.Servers))
	for s := range creds.Servers {
		servers = append(servers, s)
	}
	sort.Strings(servers)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tKEY\tSAVED")
	for _, s := range servers {
		cred := creds.Servers[s]
		saved := cred.SavedAt
		if saved == "" {
			saved = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s, maskAPIKey(cred.APIKey), saved)
	}
	return w.Flush()
}

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".verifactory"
	}
	return filepath.Join(home, ".verifactory")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

// credentialKey normalizes a server URL so "http://host/" and "http://host"
// share a key.
func credentialKey(serverURL string) string {
	return strings.TrimRight(strings.TrimSpace(serverURL), "/")
}

// loadCredentials returns empty credentials when the file does not exist.
func loadCredentials() (*Credentials, error) {
	creds := &Credentials{Servers: map[string]ServerCredential{}}

	data, err := os.ReadFile(credentialsFilePath())
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if creds.Servers == nil {
		creds.Servers = map[string]ServerCredential{}
	}
	return creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(serverURL, key string) error {
	creds, err := loadCredentials()
	if err != nil {
		return err
	}
	creds.Servers[credentialKey(serverURL)] = ServerCredential{
		APIKey:  key,
		SavedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return writeCredentials(creds)
}

func getCredential(serverURL string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	return creds.Servers[credentialKey(serverURL)].APIKey
}

// validateAPIKey sends an empty verification request. The auth middleware
// answers 401 before the request reaches the verifier; with a valid key (or
// auth disabled) the server rejects the empty request some other way.
func validateAPIKey(ctx context.Context, serverURL, key string) (bool, error) {
	_, err := client.New(serverURL, key).VerifySolidityMultiPart(ctx, client.SolidityMultiPartRequest{})
	var apiErr *client.APIError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &apiErr):
		return apiErr.StatusCode != http.StatusUnauthorized, nil
	default:
		return false, err
	}
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
