package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verifactory/pkg/client"
)

var (
	cfgFile string
	server  string
	apiKey  string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "verifactory",
		Short: "Smart contract source verification CLI",
		Long: `Verifactory checks that deployed EVM bytecode was produced by the sources
you provide. Verification runs on a Verifactory server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: verifactory.toml or vf.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")

	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createVersionsCmd())
	rootCmd.AddCommand(createContractsCmd())
	rootCmd.AddCommand(createDiscoverCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

func newClient() *client.Client {
	return client.New(getServer(), getAPIKey())
}

// getServer returns the server URL from flag, env, config file, or default
func getServer() string {
	s, _ := resolveServer()
	return s
}

// resolveServer returns the server URL and a description of where it came
// from.
func resolveServer() (string, string) {
	if server != "" {
		return server, "--server"
	}

	if env := os.Getenv("VERIFACTORY_SERVER"); env != "" {
		return env, "VERIFACTORY_SERVER"
	}

	if config, path, err := loadProjectConfig(); err == nil && config.Server != "" {
		return config.Server, path
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
	}

	if global, err := loadGlobalConfig(); err == nil && global.Server != "" {
		return global.Server, globalConfigPath()
	}

	return "http://localhost:8080", "default"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	k, _ := resolveAPIKey()
	return k
}

// resolveAPIKey returns the API key and where it came from. Stored
// credentials are keyed by server URL.
func resolveAPIKey() (string, string) {
	if apiKey != "" {
		return apiKey, "--api-key"
	}

	if env := os.Getenv("VERIFACTORY_API_KEY"); env != "" {
		return env, "VERIFACTORY_API_KEY"
	}

	if cred := getCredential(getServer()); cred != "" {
		return cred, credentialsFilePath()
	}

	return "", ""
}
