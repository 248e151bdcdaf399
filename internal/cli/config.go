package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"verifactory.toml", "vf.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server       string   `toml:"server"`
	Project      string   `toml:"project,omitempty"`
	Contracts    []string `toml:"contracts,omitempty"`
	Exclude      []string `toml:"exclude,omitempty"`
	ExcludePaths []string `toml:"exclude_paths,omitempty"`
	// Addresses maps contract names to their deployed address, used by
	// "verify foundry" when --address is not given.
	Addresses map[string]string `toml:"addresses,omitempty"`
}

// GlobalConfig is stored in ~/.verifactory/config.yaml
type GlobalConfig struct {
	Server string `yaml:"server"`
}

const projectConfigHeader = `# Verifactory project configuration.
#
# contracts      only consider these contracts (empty = all of src/)
# exclude        contract name patterns skipped by "discover"
# exclude_paths  source path patterns (substring or glob)
# [addresses]    deployed addresses read by "verify foundry", e.g. Token = "0x..."

`

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Project and CLI configuration",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var project string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write verifactory.toml in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runConfigInit(serverURL, project, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", projectConfigFiles[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and where each value comes from",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(serverURL, project string, force bool) error {
	if !force {
		for _, name := range projectConfigFiles {
			if _, err := os.Stat(name); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", name)
			}
		}
	}

	if project == "" {
		if cwd, err := os.Getwd(); err == nil {
			project = filepath.Base(cwd)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(projectConfigHeader)
	err := toml.NewEncoder(&buf).Encode(ProjectConfig{
		Server:  serverURL,
		Project: project,
		Exclude: defaultExcludePatterns,
	})
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(projectConfigFiles[0], buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func runConfigShow(out io.Writer) error {
	serverURL, serverSource := resolveServer()
	key, keySource := resolveAPIKey()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SETTING\tVALUE\tSOURCE")
	fmt.Fprintf(w, "server\t%s\t%s\n", serverURL, serverSource)
	if key == "" {
		fmt.Fprintln(w, "api key\t(not set)\t-")
	} else {
		fmt.Fprintf(w, "api key\t%s\t%s\n", maskAPIKey(key), keySource)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	projectConfig, path, err := loadProjectConfig()
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(out, "\nNo project config (run 'verifactory config init').")
		return nil
	case err != nil:
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(out, "\nProject config %s:\n", path)
	return toml.NewEncoder(out).Encode(projectConfig)
}

func globalConfigPath() string {
	return filepath.Join(credentialsDir(), "config.yaml")
}

func loadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(globalConfigPath())
	if err != nil {
		return nil, err
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}

// loadProjectConfig loads the project config from --config or the first
// matching file in the working directory.
func loadProjectConfig() (*ProjectConfig, string, error) {
	candidates := projectConfigFiles
	if cfgFile != "" {
		candidates = []string{cfgFile}
	}

	for _, name := range candidates {
		config, err := loadProjectConfigFromPath(name)
		if errors.Is(err, os.ErrNotExist) && cfgFile == "" {
			continue
		}
		return config, name, err
	}
	return nil, "", os.ErrNotExist
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	var config ProjectConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	return &config, nil
}

// loadProjectConfigSilent returns nil when no config exists and warns on
// parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}
