package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verifactory/internal/chains"
	"github.com/pendergraft/verifactory/internal/chains/evm/foundry"
)

// defaultExcludePatterns skips test and script contracts.
var defaultExcludePatterns = []string{
	"Test",
	"Script",
	"Mock",
	"Deploy",
	"Setup",
}

func createDiscoverCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List contracts that can be verified",
		Long: `List contracts in the local Foundry build output that 'verify foundry'
can submit, along with their configured address.

EXAMPLES:
  verifactory discover
  verifactory discover --all   # ignore exclude patterns
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			return runDiscover(cmd.OutOrStdout(), cwd, loadProjectConfigSilent(), showAll)
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "include contracts matched by exclude patterns")

	return cmd
}

func runDiscover(out io.Writer, dir string, cfg *ProjectConfig, showAll bool) error {
	builder, err := chains.DetectBuilder(dir, foundry.New())
	if err != nil {
		return fmt.Errorf("%w (missing foundry.toml?)", err)
	}

	opts := chains.DiscoverOptions{Exclude: defaultExcludePatterns}
	addresses := map[string]string{}
	if cfg != nil {
		opts.Contracts = cfg.Contracts
		opts.ExcludePaths = cfg.ExcludePaths
		if len(cfg.Exclude) > 0 {
			opts.Exclude = cfg.Exclude
		}
		if cfg.Addresses != nil {
			addresses = cfg.Addresses
		}
	}
	if showAll {
		opts.Exclude = nil
		opts.ExcludePaths = nil
	}

	contracts, err := builder.Discover(dir, opts)
	if err != nil {
		return fmt.Errorf("discovering contracts: %w\n\nTIP: Run 'forge build' first", err)
	}

	if len(contracts) == 0 {
		fmt.Fprintln(out, "No contracts found in src/")
		return nil
	}

	fmt.Fprintf(out, "Contracts in src/ (%d):\n\n", len(contracts))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tSOURCE\tADDRESS")
	for _, c := range contracts {
		addr := addresses[c.Name]
		if addr == "" {
			addr = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", c.Name, c.SourcePath, addr)
	}
	return w.Flush()
}
