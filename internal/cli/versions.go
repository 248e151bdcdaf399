package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/pendergraft/verifactory/pkg/client"
)

func createVersionsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "versions <solidity|vyper>",
		Short: "List compiler versions installed on the server",
		Long: `List the compiler versions the server can verify with, newest first.

EXAMPLES:
  verifactory versions solidity
  verifactory versions vyper --json
`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"solidity", "vyper"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runVersions(ctx context.Context, c *client.Client, out io.Writer, toolchain string, jsonOutput bool) error {
	var versions []string
	var err error
	switch toolchain {
	case "solidity", "solc":
		versions, err = c.SolidityVersions(ctx)
	case "vyper":
		versions, err = c.VyperVersions(ctx)
	default:
		return fmt.Errorf("unknown toolchain %q (expected solidity or vyper)", toolchain)
	}
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"versions": versions})
	}

	if len(versions) == 0 {
		fmt.Fprintf(out, "No %s compilers installed\n", toolchain)
		return nil
	}

	latest := latestRelease(versions)
	for _, v := range versions {
		if v == latest {
			fmt.Fprintf(out, "  %s (latest release)\n", v)
		} else {
			fmt.Fprintf(out, "  %s\n", v)
		}
	}
	fmt.Fprintf(out, "\n%d version(s)\n", len(versions))

	return nil
}

// latestRelease returns the highest version that is not a prerelease
// (nightly builds are prereleases). Versions that are not semver are
// ignored. It returns "" when nothing qualifies.
func latestRelease(versions []string) string {
	var latest, latestNorm string
	for _, v := range versions {
		norm := v
		if !strings.HasPrefix(norm, "v") {
			norm = "v" + norm
		}
		if !semver.IsValid(norm) || semver.Prerelease(norm) != "" {
			continue
		}
		if latest == "" || semver.Compare(norm, latestNorm) > 0 {
			latest, latestNorm = v, norm
		}
	}
	return latest
}
