package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verifactory/internal/chains"
	"github.com/pendergraft/verifactory/internal/chains/evm/foundry"
	"github.com/pendergraft/verifactory/pkg/client"
)

// errNotVerified is returned when the server answered but found no match.
var errNotVerified = errors.New("contract not verified")

// targetFlags are shared by every verify subcommand that recompiles.
type targetFlags struct {
	address          string
	deployedBytecode string
	creationBytecode string
	compilerVersion  string
	jsonOutput       bool
}

func (f *targetFlags) register(cmd *cobra.Command, requireVersion bool) {
	cmd.Flags().StringVar(&f.address, "address", "", "deployed address; the server reads its code when --deployed-bytecode is empty")
	cmd.Flags().StringVar(&f.deployedBytecode, "deployed-bytecode", "", "runtime bytecode as hex, or @file")
	cmd.Flags().StringVar(&f.creationBytecode, "creation-bytecode", "", "creation transaction input as hex, or @file")
	cmd.Flags().StringVar(&f.compilerVersion, "compiler-version", "", "compiler version, e.g. v0.8.20+commit.a1b79de6")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "output as JSON")
	if requireVersion {
		_ = cmd.MarkFlagRequired("compiler-version")
	}
}

func (f *targetFlags) resolve() (deployed string, creation *string, err error) {
	deployed, err = readHexArg(f.deployedBytecode)
	if err != nil {
		return "", nil, err
	}
	if deployed == "" && f.address == "" {
		return "", nil, fmt.Errorf("one of --deployed-bytecode or --address is required")
	}
	if f.creationBytecode != "" {
		c, err := readHexArg(f.creationBytecode)
		if err != nil {
			return "", nil, err
		}
		creation = &c
	}
	return deployed, creation, nil
}

func createVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify deployed bytecode against sources",
		Long: `Verify that deployed bytecode was produced by the given sources.

The server recompiles the sources with the requested compiler and compares
the result with the deployed code, ignoring the metadata hash for partial
matches.`,
	}

	cmd.AddCommand(createVerifyFoundryCmd())
	cmd.AddCommand(createVerifyMultiPartCmd())
	cmd.AddCommand(createVerifyStandardJSONCmd())
	cmd.AddCommand(createVerifyVyperCmd())
	cmd.AddCommand(createVerifySourcifyCmd())

	return cmd
}

func createVerifyFoundryCmd() *cobra.Command {
	var flags targetFlags

	cmd := &cobra.Command{
		Use:   "foundry <contract>",
		Short: "Verify a contract from a Foundry project",
		Long: `Build a standard-json input from Foundry artifacts and verify it.

Run 'forge build' first. The compiler version is taken from the artifact
unless --compiler-version is set. The address may come from the [addresses]
table of verifactory.toml.

EXAMPLES:
  verifactory verify foundry Token --address 0x1234...
  verifactory verify foundry Token --deployed-bytecode @token.hex
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			if flags.address == "" {
				if cfg := loadProjectConfigSilent(); cfg != nil {
					flags.address = cfg.Addresses[args[0]]
				}
			}
			return runVerifyFoundry(cmd.Context(), newClient(), cmd.OutOrStdout(), cwd, args[0], flags)
		},
	}
	flags.register(cmd, false)

	return cmd
}

func runVerifyFoundry(ctx context.Context, c *client.Client, out io.Writer, dir, name string, flags targetFlags) error {
	builder, err := chains.DetectBuilder(dir, foundry.New())
	if err != nil {
		return err
	}

	contracts, err := builder.Discover(dir, chains.DiscoverOptions{Contracts: []string{name}})
	if err != nil {
		return fmt.Errorf("discovering contracts: %w", err)
	}
	if len(contracts) == 0 {
		return fmt.Errorf("contract %s not found in %s build output (run 'forge build')", name, builder.Name())
	}
	if len(contracts) > 1 {
		paths := make([]string, len(contracts))
		for i, c := range contracts {
			paths[i] = c.SourcePath
		}
		return fmt.Errorf("contract name %s is ambiguous: %s", name, strings.Join(paths, ", "))
	}

	input, err := builder.VerificationInput(dir, contracts[0])
	if err != nil {
		return err
	}

	deployed, creation, err := flags.resolve()
	if err != nil {
		return err
	}
	version := flags.compilerVersion
	if version == "" {
		version = input.CompilerVersion
	}

	fmt.Fprintf(out, "Verifying %s (%s) with solc %s\n", contracts[0].Name, contracts[0].SourcePath, version)
	resp, err := c.VerifySolidityStandardJSON(ctx, client.SolidityStandardJSONRequest{
		CreationBytecode: creation,
		DeployedBytecode: deployed,
		CompilerVersion:  version,
		Input:            string(input.StandardJSON),
		ContractAddress:  flags.address,
	})
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}
	return printVerifyResponse(out, resp, flags.jsonOutput)
}

func createVerifyMultiPartCmd() *cobra.Command {
	var flags targetFlags
	var sources []string
	var evmVersion string
	var optimizationRuns int
	var libraries []string

	cmd := &cobra.Command{
		Use:   "multi-part",
		Short: "Verify Solidity or Yul source files",
		Long: `Verify Solidity or Yul sources compiled with default settings.

EXAMPLES:
  verifactory verify multi-part \
    --compiler-version v0.8.20+commit.a1b79de6 \
    --source contracts/Token.sol --source contracts/Math.sol \
    --optimization-runs 200 \
    --library Math=0x00000000000000000000000000000000000000aa \
    --address 0x1234...
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deployed, creation, err := flags.resolve()
			if err != nil {
				return err
			}
			files, err := readSources(sources)
			if err != nil {
				return err
			}
			libs, err := parseLibraries(libraries)
			if err != nil {
				return err
			}

			req := client.SolidityMultiPartRequest{
				CreationBytecode:  creation,
				DeployedBytecode:  deployed,
				CompilerVersion:   flags.compilerVersion,
				Sources:           files,
				EVMVersion:        evmVersion,
				ContractLibraries: libs,
				ContractAddress:   flags.address,
			}
			if cmd.Flags().Changed("optimization-runs") {
				req.OptimizationRuns = &optimizationRuns
			}

			resp, err := newClient().VerifySolidityMultiPart(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("verification request failed: %w", err)
			}
			return printVerifyResponse(cmd.OutOrStdout(), resp, flags.jsonOutput)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringArrayVar(&sources, "source", nil, "source file (repeatable)")
	cmd.Flags().StringVar(&evmVersion, "evm-version", "", "EVM version (default: compiler default)")
	cmd.Flags().IntVar(&optimizationRuns, "optimization-runs", 0, "enable the optimizer with this many runs")
	cmd.Flags().StringArrayVar(&libraries, "library", nil, "linked library as Name=address (repeatable)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func createVerifyStandardJSONCmd() *cobra.Command {
	var flags targetFlags
	var inputPath string

	cmd := &cobra.Command{
		Use:   "standard-json",
		Short: "Verify a solc standard-json input",
		Long: `Verify a solc standard-json input file.

EXAMPLES:
  verifactory verify standard-json \
    --compiler-version v0.8.20+commit.a1b79de6 \
    --input build/input.json \
    --deployed-bytecode @runtime.hex
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deployed, creation, err := flags.resolve()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			if !json.Valid(input) {
				return fmt.Errorf("%s is not valid JSON", inputPath)
			}

			resp, err := newClient().VerifySolidityStandardJSON(cmd.Context(), client.SolidityStandardJSONRequest{
				CreationBytecode: creation,
				DeployedBytecode: deployed,
				CompilerVersion:  flags.compilerVersion,
				Input:            string(input),
				ContractAddress:  flags.address,
			})
			if err != nil {
				return fmt.Errorf("verification request failed: %w", err)
			}
			return printVerifyResponse(cmd.OutOrStdout(), resp, flags.jsonOutput)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&inputPath, "input", "", "standard-json input file (required)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func createVerifyVyperCmd() *cobra.Command {
	var flags targetFlags
	var sources []string
	var evmVersion string

	cmd := &cobra.Command{
		Use:   "vyper",
		Short: "Verify Vyper source files",
		Long: `Verify Vyper sources. The first --source is the main contract.

EXAMPLES:
  verifactory verify vyper --compiler-version 0.3.10 --source Vault.vy --address 0x1234...
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deployed, creation, err := flags.resolve()
			if err != nil {
				return err
			}
			files, err := readSources(sources)
			if err != nil {
				return err
			}

			resp, err := newClient().VerifyVyperMultiPart(cmd.Context(), client.VyperMultiPartRequest{
				CreationBytecode: creation,
				DeployedBytecode: deployed,
				CompilerVersion:  flags.compilerVersion,
				Sources:          files,
				EVMVersion:       evmVersion,
				ContractAddress:  flags.address,
			})
			if err != nil {
				return fmt.Errorf("verification request failed: %w", err)
			}
			return printVerifyResponse(cmd.OutOrStdout(), resp, flags.jsonOutput)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringArrayVar(&sources, "source", nil, "source file (repeatable)")
	cmd.Flags().StringVar(&evmVersion, "evm-version", "", "EVM version (default: compiler default)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func createVerifySourcifyCmd() *cobra.Command {
	var address, chain string
	var files []string
	var chosen int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sourcify",
		Short: "Verify through Sourcify",
		Long: `Submit metadata and sources to Sourcify through the server.

EXAMPLES:
  verifactory verify sourcify --chain 1 --address 0x1234... \
    --file metadata.json --file contracts/Token.sol
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			contents, err := readSources(files)
			if err != nil {
				return err
			}
			req := client.SourcifyRequest{Address: address, Chain: chain, Files: contents}
			if cmd.Flags().Changed("chosen-contract") {
				req.ChosenContract = &chosen
			}

			resp, err := newClient().VerifySourcify(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("verification request failed: %w", err)
			}
			return printVerifyResponse(cmd.OutOrStdout(), resp, jsonOutput)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "contract address (required)")
	cmd.Flags().StringVar(&chain, "chain", "", "chain ID (required)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "metadata or source file (repeatable)")
	cmd.Flags().IntVar(&chosen, "chosen-contract", 0, "index of the contract when the metadata describes several")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func printVerifyResponse(out io.Writer, resp *client.VerifyResponse, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if !resp.Verified() {
			return errNotVerified
		}
		return nil
	}

	fmt.Fprintln(out)
	if !resp.Verified() {
		fmt.Fprintln(out, "❌ NOT VERIFIED")
		if resp.Message != "" {
			fmt.Fprintf(out, "   Reason: %s\n", resp.Message)
		}
		return errNotVerified
	}

	r := resp.Result
	switch r.MatchType {
	case "FULL":
		fmt.Fprintln(out, "✅ VERIFIED - Full match")
	case "PARTIAL":
		fmt.Fprintln(out, "✅ VERIFIED - Partial match")
		fmt.Fprintln(out, "   Executable code matches, the metadata hash differs")
	default:
		fmt.Fprintln(out, "✅ VERIFIED")
	}
	fmt.Fprintf(out, "   Contract: %s (%s)\n", r.ContractName, r.FileName)
	fmt.Fprintf(out, "   Compiler: %s\n", r.CompilerVersion)
	if r.EVMVersion != "" {
		fmt.Fprintf(out, "   EVM:      %s\n", r.EVMVersion)
	}
	if r.Optimization != nil && *r.Optimization && r.OptimizationRuns != nil {
		fmt.Fprintf(out, "   Optimizer: %d runs\n", *r.OptimizationRuns)
	}
	if r.ConstructorArguments != nil && *r.ConstructorArguments != "0x" {
		fmt.Fprintf(out, "   Constructor args: %s\n", *r.ConstructorArguments)
	}
	if len(r.ContractLibraries) > 0 {
		names := make([]string, 0, len(r.ContractLibraries))
		for name := range r.ContractLibraries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "   Library %s: %s\n", name, r.ContractLibraries[name])
		}
	}
	return nil
}

// readHexArg returns value, or the trimmed contents of the file when value
// is "@path".
func readHexArg(value string) (string, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return strings.TrimSpace(value), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// readSources reads files keyed by their slash-separated path as given.
func readSources(paths []string) (map[string]string, error) {
	sources := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading source: %w", err)
		}
		sources[filepath.ToSlash(filepath.Clean(p))] = string(data)
	}
	return sources, nil
}

func parseLibraries(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	libs := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, addr, ok := strings.Cut(entry, "=")
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid library %q: expected Name=address", entry)
		}
		libs[name] = addr
	}
	return libs, nil
}
