package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/verifactory/pkg/client"
)

func createContractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Browse verified contracts",
	}

	cmd.AddCommand(createContractsListCmd())
	cmd.AddCommand(createContractsGetCmd())

	return cmd
}

func createContractsListCmd() *cobra.Command {
	var opts client.ListContractsOptions
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List verified contracts",
		Long: `List verified contracts ordered by address.

EXAMPLES:
  verifactory contracts list
  verifactory contracts list --language vyper --match-type FULL
  verifactory contracts list --cursor 0x00000000000000000000000000000000000000aa
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContractsList(cmd.Context(), newClient(), cmd.OutOrStdout(), opts, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&opts.Language, "language", "", "filter by language (solidity, yul, vyper)")
	cmd.Flags().StringVar(&opts.MatchType, "match-type", "", "filter by match type (FULL, PARTIAL)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of items to show")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "continue after this address")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runContractsList(ctx context.Context, c *client.Client, out io.Writer, opts client.ListContractsOptions, jsonOutput bool) error {
	resp, err := c.ListContracts(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list contracts: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Data) == 0 {
		fmt.Fprintln(out, "No verified contracts found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tCONTRACT\tLANGUAGE\tMATCH\tCOMPILER")
	for _, ct := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncateAddress(ct.Address), ct.ContractName, ct.Language, ct.MatchType, ct.CompilerVersion)
	}
	w.Flush()

	if resp.Pagination.HasMore {
		fmt.Fprintf(out, "\nMore available: --cursor %s\n", resp.Pagination.NextCursor)
	}

	return nil
}

func createContractsGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <address>",
		Short: "Show the verification of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContractsGet(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runContractsGet(ctx context.Context, c *client.Client, out io.Writer, address string, jsonOutput bool) error {
	contract, err := c.GetContract(ctx, address)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("%s is not verified", address)
		}
		return fmt.Errorf("failed to get contract: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(contract)
	}

	fmt.Fprintf(out, "Address:  %s\n", contract.Address)
	fmt.Fprintf(out, "Match:    %s\n", contract.MatchType)
	fmt.Fprintf(out, "Language: %s\n", contract.Language)
	fmt.Fprintf(out, "Updated:  %s\n", contract.UpdatedAt)
	if r := contract.Result; r != nil {
		fmt.Fprintf(out, "Contract: %s (%s)\n", r.ContractName, r.FileName)
		fmt.Fprintf(out, "Compiler: %s\n", r.CompilerVersion)
		if len(r.Sources) > 0 {
			fmt.Fprintf(out, "Sources:  %d file(s)\n", len(r.Sources))
		}
	}
	return nil
}

func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
