// Package chains defines the chain and build-tool abstractions used to fetch
// on-chain code and to turn a local project into verification input.
package chains

import (
	"context"
	"fmt"
)

// Chain is a blockchain ecosystem the service can read deployed code from.
type Chain interface {
	Name() string // "evm"

	// GetDeployedBytecode returns the runtime code stored at address. An
	// address without code yields an empty slice.
	GetDeployedBytecode(ctx context.Context, address string) ([]byte, error)
}

// Builder reads the output of a build tool (Foundry, Hardhat, ...).
type Builder interface {
	Name() string       // "foundry"
	ConfigFile() string // "foundry.toml"

	Detect(dir string) (bool, error)
	Discover(dir string, opts DiscoverOptions) ([]Contract, error)
	VerificationInput(dir string, c Contract) (*VerificationInput, error)
}

// DiscoverOptions configures artifact discovery.
type DiscoverOptions struct {
	// Contracts to include (empty = all)
	Contracts []string
	// Name patterns to exclude (e.g., "Test", "Mock*")
	Exclude []string
	// Source path patterns to exclude
	ExcludePaths []string
}

// Contract is a compiled contract found in a project.
type Contract struct {
	Name         string
	SourcePath   string
	ArtifactPath string
}

// VerificationInput is what a verifier needs to recompile a contract:
// a standard-json input and the exact compiler build that produced it.
type VerificationInput struct {
	StandardJSON    []byte
	CompilerVersion string // "0.8.28+commit.7893614a"
}

// DetectBuilder returns the first builder that recognizes dir.
func DetectBuilder(dir string, builders ...Builder) (Builder, error) {
	for _, b := range builders {
		ok, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no supported builder detected in %s", dir)
}
