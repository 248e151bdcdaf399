// Package domain contains the business logic for contract verification:
// request normalization, bytecode matching and result assembly.
package domain

import (
	"github.com/pendergraft/verifactory/internal/bytecode"
	"github.com/pendergraft/verifactory/internal/compiler"
)

// Request is one of SolidityMultiPart, SolidityStandardJSON, VyperMultiPart
// or SourcifyRequest.
type Request interface {
	isRequest()
}

// SolidityMultiPart verifies a contract from individual Solidity or Yul files.
type SolidityMultiPart struct {
	// CreationBytecode is nil when only deployed code should be compared.
	CreationBytecode *string
	DeployedBytecode string
	CompilerVersion  string
	Sources          map[string]string
	EVMVersion       string
	OptimizationRuns *int
	Libraries        map[string]string
	ContractAddress  string
}

// SolidityStandardJSON verifies a contract from a raw standard-json input.
type SolidityStandardJSON struct {
	CreationBytecode *string
	DeployedBytecode string
	CompilerVersion  string
	Input            string
	ContractAddress  string
}

// VyperMultiPart verifies a contract from individual Vyper files.
type VyperMultiPart struct {
	CreationBytecode *string
	DeployedBytecode string
	CompilerVersion  string
	Sources          map[string]string
	EVMVersion       string
	ContractAddress  string
}

// SourcifyRequest is passed through to a Sourcify server.
type SourcifyRequest struct {
	Address        string
	Chain          string
	Files          map[string]string
	ChosenContract *int
}

func (SolidityMultiPart) isRequest()    {}
func (SolidityStandardJSON) isRequest() {}
func (VyperMultiPart) isRequest()       {}
func (SourcifyRequest) isRequest()      {}

// Target is the on-chain code a compilation is compared against.
type Target struct {
	// Creation is nil when no creation code was supplied.
	Creation []byte
	Deployed []byte
}

// MatchType is the verdict of a successful comparison.
type MatchType string

const (
	MatchUnspecified MatchType = "UNSPECIFIED"
	MatchPartial     MatchType = "PARTIAL"
	MatchFull        MatchType = "FULL"
)

// MatchOutcome describes how an artifact matched its target.
type MatchOutcome struct {
	MatchType MatchType
	Artifact  compiler.Artifact

	// Locally compiled code, split at the metadata trailer.
	Creation bytecode.Segments
	Deployed bytecode.Segments

	// ConstructorArguments is set for creation code comparisons only.
	ConstructorArguments *string
}

// VerificationResult is the outcome of a successful verification.
type VerificationResult struct {
	FileName                   string            `json:"file_name"`
	ContractName               string            `json:"contract_name"`
	CompilerVersion            string            `json:"compiler_version"`
	Sources                    map[string]string `json:"sources"`
	EVMVersion                 string            `json:"evm_version"`
	Optimization               *bool             `json:"optimization"`
	OptimizationRuns           *int              `json:"optimization_runs"`
	ContractLibraries          map[string]string `json:"contract_libraries"`
	CompilerSettings           string            `json:"compiler_settings"`
	ConstructorArguments       *string           `json:"constructor_arguments"`
	ABI                        *string           `json:"abi"`
	LocalCreationInputParts    []bytecode.Part   `json:"local_creation_input_parts"`
	LocalDeployedBytecodeParts []bytecode.Part   `json:"local_deployed_bytecode_parts"`
	MatchType                  MatchType         `json:"match_type"`
}

// VerifiedContract is a persisted verification of an address.
type VerifiedContract struct {
	Address   string              `json:"address"`
	MatchType MatchType           `json:"match_type"`
	Language  string              `json:"language"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
	Result    *VerificationResult `json:"result"`
}

// VersionsResult contains the compiler versions available for a toolchain.
type VersionsResult struct {
	Versions []string `json:"versions"`
}

// ListFilter contains filter options for listing verified contracts.
type ListFilter struct {
	Language  string
	MatchType string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Contracts  []VerifiedContract
	HasMore    bool
	NextCursor string
}

// Language and method labels used for persistence and metrics.
const (
	languageSolidity = "solidity"
	languageVyper    = "vyper"

	methodMultiPart    = "multi-part"
	methodStandardJSON = "standard-json"
	methodSourcify     = "sourcify"
)
