package transport

import (
	"bytes"
	"encoding/json"

	"github.com/pendergraft/verifactory/internal/verification/domain"
)

// SolidityMultiPartRequest is the body of POST /solidity/multi-part.
type SolidityMultiPartRequest struct {
	CreationBytecode  *string           `json:"creation_bytecode"`
	DeployedBytecode  string            `json:"deployed_bytecode"`
	CompilerVersion   string            `json:"compiler_version"`
	Sources           map[string]string `json:"sources"`
	EVMVersion        string            `json:"evm_version"`
	OptimizationRuns  *int              `json:"optimization_runs"`
	ContractLibraries map[string]string `json:"contract_libraries"`
	ContractAddress   string            `json:"contract_address,omitempty"`
}

// ToDomain converts the request to its domain form.
func (r SolidityMultiPartRequest) ToDomain() domain.SolidityMultiPart {
	return domain.SolidityMultiPart{
		CreationBytecode: r.CreationBytecode,
		DeployedBytecode: r.DeployedBytecode,
		CompilerVersion:  r.CompilerVersion,
		Sources:          r.Sources,
		EVMVersion:       r.EVMVersion,
		OptimizationRuns: r.OptimizationRuns,
		Libraries:        r.ContractLibraries,
		ContractAddress:  r.ContractAddress,
	}
}

// SolidityStandardJSONRequest is the body of POST /solidity/standard-json.
type SolidityStandardJSONRequest struct {
	CreationBytecode *string  `json:"creation_bytecode"`
	DeployedBytecode string   `json:"deployed_bytecode"`
	CompilerVersion  string   `json:"compiler_version"`
	Input            RawInput `json:"input"`
	ContractAddress  string   `json:"contract_address,omitempty"`
}

// ToDomain converts the request to its domain form.
func (r SolidityStandardJSONRequest) ToDomain() domain.SolidityStandardJSON {
	return domain.SolidityStandardJSON{
		CreationBytecode: r.CreationBytecode,
		DeployedBytecode: r.DeployedBytecode,
		CompilerVersion:  r.CompilerVersion,
		Input:            string(r.Input),
		ContractAddress:  r.ContractAddress,
	}
}

// RawInput is a standard-json input sent either as a JSON string or as an
// embedded JSON object.
type RawInput string

// UnmarshalJSON implements json.Unmarshaler.
func (in *RawInput) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*in = RawInput(s)
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*in = ""
		return nil
	}
	*in = RawInput(trimmed)
	return nil
}

// VyperMultiPartRequest is the body of POST /vyper/multi-part.
type VyperMultiPartRequest struct {
	CreationBytecode *string           `json:"creation_bytecode"`
	DeployedBytecode string            `json:"deployed_bytecode"`
	CompilerVersion  string            `json:"compiler_version"`
	Sources          map[string]string `json:"sources"`
	EVMVersion       string            `json:"evm_version"`
	ContractAddress  string            `json:"contract_address,omitempty"`
}

// ToDomain converts the request to its domain form.
func (r VyperMultiPartRequest) ToDomain() domain.VyperMultiPart {
	return domain.VyperMultiPart{
		CreationBytecode: r.CreationBytecode,
		DeployedBytecode: r.DeployedBytecode,
		CompilerVersion:  r.CompilerVersion,
		Sources:          r.Sources,
		EVMVersion:       r.EVMVersion,
		ContractAddress:  r.ContractAddress,
	}
}

// SourcifyVerifyRequest is the body of POST /sourcify/verify.
type SourcifyVerifyRequest struct {
	Address        string            `json:"address"`
	Chain          string            `json:"chain"`
	Files          map[string]string `json:"files"`
	ChosenContract *int              `json:"chosen_contract,omitempty"`
}

// ToDomain converts the request to its domain form.
func (r SourcifyVerifyRequest) ToDomain() domain.SourcifyRequest {
	return domain.SourcifyRequest{
		Address:        r.Address,
		Chain:          r.Chain,
		Files:          r.Files,
		ChosenContract: r.ChosenContract,
	}
}

// Response status codes. They are strings on the wire.
const (
	StatusSuccess = "0"
	StatusFailure = "1"
)

// VerifyResponse is the response of every verification endpoint.
type VerifyResponse struct {
	Message string                     `json:"message"`
	Status  string                     `json:"status"`
	Result  *domain.VerificationResult `json:"result,omitempty"`
}

// ListResponse is the response for listing verified contracts.
type ListResponse struct {
	Data       []ContractItem `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// ContractItem is a verified contract summary in a list.
type ContractItem struct {
	Address         string           `json:"address"`
	ContractName    string           `json:"contract_name"`
	FileName        string           `json:"file_name"`
	CompilerVersion string           `json:"compiler_version"`
	Language        string           `json:"language"`
	MatchType       domain.MatchType `json:"match_type"`
	UpdatedAt       string           `json:"updated_at"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
