// Package client provides a Go client for the Verifactory verifier API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiPrefix = "/api/v1/verifier"

// Client is a Verifactory API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new Verifactory client. Verification compiles on the
// server, so the default timeout is generous.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SolidityMultiPartRequest verifies Solidity or Yul sources.
type SolidityMultiPartRequest struct {
	CreationBytecode  *string           `json:"creation_bytecode"`
	DeployedBytecode  string            `json:"deployed_bytecode"`
	CompilerVersion   string            `json:"compiler_version"`
	Sources           map[string]string `json:"sources"`
	EVMVersion        string            `json:"evm_version,omitempty"`
	OptimizationRuns  *int              `json:"optimization_runs,omitempty"`
	ContractLibraries map[string]string `json:"contract_libraries,omitempty"`
	ContractAddress   string            `json:"contract_address,omitempty"`
}

// SolidityStandardJSONRequest verifies a solc standard-json input.
type SolidityStandardJSONRequest struct {
	CreationBytecode *string `json:"creation_bytecode"`
	DeployedBytecode string  `json:"deployed_bytecode"`
	CompilerVersion  string  `json:"compiler_version"`
	// Input is the standard-json document. It is sent as a string.
	Input           string `json:"input"`
	ContractAddress string `json:"contract_address,omitempty"`
}

// VyperMultiPartRequest verifies Vyper sources.
type VyperMultiPartRequest struct {
	CreationBytecode *string           `json:"creation_bytecode"`
	DeployedBytecode string            `json:"deployed_bytecode"`
	CompilerVersion  string            `json:"compiler_version"`
	Sources          map[string]string `json:"sources"`
	EVMVersion       string            `json:"evm_version,omitempty"`
	ContractAddress  string            `json:"contract_address,omitempty"`
}

// SourcifyRequest forwards files to Sourcify.
type SourcifyRequest struct {
	Address        string            `json:"address"`
	Chain          string            `json:"chain"`
	Files          map[string]string `json:"files"`
	ChosenContract *int              `json:"chosen_contract,omitempty"`
}

// Response statuses of the verification endpoints.
const (
	StatusSuccess = "0"
	StatusFailure = "1"
)

// VerifyResponse is returned by every verification endpoint.
type VerifyResponse struct {
	Message string              `json:"message"`
	Status  string              `json:"status"`
	Result  *VerificationResult `json:"result,omitempty"`
}

// Verified reports whether the response carries a match.
func (r *VerifyResponse) Verified() bool {
	return r.Status == StatusSuccess && r.Result != nil
}

// BytecodePart is one segment of compiled bytecode.
type BytecodePart struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// VerificationResult describes a matched contract.
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
	LocalCreationInputParts    []BytecodePart    `json:"local_creation_input_parts"`
	LocalDeployedBytecodeParts []BytecodePart    `json:"local_deployed_bytecode_parts"`
	MatchType                  string            `json:"match_type"`
}

// VerifiedContract is a stored verification of an address.
type VerifiedContract struct {
	Address   string              `json:"address"`
	MatchType string              `json:"match_type"`
	Language  string              `json:"language"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
	Result    *VerificationResult `json:"result"`
}

// ContractSummary is a verified contract in a list.
type ContractSummary struct {
	Address         string `json:"address"`
	ContractName    string `json:"contract_name"`
	FileName        string `json:"file_name"`
	CompilerVersion string `json:"compiler_version"`
	Language        string `json:"language"`
	MatchType       string `json:"match_type"`
	UpdatedAt       string `json:"updated_at"`
}

// ListContractsOptions filters and pages ListContracts.
type ListContractsOptions struct {
	Language  string
	MatchType string
	Limit     int
	Cursor    string
}

// ListContractsResponse is the response for listing verified contracts
type ListContractsResponse struct {
	Data       []ContractSummary `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// VerifySolidityMultiPart verifies Solidity sources. A response with status
// "1" is returned without error; only transport and request failures are
// errors.
func (c *Client) VerifySolidityMultiPart(ctx context.Context, req SolidityMultiPartRequest) (*VerifyResponse, error) {
	return c.verify(ctx, "/solidity/multi-part", req)
}

// VerifySolidityStandardJSON verifies a standard-json input.
func (c *Client) VerifySolidityStandardJSON(ctx context.Context, req SolidityStandardJSONRequest) (*VerifyResponse, error) {
	return c.verify(ctx, "/solidity/standard-json", req)
}

// VerifyVyperMultiPart verifies Vyper sources.
func (c *Client) VerifyVyperMultiPart(ctx context.Context, req VyperMultiPartRequest) (*VerifyResponse, error) {
	return c.verify(ctx, "/vyper/multi-part", req)
}

// VerifySourcify forwards a verification to Sourcify through the server.
func (c *Client) VerifySourcify(ctx context.Context, req SourcifyRequest) (*VerifyResponse, error) {
	return c.verify(ctx, "/sourcify/verify", req)
}

func (c *Client) verify(ctx context.Context, path string, body any) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.post(ctx, apiPrefix+path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SolidityVersions lists the solc versions installed on the server.
func (c *Client) SolidityVersions(ctx context.Context) ([]string, error) {
	return c.versions(ctx, "/solidity/versions")
}

// VyperVersions lists the vyper versions installed on the server.
func (c *Client) VyperVersions(ctx context.Context) ([]string, error) {
	return c.versions(ctx, "/vyper/versions")
}

func (c *Client) versions(ctx context.Context, path string) ([]string, error) {
	var resp struct {
		Versions []string `json:"versions"`
	}
	if err := c.get(ctx, apiPrefix+path, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// GetContract gets the stored verification of an address.
func (c *Client) GetContract(ctx context.Context, address string) (*VerifiedContract, error) {
	var resp VerifiedContract
	if err := c.get(ctx, apiPrefix+"/contracts/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListContracts lists verified contracts ordered by address.
func (c *Client) ListContracts(ctx context.Context, opts ListContractsOptions) (*ListContractsResponse, error) {
	q := url.Values{}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.MatchType != "" {
		q.Set("match_type", opts.MatchType)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	path := apiPrefix + "/contracts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListContractsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// parseError handles both the error envelope and failed verification
// responses, which carry only a message.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp struct {
		Error   *APIError `json:"error"`
		Message string    `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != nil:
			apiErr.Code = errResp.Error.Code
			apiErr.Message = errResp.Error.Message
			return apiErr
		case errResp.Message != "":
			apiErr.Message = errResp.Message
			return apiErr
		}
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
