package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pendergraft/verifactory/internal/bytecode"
	"github.com/pendergraft/verifactory/internal/compiler"
	"github.com/pendergraft/verifactory/internal/observability/metrics"
	"github.com/pendergraft/verifactory/internal/sourcify"
	"github.com/pendergraft/verifactory/internal/storage"
	"github.com/pendergraft/verifactory/internal/validation"
)

// Compiler runs a single compiler invocation.
type Compiler interface {
	Compile(ctx context.Context, inv compiler.Invocation) (*compiler.Output, error)
}

// VersionLister lists installed compiler versions, newest first.
type VersionLister interface {
	Versions(t compiler.Toolchain) []string
}

// ContractStore defines the storage operations needed by the verification domain.
type ContractStore interface {
	SaveVerifiedContract(ctx context.Context, c *storage.VerifiedContract) error
	GetVerifiedContract(ctx context.Context, address string) (*storage.VerifiedContract, error)
	ListVerifiedContracts(ctx context.Context, filter storage.VerifiedContractFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.VerifiedContract], error)
}

// CodeFetcher reads deployed code from a chain.
type CodeFetcher interface {
	GetDeployedBytecode(ctx context.Context, address string) ([]byte, error)
}

// SourcifyClient is the subset of the Sourcify API used for passthrough
// verification.
type SourcifyClient interface {
	Verify(ctx context.Context, req sourcify.VerifyRequest) (*sourcify.VerifyResult, error)
	Files(ctx context.Context, chain, address string) (*sourcify.Files, error)
}

type service struct {
	compiler Compiler
	versions VersionLister
	store    ContractStore
	fetcher  CodeFetcher
	sourcify SourcifyClient
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures optional collaborators of the service.
type Option func(*service)

// WithStore persists successful verifications of known addresses.
func WithStore(store ContractStore) Option {
	return func(s *service) { s.store = store }
}

// WithCodeFetcher enables fetching deployed code for requests that carry an
// address but no deployed bytecode.
func WithCodeFetcher(f CodeFetcher) Option {
	return func(s *service) { s.fetcher = f }
}

// WithSourcify enables the Sourcify passthrough.
func WithSourcify(c SourcifyClient) Option {
	return func(s *service) { s.sourcify = c }
}

// WithVerifyTimeout bounds a single verification including every compiler
// run it needs. Zero leaves the caller's deadline as the only bound.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *service) { s.timeout = d }
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// NewService creates a new verification service.
func NewService(c Compiler, versions VersionLister, opts ...Option) *service {
	s := &service{
		compiler: c,
		versions: versions,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifySolidityMultiPart verifies a contract from Solidity and Yul sources.
func (s *service) VerifySolidityMultiPart(ctx context.Context, req SolidityMultiPart) (*VerificationResult, error) {
	code, err := s.deployedCode(ctx, req.DeployedBytecode, req.ContractAddress)
	if err != nil {
		return s.record(languageSolidity, methodMultiPart, nil, err)
	}
	req.DeployedBytecode = code
	result, err := s.verify(ctx, req, req.ContractAddress)
	return s.record(languageSolidity, methodMultiPart, result, err)
}

// VerifySolidityStandardJSON verifies a contract from a standard-json input.
func (s *service) VerifySolidityStandardJSON(ctx context.Context, req SolidityStandardJSON) (*VerificationResult, error) {
	code, err := s.deployedCode(ctx, req.DeployedBytecode, req.ContractAddress)
	if err != nil {
		return s.record(languageSolidity, methodStandardJSON, nil, err)
	}
	req.DeployedBytecode = code
	result, err := s.verify(ctx, req, req.ContractAddress)
	return s.record(languageSolidity, methodStandardJSON, result, err)
}

// VerifyVyperMultiPart verifies a contract from Vyper sources.
func (s *service) VerifyVyperMultiPart(ctx context.Context, req VyperMultiPart) (*VerificationResult, error) {
	code, err := s.deployedCode(ctx, req.DeployedBytecode, req.ContractAddress)
	if err != nil {
		return s.record(languageVyper, methodMultiPart, nil, err)
	}
	req.DeployedBytecode = code
	result, err := s.verify(ctx, req, req.ContractAddress)
	return s.record(languageVyper, methodMultiPart, result, err)
}

// VerifySourcify submits sources to Sourcify and reports what it stored.
func (s *service) VerifySourcify(ctx context.Context, req SourcifyRequest) (*VerificationResult, error) {
	result, err := s.verifySourcify(ctx, req)
	return s.record(languageSolidity, methodSourcify, result, err)
}

// ListVersions lists the compiler versions installed for a toolchain.
func (s *service) ListVersions(ctx context.Context, t compiler.Toolchain) (*VersionsResult, error) {
	versions := s.versions.Versions(t)
	if versions == nil {
		versions = []string{}
	}
	return &VersionsResult{Versions: versions}, nil
}

// GetVerifiedContract returns the stored verification of an address.
func (s *service) GetVerifiedContract(ctx context.Context, address string) (*VerifiedContract, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, &MalformedRequestError{Reason: err.Error()}
	}
	if s.store == nil {
		return nil, ErrNotFound
	}
	c, err := s.store.GetVerifiedContract(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting verified contract: %w", err)
	}
	return toVerifiedContract(c)
}

// ListVerifiedContracts lists stored verifications ordered by address.
func (s *service) ListVerifiedContracts(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	if s.store == nil {
		return &ListResult{Contracts: []VerifiedContract{}}, nil
	}
	result, err := s.store.ListVerifiedContracts(ctx, storage.VerifiedContractFilter{
		Language:  filter.Language,
		MatchType: filter.MatchType,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing verified contracts: %w", err)
	}

	contracts := make([]VerifiedContract, 0, len(result.Data))
	for i := range result.Data {
		c, err := toVerifiedContract(&result.Data[i])
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return &ListResult{
		Contracts:  contracts,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	}, nil
}

// deployedCode returns the deployed bytecode to verify against, reading it
// from the chain when the request only names an address.
func (s *service) deployedCode(ctx context.Context, deployed, address string) (string, error) {
	if deployed != "" || address == "" || s.fetcher == nil {
		return deployed, nil
	}
	if err := validation.ValidateAddress(address); err != nil {
		return "", &MalformedRequestError{Reason: err.Error()}
	}
	code, err := s.fetcher.GetDeployedBytecode(ctx, address)
	if err != nil {
		return "", fmt.Errorf("%w: fetching code of %s: %v", ErrUpstream, address, err)
	}
	if len(code) == 0 {
		return "", malformed("no contract deployed at %s", address)
	}
	return hexutil.Encode(code), nil
}

func (s *service) verify(ctx context.Context, req Request, address string) (*VerificationResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	job, target, err := NormalizeRequest(req)
	if err != nil {
		return nil, err
	}
	invocations, err := compiler.BuildInvocations(job)
	if err != nil {
		var compileErr *compiler.CompilationError
		if errors.As(err, &compileErr) {
			return nil, err
		}
		return nil, &MalformedRequestError{Reason: err.Error()}
	}

	// Invocations differ only in language group or metadata hash, so a
	// compiler error on one of them applies to all.
	var libErr error
	for _, inv := range invocations {
		out, err := s.compiler.Compile(ctx, inv)
		if err != nil {
			return nil, err
		}
		outcome, err := MatchBest(out.Artifacts, target, matchLibraries(job, inv.Input))
		if err != nil {
			var unresolved *bytecode.UnresolvedLibraryError
			switch {
			case errors.Is(err, ErrNoMatch):
				continue
			case errors.As(err, &unresolved):
				if libErr == nil {
					libErr = err
				}
				continue
			default:
				return nil, err
			}
		}

		result := AssembleResult(job, out, outcome)
		s.persist(ctx, address, languageOf(job.Toolchain), result)
		return result, nil
	}
	if libErr != nil {
		return nil, libErr
	}
	return nil, ErrNoMatch
}

// matchLibraries returns the library addresses a compiled artifact may
// reference. Standard-json inputs declare them per file.
func matchLibraries(job compiler.Job, in *compiler.Input) map[string]string {
	if !job.IsStandardJSON() {
		return job.Libraries
	}
	libs := map[string]string{}
	for file, fileLibs := range in.View().Libraries {
		for name, addr := range fileLibs {
			libs[file+":"+name] = addr
		}
	}
	return libs
}

func (s *service) verifySourcify(ctx context.Context, req SourcifyRequest) (*VerificationResult, error) {
	if s.sourcify == nil {
		return nil, &MalformedRequestError{Reason: "sourcify verification is not enabled"}
	}
	if err := validation.ValidateAddress(req.Address); err != nil {
		return nil, &MalformedRequestError{Reason: err.Error()}
	}
	if err := validation.ValidateChain(req.Chain); err != nil {
		return nil, &MalformedRequestError{Reason: err.Error()}
	}
	if len(req.Files) == 0 {
		return nil, &MalformedRequestError{Reason: "files are empty"}
	}

	verified, err := s.sourcify.Verify(ctx, sourcify.VerifyRequest{
		Address:        req.Address,
		Chain:          req.Chain,
		Files:          req.Files,
		ChosenContract: req.ChosenContract,
	})
	if err != nil {
		return nil, sourcifyError(err)
	}

	files, err := s.sourcify.Files(ctx, req.Chain, req.Address)
	if err != nil {
		return nil, sourcifyError(err)
	}
	result := AssembleSourcifyResult(files, sourcifyMatchType(verified.Status))
	s.persist(ctx, req.Address, sourcifyLanguage(files), result)
	return result, nil
}

func sourcifyError(err error) error {
	var apiErr *sourcify.Error
	if errors.As(err, &apiErr) {
		return &VerificationFailedError{Message: apiErr.Message}
	}
	if errors.Is(err, sourcify.ErrNotFound) {
		return &VerificationFailedError{Message: err.Error()}
	}
	return fmt.Errorf("%w: sourcify: %v", ErrUpstream, err)
}

func sourcifyLanguage(files *sourcify.Files) string {
	if files.Metadata != nil && files.Metadata.Language == "Vyper" {
		return languageVyper
	}
	return languageSolidity
}

// persist stores a result for an address. Failures are logged and do not
// fail the verification.
func (s *service) persist(ctx context.Context, address, language string, result *VerificationResult) {
	if s.store == nil || address == "" {
		return
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to encode verification result", "address", address, "error", err)
		return
	}
	err = s.store.SaveVerifiedContract(ctx, &storage.VerifiedContract{
		Address:         address,
		ContractName:    result.ContractName,
		FileName:        result.FileName,
		CompilerVersion: result.CompilerVersion,
		Language:        language,
		MatchType:       string(result.MatchType),
		Result:          encoded,
	})
	if err != nil {
		s.logger.Warn("failed to store verification result", "address", address, "error", err)
	}
}

// record counts the outcome of a verification.
func (s *service) record(language, method string, result *VerificationResult, err error) (*VerificationResult, error) {
	metrics.VerificationRequest(language, method, outcomeStatus(result, err))
	return result, err
}

func outcomeStatus(result *VerificationResult, err error) string {
	var compileErr *compiler.CompilationError
	var unresolved *bytecode.UnresolvedLibraryError
	switch {
	case err == nil && result.MatchType == MatchFull:
		return "full"
	case err == nil:
		return "partial"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.As(err, &compileErr), errors.As(err, &unresolved):
		return "compile_error"
	default:
		return "error"
	}
}

func toVerifiedContract(c *storage.VerifiedContract) (*VerifiedContract, error) {
	var result VerificationResult
	if err := json.Unmarshal(c.Result, &result); err != nil {
		return nil, fmt.Errorf("decoding stored result for %s: %w", c.Address, err)
	}
	return &VerifiedContract{
		Address:   c.Address,
		MatchType: MatchType(c.MatchType),
		Language:  c.Language,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Result:    &result,
	}, nil
}
