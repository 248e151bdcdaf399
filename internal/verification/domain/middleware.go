package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/verifactory/internal/compiler"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	VerifySolidityMultiPart(ctx context.Context, req SolidityMultiPart) (*VerificationResult, error)
	VerifySolidityStandardJSON(ctx context.Context, req SolidityStandardJSON) (*VerificationResult, error)
	VerifyVyperMultiPart(ctx context.Context, req VyperMultiPart) (*VerificationResult, error)
	VerifySourcify(ctx context.Context, req SourcifyRequest) (*VerificationResult, error)
	ListVersions(ctx context.Context, t compiler.Toolchain) (*VersionsResult, error)
	GetVerifiedContract(ctx context.Context, address string) (*VerifiedContract, error)
	ListVerifiedContracts(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) VerifySolidityMultiPart(ctx context.Context, req SolidityMultiPart) (*VerificationResult, error) {
	start := time.Now()
	result, err := m.next.VerifySolidityMultiPart(ctx, req)
	m.logVerification(ctx, "VerifySolidityMultiPart", start, result, err,
		"compiler_version", req.CompilerVersion,
		"sources", len(req.Sources),
		"libraries", len(req.Libraries),
		"creation", req.CreationBytecode != nil,
		"address", req.ContractAddress,
	)
	return result, err
}

func (m *loggingMiddleware) VerifySolidityStandardJSON(ctx context.Context, req SolidityStandardJSON) (*VerificationResult, error) {
	start := time.Now()
	result, err := m.next.VerifySolidityStandardJSON(ctx, req)
	m.logVerification(ctx, "VerifySolidityStandardJSON", start, result, err,
		"compiler_version", req.CompilerVersion,
		"input_size", len(req.Input),
		"creation", req.CreationBytecode != nil,
		"address", req.ContractAddress,
	)
	return result, err
}

func (m *loggingMiddleware) VerifyVyperMultiPart(ctx context.Context, req VyperMultiPart) (*VerificationResult, error) {
	start := time.Now()
	result, err := m.next.VerifyVyperMultiPart(ctx, req)
	m.logVerification(ctx, "VerifyVyperMultiPart", start, result, err,
		"compiler_version", req.CompilerVersion,
		"sources", len(req.Sources),
		"creation", req.CreationBytecode != nil,
		"address", req.ContractAddress,
	)
	return result, err
}

func (m *loggingMiddleware) VerifySourcify(ctx context.Context, req SourcifyRequest) (*VerificationResult, error) {
	start := time.Now()
	result, err := m.next.VerifySourcify(ctx, req)
	m.logVerification(ctx, "VerifySourcify", start, result, err,
		"chain", req.Chain,
		"address", req.Address,
		"files", len(req.Files),
	)
	return result, err
}

func (m *loggingMiddleware) ListVersions(ctx context.Context, t compiler.Toolchain) (*VersionsResult, error) {
	start := time.Now()
	result, err := m.next.ListVersions(ctx, t)
	m.logger.Debug("ListVersions",
		"toolchain", t,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) GetVerifiedContract(ctx context.Context, address string) (*VerifiedContract, error) {
	start := time.Now()
	result, err := m.next.GetVerifiedContract(ctx, address)
	m.logger.Debug("GetVerifiedContract",
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) ListVerifiedContracts(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.ListVerifiedContracts(ctx, filter, pagination)
	m.logger.Debug("ListVerifiedContracts",
		"filter", filter,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) logVerification(ctx context.Context, op string, start time.Time, result *VerificationResult, err error, attrs ...any) {
	attrs = append(attrs, "duration", time.Since(start))
	if result != nil {
		attrs = append(attrs,
			"contract", result.ContractName,
			"match_type", result.MatchType,
		)
	}
	level := slog.LevelInfo
	if err != nil {
		attrs = append(attrs, "error", err)
		if outcomeStatus(result, err) == "error" {
			level = slog.LevelWarn
		}
	}
	m.logger.Log(ctx, level, op, attrs...)
}
