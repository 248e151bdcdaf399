// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/verifactory/internal/bytecode"
	"github.com/pendergraft/verifactory/internal/compiler"
	"github.com/pendergraft/verifactory/internal/verification/domain"
)

// Service defines the verification service interface for HTTP transport.
type Service interface {
	VerifySolidityMultiPart(ctx context.Context, req domain.SolidityMultiPart) (*domain.VerificationResult, error)
	VerifySolidityStandardJSON(ctx context.Context, req domain.SolidityStandardJSON) (*domain.VerificationResult, error)
	VerifyVyperMultiPart(ctx context.Context, req domain.VyperMultiPart) (*domain.VerificationResult, error)
	VerifySourcify(ctx context.Context, req domain.SourcifyRequest) (*domain.VerificationResult, error)
	ListVersions(ctx context.Context, t compiler.Toolchain) (*domain.VersionsResult, error)
	GetVerifiedContract(ctx context.Context, address string) (*domain.VerifiedContract, error)
	ListVerifiedContracts(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
}

// Handler handles HTTP requests for verification.
type Handler struct {
	svc Service
}

// NewHandler creates a new verification HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all verification routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	h.RegisterReadRoutes(r)
	h.RegisterVerifyRoutes(r)
}

// RegisterReadRoutes registers the routes that never compile anything.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/solidity/versions", h.handleVersions(compiler.Solidity))
	r.Get("/vyper/versions", h.handleVersions(compiler.Vyper))
	r.Get("/contracts", h.handleListContracts)
	r.Get("/contracts/{address}", h.handleGetContract)
}

// RegisterVerifyRoutes registers the verification routes.
func (h *Handler) RegisterVerifyRoutes(r chi.Router) {
	r.Post("/solidity/multi-part", h.handleSolidityMultiPart)
	r.Post("/solidity/standard-json", h.handleSolidityStandardJSON)
	r.Post("/vyper/multi-part", h.handleVyperMultiPart)
	r.Post("/sourcify/verify", h.handleSourcifyVerify)
}

func (h *Handler) handleSolidityMultiPart(w http.ResponseWriter, r *http.Request) {
	var req SolidityMultiPartRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.VerifySolidityMultiPart(r.Context(), req.ToDomain())
	writeVerifyResponse(w, result, err)
}

func (h *Handler) handleSolidityStandardJSON(w http.ResponseWriter, r *http.Request) {
	var req SolidityStandardJSONRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.VerifySolidityStandardJSON(r.Context(), req.ToDomain())
	writeVerifyResponse(w, result, err)
}

func (h *Handler) handleVyperMultiPart(w http.ResponseWriter, r *http.Request) {
	var req VyperMultiPartRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.VerifyVyperMultiPart(r.Context(), req.ToDomain())
	writeVerifyResponse(w, result, err)
}

func (h *Handler) handleSourcifyVerify(w http.ResponseWriter, r *http.Request) {
	var req SourcifyVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.VerifySourcify(r.Context(), req.ToDomain())
	writeVerifyResponse(w, result, err)
}

func (h *Handler) handleVersions(t compiler.Toolchain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.svc.ListVersions(r.Context(), t)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list compiler versions")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) handleGetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := h.svc.GetVerifiedContract(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		var malformed *domain.MalformedRequestError
		switch {
		case errors.As(err, &malformed):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", malformed.Reason)
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Contract is not verified")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get verified contract")
		}
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (h *Handler) handleListContracts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.ListVerifiedContracts(r.Context(), domain.ListFilter{
		Language:  r.URL.Query().Get("language"),
		MatchType: r.URL.Query().Get("match_type"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list verified contracts")
		return
	}

	data := make([]ContractItem, len(result.Contracts))
	for i, c := range result.Contracts {
		item := ContractItem{
			Address:   c.Address,
			Language:  c.Language,
			MatchType: c.MatchType,
			UpdatedAt: c.UpdatedAt,
		}
		if c.Result != nil {
			item.ContractName = c.Result.ContractName
			item.FileName = c.Result.FileName
			item.CompilerVersion = c.Result.CompilerVersion
		}
		data[i] = item
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

// writeVerifyResponse turns the outcome of a verification into a
// VerifyResponse. Outcomes the caller can act on (compiler diagnostics, a
// missing library, no match) are failures with HTTP 200.
func writeVerifyResponse(w http.ResponseWriter, result *domain.VerificationResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, VerifyResponse{
			Message: "OK",
			Status:  StatusSuccess,
			Result:  result,
		})
		return
	}

	var (
		malformed   *domain.MalformedRequestError
		compileErr  *compiler.CompilationError
		unavailable *compiler.ToolchainUnavailableError
		unresolved  *bytecode.UnresolvedLibraryError
		failed      *domain.VerificationFailedError
	)
	status := http.StatusOK
	message := err.Error()
	switch {
	case errors.As(err, &malformed):
		status = http.StatusBadRequest
	case errors.As(err, &unavailable):
		status = http.StatusBadRequest
	case errors.As(err, &compileErr), errors.As(err, &unresolved), errors.As(err, &failed):
	case errors.Is(err, domain.ErrNoMatch):
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		message = "verification timed out"
	default:
		status = http.StatusInternalServerError
		message = "internal error"
	}

	writeJSON(w, status, VerifyResponse{
		Message: message,
		Status:  StatusFailure,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return false
	}
	return true
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
