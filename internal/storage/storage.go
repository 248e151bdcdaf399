package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/verifactory/internal/config"
)

// VerifiedContractStore persists successful verifications.
type VerifiedContractStore interface {
	SaveVerifiedContract(ctx context.Context, c *VerifiedContract) error
	GetVerifiedContract(ctx context.Context, address string) (*VerifiedContract, error)
	ListVerifiedContracts(ctx context.Context, filter VerifiedContractFilter, pagination PaginationParams) (*PaginatedResult[VerifiedContract], error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	VerifiedContractStore
	APIKeyStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// VerifiedContract is the latest successful verification of an address.
// A FULL match is never replaced by a weaker one.
type VerifiedContract struct {
	ID              string
	Address         string
	ContractName    string
	FileName        string
	CompilerVersion string
	Language        string
	MatchType       string
	Result          []byte // JSON encoded verification result
	CreatedAt       string
	UpdatedAt       string
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// VerifiedContractFilter contains filter options for listing verified contracts
type VerifiedContractFilter struct {
	Language  string
	MatchType string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
