package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const timestampLayout = "2006-01-02 15:04:05"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS verified_contracts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		address TEXT NOT NULL UNIQUE,
		contract_name TEXT NOT NULL,
		file_name TEXT NOT NULL,
		compiler_version TEXT NOT NULL,
		language TEXT NOT NULL,
		match_type TEXT NOT NULL,
		result JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_verified_contracts_language ON verified_contracts(language);
	CREATE INDEX IF NOT EXISTS idx_verified_contracts_match_type ON verified_contracts(match_type);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// SaveVerifiedContract inserts or replaces the verification stored for an
// address. A stored FULL match is kept when the new one is PARTIAL.
func (s *PostgresStore) SaveVerifiedContract(ctx context.Context, c *VerifiedContract) error {
	if c.ID == "" {
		c.ID = generateID()
	}
	c.Address = normalizeAddress(c.Address)

	query := `
		INSERT INTO verified_contracts (id, address, contract_name, file_name, compiler_version, language, match_type, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			contract_name = EXCLUDED.contract_name,
			file_name = EXCLUDED.file_name,
			compiler_version = EXCLUDED.compiler_version,
			language = EXCLUDED.language,
			match_type = EXCLUDED.match_type,
			result = EXCLUDED.result,
			updated_at = NOW()
		WHERE NOT (verified_contracts.match_type = 'FULL' AND EXCLUDED.match_type <> 'FULL')
	`
	// JSONB accepts the text form; passing []byte would be sent as bytea.
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Address, c.ContractName, c.FileName, c.CompilerVersion, c.Language, c.MatchType, string(c.Result))
	return err
}

const selectVerifiedContract = `
	SELECT id, address, contract_name, file_name, compiler_version, language, match_type, result::text, created_at, updated_at
	FROM verified_contracts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresContract(row rowScanner) (*VerifiedContract, error) {
	var c VerifiedContract
	var result string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&c.ID, &c.Address, &c.ContractName, &c.FileName, &c.CompilerVersion, &c.Language, &c.MatchType, &result, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Result = []byte(result)
	c.CreatedAt = createdAt.Format(timestampLayout)
	c.UpdatedAt = updatedAt.Format(timestampLayout)
	return &c, nil
}

// GetVerifiedContract returns the verification stored for an address
func (s *PostgresStore) GetVerifiedContract(ctx context.Context, address string) (*VerifiedContract, error) {
	row := s.db.QueryRowContext(ctx, selectVerifiedContract+" WHERE address = $1", normalizeAddress(address))
	c, err := scanPostgresContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListVerifiedContracts lists verified contracts ordered by address
func (s *PostgresStore) ListVerifiedContracts(ctx context.Context, filter VerifiedContractFilter, pagination PaginationParams) (*PaginatedResult[VerifiedContract], error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Language != "" {
		conditions = append(conditions, fmt.Sprintf("language = $%d", argNum))
		args = append(args, strings.ToLower(filter.Language))
		argNum++
	}
	if filter.MatchType != "" {
		conditions = append(conditions, fmt.Sprintf("match_type = $%d", argNum))
		args = append(args, strings.ToUpper(filter.MatchType))
		argNum++
	}
	if pagination.Cursor != "" {
		conditions = append(conditions, fmt.Sprintf("address > $%d", argNum))
		args = append(args, normalizeAddress(pagination.Cursor))
		argNum++
	}

	query := selectVerifiedContract
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := pageLimit(pagination.Limit)
	query += fmt.Sprintf(" ORDER BY address LIMIT $%d", argNum)
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []VerifiedContract
	for rows.Next() {
		c, err := scanPostgresContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paginate(contracts, limit), nil
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)", generateID(), hashAPIKey(key), name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	var ak APIKey
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL",
		hashAPIKey(key)).Scan(&ak.ID, &ak.KeyHash, &ak.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = createdAt.Format(timestampLayout)
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID); err != nil {
		s.logger.Warn("failed to record api key use", "key_id", ak.ID, "error", err)
	}
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.Format(timestampLayout)
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.Format(timestampLayout)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
