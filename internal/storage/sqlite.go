package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	// Writers serialize on the file lock anyway.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verified contracts, one row per address
	CREATE TABLE IF NOT EXISTS verified_contracts (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL UNIQUE,
		contract_name TEXT NOT NULL,
		file_name TEXT NOT NULL,
		compiler_version TEXT NOT NULL,
		language TEXT NOT NULL,
		match_type TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now'))
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Indexes
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
func (s *SQLiteStore) SaveVerifiedContract(ctx context.Context, c *VerifiedContract) error {
	if c.ID == "" {
		c.ID = generateID()
	}
	c.Address = normalizeAddress(c.Address)

	query := `
		INSERT INTO verified_contracts (id, address, contract_name, file_name, compiler_version, language, match_type, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(address) DO UPDATE SET
			contract_name = excluded.contract_name,
			file_name = excluded.file_name,
			compiler_version = excluded.compiler_version,
			language = excluded.language,
			match_type = excluded.match_type,
			result = excluded.result,
			updated_at = excluded.updated_at
		WHERE NOT (verified_contracts.match_type = 'FULL' AND excluded.match_type <> 'FULL')
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Address, c.ContractName, c.FileName, c.CompilerVersion, c.Language, c.MatchType, string(c.Result))
	return err
}

// GetVerifiedContract returns the verification stored for an address
func (s *SQLiteStore) GetVerifiedContract(ctx context.Context, address string) (*VerifiedContract, error) {
	query := `
		SELECT id, address, contract_name, file_name, compiler_version, language, match_type, result, created_at, updated_at
		FROM verified_contracts WHERE address = ?
	`
	var c VerifiedContract
	var result string
	err := s.db.QueryRowContext(ctx, query, normalizeAddress(address)).Scan(
		&c.ID, &c.Address, &c.ContractName, &c.FileName, &c.CompilerVersion, &c.Language, &c.MatchType, &result, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Result = []byte(result)
	return &c, nil
}

// ListVerifiedContracts lists verified contracts ordered by address
func (s *SQLiteStore) ListVerifiedContracts(ctx context.Context, filter VerifiedContractFilter, pagination PaginationParams) (*PaginatedResult[VerifiedContract], error) {
	var conditions []string
	var args []any

	if filter.Language != "" {
		conditions = append(conditions, "language = ?")
		args = append(args, strings.ToLower(filter.Language))
	}
	if filter.MatchType != "" {
		conditions = append(conditions, "match_type = ?")
		args = append(args, strings.ToUpper(filter.MatchType))
	}
	if pagination.Cursor != "" {
		conditions = append(conditions, "address > ?")
		args = append(args, normalizeAddress(pagination.Cursor))
	}

	query := `
		SELECT id, address, contract_name, file_name, compiler_version, language, match_type, result, created_at, updated_at
		FROM verified_contracts
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := pageLimit(pagination.Limit)
	query += " ORDER BY address LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []VerifiedContract
	for rows.Next() {
		var c VerifiedContract
		var result string
		if err := rows.Scan(&c.ID, &c.Address, &c.ContractName, &c.FileName, &c.CompilerVersion, &c.Language, &c.MatchType, &result, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Result = []byte(result)
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paginate(contracts, limit), nil
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, datetime('now'))",
		generateID(), hashAPIKey(key), name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	var ak APIKey
	err := s.db.QueryRowContext(ctx,
		"SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL",
		hashAPIKey(key)).Scan(&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID); err != nil {
		s.logger.Warn("failed to record api key use", "key_id", ak.ID, "error", err)
	}
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		k.LastUsedAt = lastUsed.String
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ? AND revoked_at IS NULL", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
