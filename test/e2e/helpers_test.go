//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verifactory/internal/compiler"
	"github.com/pendergraft/verifactory/internal/config"
	"github.com/pendergraft/verifactory/internal/server"
	"github.com/pendergraft/verifactory/internal/storage"
	"github.com/pendergraft/verifactory/internal/verification/domain"
	"github.com/pendergraft/verifactory/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	solcVersion = "v0.8.7+commit.e28d00a7"

	// storageCode is the deployed code the fake solc reports for Storage.
	storageCode = "0x6080604052348015600f57600080fd5b50600436106032"
	// storageCreation is the creation code the fake solc reports for Storage.
	storageCreation = "0x6080604052348015600f57600080fd5b50603f80601d6000396000f3fe6080604052348015600f57600080fd5b50600436106032"

	storageSource = "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.7;\ncontract Storage { uint256 value; }\n"
)

// fakeSolc answers every standard-json input with a single Storage contract.
const fakeSolc = `#!/bin/sh
cat > /dev/null
cat <<'JSON'
{
  "contracts": {
    "Storage.sol": {
      "Storage": {
        "abi": [],
        "evm": {
          "bytecode": {"object": "6080604052348015600f57600080fd5b50603f80601d6000396000f3fe6080604052348015600f57600080fd5b50600436106032", "linkReferences": {}},
          "deployedBytecode": {"object": "6080604052348015600f57600080fd5b50600436106032", "linkReferences": {}, "immutableReferences": {}}
        }
      }
    }
  }
}
JSON
`

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	CompilersDir      string
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("verifactory"),
		postgres.WithUsername("verifactory"),
		postgres.WithPassword("verifactory"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// installCompilersE lays out a compilers directory holding the fake solc.
func installCompilersE() (string, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("verifactory-compilers-%s", uuid.New().String()))
	versionDir := filepath.Join(dir, string(compiler.Solidity), solcVersion)
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create compiler directory: %w", err)
	}

	// #nosec G306 -- the compiler must be executable
	if err := os.WriteFile(filepath.Join(versionDir, compiler.Solidity.Binary()), []byte(fakeSolc), 0o755); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write compiler: %w", err)
	}
	return dir, nil
}

// startServerE starts the verifier in-process against Postgres.
func startServerE(ctx context.Context, connString, compilersDir string) (*httptest.Server, storage.Store, error) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{
		Type:     "postgres",
		Postgres: config.PostgresConfig{URL: connString},
	}
	cfg.Auth.Type = "api-key"
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Compilers.Dir = compilersDir

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	registry := compiler.NewRegistry(cfg.Compilers.Dir, logger)
	if err := registry.Refresh(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to scan compilers: %w", err)
	}

	invoker := compiler.NewCachedInvoker(
		compiler.NewExecInvoker(registry, 2, compiler.WithLogger(logger)),
		compiler.NewMemoryCache(64, time.Minute),
		logger,
	)
	svc := domain.LoggingMiddleware(logger)(domain.NewService(invoker, registry,
		domain.WithStore(store),
		domain.WithLogger(logger),
	))

	srv := server.New(cfg, store, svc, logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string) string {
	key, err := store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// testAddress returns a distinct lowercase address for n.
func testAddress(n byte) string {
	return fmt.Sprintf("0x%040x", uint64(n)<<8|0xaa)
}

// verifyStorage verifies the Storage fixture, recording it under address.
func verifyStorage(t *testing.T, c *client.Client, address string) *client.VerifyResponse {
	t.Helper()
	creation := storageCreation
	resp, err := c.VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{
		CreationBytecode: &creation,
		DeployedBytecode: storageCode,
		CompilerVersion:  solcVersion,
		Sources:          map[string]string{"Storage.sol": storageSource},
		ContractAddress:  address,
	})
	require.NoError(t, err)
	return resp
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
