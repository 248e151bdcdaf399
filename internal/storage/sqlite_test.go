package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func verifiedContract(address, name, matchType string) *VerifiedContract {
	return &VerifiedContract{
		Address:         address,
		ContractName:    name,
		FileName:        "contracts/" + name + ".sol",
		CompilerVersion: "v0.8.7+commit.e28d00a7",
		Language:        "solidity",
		MatchType:       matchType,
		Result:          []byte(fmt.Sprintf(`{"contract_name":%q}`, name)),
	}
}

func TestSQLiteVerifiedContracts(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	const addr = "0x00000000000000000000000000000000000000Ab"

	t.Run("SaveAndGet", func(t *testing.T) {
		c := verifiedContract(addr, "Token", "PARTIAL")
		if err := store.SaveVerifiedContract(ctx, c); err != nil {
			t.Fatalf("SaveVerifiedContract() error = %v", err)
		}
		if c.ID == "" {
			t.Error("SaveVerifiedContract() did not assign an ID")
		}

		got, err := store.GetVerifiedContract(ctx, addr)
		if err != nil {
			t.Fatalf("GetVerifiedContract() error = %v", err)
		}
		if got.Address != "0x00000000000000000000000000000000000000ab" {
			t.Errorf("GetVerifiedContract().Address = %v, want lowercase", got.Address)
		}
		if got.MatchType != "PARTIAL" {
			t.Errorf("GetVerifiedContract().MatchType = %v, want PARTIAL", got.MatchType)
		}
		if string(got.Result) != `{"contract_name":"Token"}` {
			t.Errorf("GetVerifiedContract().Result = %s", got.Result)
		}
	})

	t.Run("UpgradeToFull", func(t *testing.T) {
		if err := store.SaveVerifiedContract(ctx, verifiedContract(addr, "TokenV2", "FULL")); err != nil {
			t.Fatalf("SaveVerifiedContract() error = %v", err)
		}
		got, err := store.GetVerifiedContract(ctx, addr)
		if err != nil {
			t.Fatalf("GetVerifiedContract() error = %v", err)
		}
		if got.MatchType != "FULL" || got.ContractName != "TokenV2" {
			t.Errorf("GetVerifiedContract() = %v/%v, want FULL/TokenV2", got.MatchType, got.ContractName)
		}
	})

	t.Run("FullIsNotDowngraded", func(t *testing.T) {
		if err := store.SaveVerifiedContract(ctx, verifiedContract(addr, "Other", "PARTIAL")); err != nil {
			t.Fatalf("SaveVerifiedContract() error = %v", err)
		}
		got, err := store.GetVerifiedContract(ctx, addr)
		if err != nil {
			t.Fatalf("GetVerifiedContract() error = %v", err)
		}
		if got.MatchType != "FULL" || got.ContractName != "TokenV2" {
			t.Errorf("GetVerifiedContract() = %v/%v, want FULL/TokenV2", got.MatchType, got.ContractName)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.GetVerifiedContract(ctx, "0x0000000000000000000000000000000000000001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetVerifiedContract() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteListVerifiedContracts(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		c := verifiedContract(fmt.Sprintf("0x%040x", i), fmt.Sprintf("C%d", i), "FULL")
		if i%2 == 0 {
			c.Language = "vyper"
			c.MatchType = "PARTIAL"
		}
		if err := store.SaveVerifiedContract(ctx, c); err != nil {
			t.Fatalf("SaveVerifiedContract() error = %v", err)
		}
	}

	t.Run("pages", func(t *testing.T) {
		var seen []string
		cursor := ""
		for {
			page, err := store.ListVerifiedContracts(ctx, VerifiedContractFilter{}, PaginationParams{Limit: 2, Cursor: cursor})
			if err != nil {
				t.Fatalf("ListVerifiedContracts() error = %v", err)
			}
			for _, c := range page.Data {
				seen = append(seen, c.ContractName)
			}
			if !page.HasMore {
				break
			}
			cursor = page.NextCursor
		}
		want := []string{"C1", "C2", "C3", "C4", "C5"}
		if fmt.Sprint(seen) != fmt.Sprint(want) {
			t.Errorf("ListVerifiedContracts() pages = %v, want %v", seen, want)
		}
	})

	t.Run("language filter", func(t *testing.T) {
		page, err := store.ListVerifiedContracts(ctx, VerifiedContractFilter{Language: "Vyper"}, PaginationParams{})
		if err != nil {
			t.Fatalf("ListVerifiedContracts() error = %v", err)
		}
		if len(page.Data) != 2 {
			t.Errorf("ListVerifiedContracts() returned %d contracts, want 2", len(page.Data))
		}
	})

	t.Run("match type filter", func(t *testing.T) {
		page, err := store.ListVerifiedContracts(ctx, VerifiedContractFilter{MatchType: "full"}, PaginationParams{})
		if err != nil {
			t.Fatalf("ListVerifiedContracts() error = %v", err)
		}
		if len(page.Data) != 3 || page.HasMore {
			t.Errorf("ListVerifiedContracts() = %d contracts (more=%v), want 3", len(page.Data), page.HasMore)
		}
	})

	t.Run("empty", func(t *testing.T) {
		page, err := store.ListVerifiedContracts(ctx, VerifiedContractFilter{Language: "yul"}, PaginationParams{})
		if err != nil {
			t.Fatalf("ListVerifiedContracts() error = %v", err)
		}
		if page.Data == nil || len(page.Data) != 0 {
			t.Errorf("ListVerifiedContracts() = %v, want empty slice", page.Data)
		}
	})
}

func TestAPIKey(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	key, err := store.CreateAPIKey(ctx, "test-key")
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if key == "" {
		t.Fatal("CreateAPIKey() returned empty key")
	}

	t.Run("Validate", func(t *testing.T) {
		apiKey, err := store.ValidateAPIKey(ctx, key)
		if err != nil {
			t.Fatalf("ValidateAPIKey() error = %v", err)
		}
		if apiKey.Name != "test-key" {
			t.Errorf("ValidateAPIKey().Name = %v, want test-key", apiKey.Name)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := store.ValidateAPIKey(ctx, "invalid-key")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ValidateAPIKey() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListAndRevoke", func(t *testing.T) {
		keys, err := store.ListAPIKeys(ctx)
		if err != nil {
			t.Fatalf("ListAPIKeys() error = %v", err)
		}
		if len(keys) != 1 {
			t.Fatalf("ListAPIKeys() returned %d keys, want 1", len(keys))
		}
		if keys[0].LastUsedAt == "" {
			t.Error("ListAPIKeys().LastUsedAt should be set after validation")
		}

		if err := store.RevokeAPIKey(ctx, keys[0].ID); err != nil {
			t.Fatalf("RevokeAPIKey() error = %v", err)
		}
		if _, err := store.ValidateAPIKey(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("ValidateAPIKey() after revoke error = %v, want ErrNotFound", err)
		}
		if err := store.RevokeAPIKey(ctx, keys[0].ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("RevokeAPIKey() twice error = %v, want ErrNotFound", err)
		}
	})
}
