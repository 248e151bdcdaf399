package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// apiKeyPrefix marks keys issued by this server.
const apiKeyPrefix = "vf_key_"

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s%s", apiKeyPrefix, hex.EncodeToString(b))
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// normalizeAddress lowercases an address so lookups are case-insensitive.
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// pageLimit clamps a requested page size.
func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

// paginate trims a page fetched with limit+1 rows and derives the next cursor.
func paginate(contracts []VerifiedContract, limit int) *PaginatedResult[VerifiedContract] {
	result := &PaginatedResult[VerifiedContract]{Data: contracts}
	if len(contracts) > limit {
		result.Data = contracts[:limit]
		result.HasMore = true
		result.NextCursor = result.Data[limit-1].Address
	}
	if result.Data == nil {
		result.Data = []VerifiedContract{}
	}
	return result
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
