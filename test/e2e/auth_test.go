//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verifactory/pkg/client"
)

// TestAuth_UnauthenticatedRead tests that read endpoints work without authentication
func TestAuth_UnauthenticatedRead(t *testing.T) {
	apiKey := createTestAPIKey(t, testCtx.Store, "test-auth-read")
	address := testAddress(1)
	require.True(t, verifyStorage(t, newClient(testCtx.TestServer, apiKey), address).Verified())

	unauthed := newClient(testCtx.TestServer, "")

	t.Run("get contract without auth", func(t *testing.T) {
		contract, err := unauthed.GetContract(context.Background(), address)
		require.NoError(t, err)
		assert.Equal(t, address, contract.Address)
	})

	t.Run("list contracts without auth", func(t *testing.T) {
		list, err := unauthed.ListContracts(context.Background(), client.ListContractsOptions{})
		require.NoError(t, err)
		assert.NotEmpty(t, list.Data)
	})
}

// TestAuth_VerifyRequiresKey tests that verification endpoints reject missing or invalid keys
func TestAuth_VerifyRequiresKey(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := newClient(testCtx.TestServer, "").VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{})
		assertHTTPError(t, err, "UNAUTHORIZED")
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := newClient(testCtx.TestServer, "vf_key_invalid").VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{})
		assertHTTPError(t, err, "UNAUTHORIZED")
	})

	t.Run("revoked key", func(t *testing.T) {
		apiKey := createTestAPIKey(t, testCtx.Store, "test-auth-revoked")
		validated, err := testCtx.Store.ValidateAPIKey(context.Background(), apiKey)
		require.NoError(t, err)
		require.NoError(t, testCtx.Store.RevokeAPIKey(context.Background(), validated.ID))

		_, err = newClient(testCtx.TestServer, apiKey).VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{})
		assertHTTPError(t, err, "UNAUTHORIZED")
	})

	t.Run("bearer token is accepted", func(t *testing.T) {
		apiKey := createTestAPIKey(t, testCtx.Store, "test-auth-bearer")
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
			testCtx.TestServer.URL+"/api/v1/verifier/solidity/multi-part", strings.NewReader(`{}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		// Past auth, an empty request is malformed.
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
