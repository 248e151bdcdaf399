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

// TestVerify_SolidityMultiPart verifies the fixture end to end
func TestVerify_SolidityMultiPart(t *testing.T) {
	c := newClient(testCtx.TestServer, createTestAPIKey(t, testCtx.Store, "test-verify"))
	address := testAddress(2)

	resp := verifyStorage(t, c, address)
	require.True(t, resp.Verified(), resp.Message)
	require.NotNil(t, resp.Result)

	assert.Equal(t, "Storage.sol", resp.Result.FileName)
	assert.Equal(t, "Storage", resp.Result.ContractName)
	assert.Equal(t, solcVersion, resp.Result.CompilerVersion)
	assert.Equal(t, "FULL", resp.Result.MatchType)
	assert.Equal(t, map[string]string{"Storage.sol": storageSource}, resp.Result.Sources)
	require.NotNil(t, resp.Result.ConstructorArguments)
	assert.Equal(t, "0x", *resp.Result.ConstructorArguments)

	t.Run("result is stored", func(t *testing.T) {
		stored, err := c.GetContract(context.Background(), address)
		require.NoError(t, err)
		assert.Equal(t, "FULL", stored.MatchType)
		assert.Equal(t, "solidity", stored.Language)
		require.NotNil(t, stored.Result)
		assert.Equal(t, "Storage", stored.Result.ContractName)
	})

	t.Run("repeat verification is served from cache", func(t *testing.T) {
		again := verifyStorage(t, c, address)
		require.True(t, again.Verified())
		assert.Equal(t, resp.Result.ContractName, again.Result.ContractName)
	})
}

// TestVerify_Failures covers verification failures reported with status "1"
func TestVerify_Failures(t *testing.T) {
	c := newClient(testCtx.TestServer, createTestAPIKey(t, testCtx.Store, "test-verify-failures"))

	t.Run("bytecode mismatch", func(t *testing.T) {
		resp, err := c.VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{
			DeployedBytecode: "0x6080604052600080fdfe",
			CompilerVersion:  solcVersion,
			Sources:          map[string]string{"Storage.sol": storageSource},
		})
		require.NoError(t, err)
		assert.False(t, resp.Verified())
		assert.Equal(t, client.StatusFailure, resp.Status)
		assert.Nil(t, resp.Result)
	})

	t.Run("compiler not installed", func(t *testing.T) {
		_, err := c.VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{
			DeployedBytecode: storageCode,
			CompilerVersion:  "v0.4.11+commit.68ef5810",
			Sources:          map[string]string{"Storage.sol": storageSource},
		})
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("invalid deployed bytecode", func(t *testing.T) {
		_, err := c.VerifySolidityMultiPart(context.Background(), client.SolidityMultiPartRequest{
			DeployedBytecode: "0xzz",
			CompilerVersion:  solcVersion,
			Sources:          map[string]string{"Storage.sol": storageSource},
		})
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
			testCtx.TestServer.URL+"/api/v1/verifier/solidity/multi-part", strings.NewReader(`{"sources":`))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", createTestAPIKey(t, testCtx.Store, "test-verify-json"))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
