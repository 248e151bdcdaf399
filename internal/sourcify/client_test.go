package sourcify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataJSON = `{
  "compiler": {"version": "0.8.7+commit.e28d00a7"},
  "language": "Solidity",
  "output": {"abi": [{"type": "constructor", "inputs": []}]},
  "settings": {
    "compilationTarget": {"contracts/Token.sol": "Token"},
    "evmVersion": "london",
    "libraries": {"contracts/Math.sol:Math": "0x00000000000000000000000000000000000000aa"},
    "optimizer": {"enabled": true, "runs": 200}
  }
}`

func TestVerify(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"result":[{"address":"0xabc","chainId":"1","status":"perfect"}]}`))
	}))
	defer srv.Close()

	chosen := 2
	res, err := New(srv.URL).Verify(context.Background(), VerifyRequest{
		Address:        "0xabc",
		Chain:          "1",
		Files:          map[string]string{"Token.sol": "contract Token {}"},
		ChosenContract: &chosen,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPerfect, res.Status)
	assert.Equal(t, "2", got["chosenContract"])
	assert.Equal(t, "1", got["chain"])
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantAPIErr bool
		wantMsg    string
	}{
		{name: "bad request", status: 400, body: `{"error":"Bytecode does not match"}`, wantAPIErr: true, wantMsg: "Bytecode does not match"},
		{name: "no match status", status: 200, body: `{"result":[{"status":"false","message":"no match"}]}`, wantAPIErr: true, wantMsg: "no match"},
		{name: "empty result", status: 200, body: `{"result":[]}`, wantAPIErr: true},
		{name: "server error", status: 502, body: `bad gateway`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Verify(context.Background(), VerifyRequest{Address: "0xabc", Chain: "1"})
			require.Error(t, err)

			var apiErr *Error
			assert.Equal(t, tt.wantAPIErr, errors.As(err, &apiErr))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apiErr.Message)
			}
		})
	}
}

func TestFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/any/1/0xabc", r.URL.Path)
		resp := map[string]any{
			"status": "full",
			"files": []File{
				{Name: "metadata.json", Path: "/repo/full_match/1/0xabc/metadata.json", Content: metadataJSON},
				{Name: "Token.sol", Path: "/repo/full_match/1/0xabc/sources/contracts/Token.sol", Content: "contract Token {}"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	files, err := New(srv.URL).Files(context.Background(), "1", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "full", files.Status)
	assert.Equal(t, map[string]string{"contracts/Token.sol": "contract Token {}"}, files.Sources)

	m := files.Metadata
	require.NotNil(t, m)
	assert.Equal(t, "0.8.7+commit.e28d00a7", m.Compiler.Version)

	file, contract := m.CompilationTarget()
	assert.Equal(t, "contracts/Token.sol", file)
	assert.Equal(t, "Token", contract)
	assert.Equal(t, "london", m.EVMVersion())

	enabled, runs, ok := m.Optimizer()
	assert.True(t, ok)
	assert.True(t, enabled)
	assert.Equal(t, 200, runs)
	assert.Equal(t, map[string]string{"Math": "0x00000000000000000000000000000000000000aa"}, m.Libraries())
}

func TestFilesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(srv.URL).Files(context.Background(), "1", "0xabc")
	assert.ErrorIs(t, err, ErrNotFound)
}
