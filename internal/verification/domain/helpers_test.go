package domain

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verifactory/internal/compiler"
)

// metadataTrailer builds a solc style CBOR trailer whose content hash is
// filled with seed. It is 53 bytes long including the length suffix.
func metadataTrailer(t *testing.T, seed byte) []byte {
	t.Helper()
	meta, err := cbor.Marshal(map[string]any{
		"ipfs": bytes.Repeat([]byte{seed}, 34),
		"solc": []byte{0, 8, 7},
	})
	require.NoError(t, err)
	return binary.BigEndian.AppendUint16(meta, uint16(len(meta)))
}

// program returns n bytes of executable code.
func program(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func artifactFor(creation, deployed []byte) compiler.Artifact {
	return compiler.Artifact{
		FileName:         "contracts/Token.sol",
		ContractName:     "Token",
		ABI:              []byte(`[]`),
		CreationBytecode: hex.EncodeToString(creation),
		DeployedBytecode: hex.EncodeToString(deployed),
	}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
