package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/verifactory/internal/compiler"
)

func TestNormalizeRequest(t *testing.T) {
	sources := map[string]string{"Token.sol": "contract Token {}"}

	t.Run("solidity multi-part", func(t *testing.T) {
		job, target, err := NormalizeRequest(SolidityMultiPart{
			CreationBytecode: strPtr("0x6001"),
			DeployedBytecode: "0x6002",
			CompilerVersion:  "v0.8.7+commit.e28d00a7",
			Sources:          sources,
			EVMVersion:       "default",
			OptimizationRuns: intPtr(200),
			Libraries:        map[string]string{"Math": "0x01"},
		})
		require.NoError(t, err)
		assert.Equal(t, compiler.Solidity, job.Toolchain)
		assert.Equal(t, "v0.8.7+commit.e28d00a7", job.Version.String())
		assert.Equal(t, sources, job.Sources)
		assert.Empty(t, job.EVMVersion)
		runs, enabled := job.Optimization.Runs()
		assert.True(t, enabled)
		assert.Equal(t, 200, runs)
		assert.Equal(t, map[string]string{"Math": "0x01"}, job.Libraries)
		assert.Equal(t, []byte{0x60, 0x01}, target.Creation)
		assert.Equal(t, []byte{0x60, 0x02}, target.Deployed)
		assert.NoError(t, job.Validate())
	})

	t.Run("optimization absent means disabled", func(t *testing.T) {
		job, _, err := NormalizeRequest(SolidityMultiPart{
			DeployedBytecode: "6002",
			CompilerVersion:  "0.8.7",
			Sources:          sources,
			EVMVersion:       "london",
		})
		require.NoError(t, err)
		assert.True(t, job.Optimization.Modeled())
		assert.False(t, job.Optimization.Enabled())
		assert.Equal(t, "london", job.EVMVersion)
	})

	t.Run("runs of zero stay enabled", func(t *testing.T) {
		job, _, err := NormalizeRequest(SolidityMultiPart{
			DeployedBytecode: "6002",
			CompilerVersion:  "0.8.7",
			Sources:          sources,
			OptimizationRuns: intPtr(0),
		})
		require.NoError(t, err)
		runs, enabled := job.Optimization.Runs()
		assert.True(t, enabled)
		assert.Zero(t, runs)
	})

	t.Run("standard-json", func(t *testing.T) {
		job, target, err := NormalizeRequest(SolidityStandardJSON{
			DeployedBytecode: "0x6002",
			CompilerVersion:  "0.8.7",
			Input:            "{not json",
		})
		require.NoError(t, err)
		assert.True(t, job.IsStandardJSON())
		assert.Equal(t, "{not json", job.RawInput)
		assert.Empty(t, job.Sources)
		assert.Nil(t, target.Creation)
	})

	t.Run("vyper", func(t *testing.T) {
		job, _, err := NormalizeRequest(VyperMultiPart{
			DeployedBytecode: "0x6002",
			CompilerVersion:  "0.3.10",
			Sources:          map[string]string{"Token.vy": "# @version 0.3.10"},
		})
		require.NoError(t, err)
		assert.Equal(t, compiler.Vyper, job.Toolchain)
		assert.False(t, job.Optimization.Modeled())
		assert.NoError(t, job.Validate())
	})

	t.Run("empty creation string counts as absent", func(t *testing.T) {
		_, target, err := NormalizeRequest(SolidityMultiPart{
			CreationBytecode: strPtr(""),
			DeployedBytecode: "0x6002",
			CompilerVersion:  "0.8.7",
			Sources:          sources,
		})
		require.NoError(t, err)
		assert.Nil(t, target.Creation)
	})

	t.Run("creation only", func(t *testing.T) {
		_, target, err := NormalizeRequest(SolidityMultiPart{
			CreationBytecode: strPtr("0x6001"),
			CompilerVersion:  "0.8.7",
			Sources:          sources,
		})
		require.NoError(t, err)
		assert.Empty(t, target.Deployed)
		assert.NotNil(t, target.Creation)
	})
}

func TestNormalizeRequestMalformed(t *testing.T) {
	sources := map[string]string{"Token.sol": "contract Token {}"}

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "F nothing to compare",
			req:  SolidityMultiPart{DeployedBytecode: "", CompilerVersion: "0.8.7", Sources: sources},
		},
		{
			name: "empty deployed hex with absent creation",
			req:  VyperMultiPart{DeployedBytecode: "0x", CompilerVersion: "0.3.10", Sources: sources},
		},
		{
			name: "invalid deployed hex",
			req:  SolidityMultiPart{DeployedBytecode: "0xzz", CompilerVersion: "0.8.7", Sources: sources},
		},
		{
			name: "invalid creation hex",
			req:  SolidityMultiPart{CreationBytecode: strPtr("0x123"), DeployedBytecode: "0x6001", CompilerVersion: "0.8.7", Sources: sources},
		},
		{
			name: "missing version",
			req:  SolidityMultiPart{DeployedBytecode: "0x6001", Sources: sources},
		},
		{
			name: "invalid version",
			req:  SolidityStandardJSON{DeployedBytecode: "0x6001", CompilerVersion: "latest", Input: "{}"},
		},
		{
			name: "empty sources",
			req:  SolidityMultiPart{DeployedBytecode: "0x6001", CompilerVersion: "0.8.7"},
		},
		{
			name: "empty standard-json input",
			req:  SolidityStandardJSON{DeployedBytecode: "0x6001", CompilerVersion: "0.8.7", Input: "  "},
		},
		{
			name: "unknown evm version",
			req:  SolidityMultiPart{DeployedBytecode: "0x6001", CompilerVersion: "0.8.7", Sources: sources, EVMVersion: "frontier"},
		},
		{
			name: "source path escapes root",
			req:  VyperMultiPart{DeployedBytecode: "0x6001", CompilerVersion: "0.3.10", Sources: map[string]string{"../x.vy": ""}},
		},
		{
			name: "sourcify",
			req:  SourcifyRequest{Address: "0x01", Chain: "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NormalizeRequest(tt.req)
			var malformedErr *MalformedRequestError
			assert.True(t, errors.As(err, &malformedErr), "got %v", err)
		})
	}
}
