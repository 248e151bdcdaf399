package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solcOutput = `{
  "errors": [{"severity": "warning", "type": "Warning", "message": "unused variable", "formattedMessage": "Warning: unused variable"}],
  "contracts": {
    "contracts/Token.sol": {
      "Token": {
        "abi": [{"type": "function", "name": "total", "inputs": [], "outputs": []}],
        "evm": {
          "bytecode": {
            "object": "6080604052",
            "linkReferences": {"contracts/Math.sol": {"Math": [{"start": 1, "length": 20}]}}
          },
          "deployedBytecode": {
            "object": "60806040",
            "linkReferences": {},
            "immutableReferences": {"12": [{"start": 2, "length": 32}]}
          }
        }
      },
      "IToken": {
        "abi": [],
        "evm": {"bytecode": {"object": ""}, "deployedBytecode": {"object": ""}}
      }
    }
  }
}`

func TestParseOutput(t *testing.T) {
	in := &Input{Language: LanguageSolidity}
	out, err := ParseOutput([]byte(solcOutput), in)
	require.NoError(t, err)
	require.Len(t, out.Artifacts, 2)
	assert.Same(t, in, out.Input)

	// Sorted by file, then contract name.
	assert.Equal(t, "IToken", out.Artifacts[0].ContractName)
	token := out.Artifacts[1]
	assert.Equal(t, "Token", token.ContractName)
	assert.Equal(t, "contracts/Token.sol", token.FileName)
	assert.Equal(t, "6080604052", token.CreationBytecode)
	assert.Equal(t, "60806040", token.DeployedBytecode)
	assert.Len(t, token.CreationLinkReferences["contracts/Math.sol"]["Math"], 1)
	assert.Equal(t, 32, token.ImmutableReferences["12"][0].Length)
	assert.JSONEq(t, `[{"type": "function", "name": "total", "inputs": [], "outputs": []}]`, string(token.ABI))
}

func TestParseOutputErrors(t *testing.T) {
	data := `{"errors": [
		{"severity": "error", "type": "ParserError", "message": "Expected ';'", "formattedMessage": "ParserError: Expected ';'\n --> A.sol:1:1"},
		{"severity": "error", "type": "TypeError", "message": "bad type"}
	]}`
	_, err := ParseOutput([]byte(data), nil)

	var compileErr *CompilationError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, []string{"ParserError: Expected ';'\n --> A.sol:1:1", "bad type"}, compileErr.Messages)
}

func TestParseOutputYulHasNoABI(t *testing.T) {
	data := `{"contracts": {"A.yul": {"A": {"abi": [], "evm": {"bytecode": {"object": "00"}, "deployedBytecode": {"object": "00"}}}}}}`
	out, err := ParseOutput([]byte(data), &Input{Language: LanguageYul})
	require.NoError(t, err)
	assert.Nil(t, out.Artifacts[0].ABI)
}

func TestParseOutputGarbage(t *testing.T) {
	_, err := ParseOutput([]byte("Segmentation fault"), nil)
	require.Error(t, err)

	var compileErr *CompilationError
	assert.False(t, errors.As(err, &compileErr))
}
