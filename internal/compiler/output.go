package compiler

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pendergraft/verifactory/internal/bytecode"
)

// Artifact is one contract produced by a compiler run.
type Artifact struct {
	FileName     string          `json:"file_name"`
	ContractName string          `json:"contract_name"`
	ABI          json.RawMessage `json:"abi,omitempty"`

	// Hex as emitted by the compiler; may contain library placeholders.
	CreationBytecode string `json:"creation_bytecode"`
	DeployedBytecode string `json:"deployed_bytecode"`

	CreationLinkReferences bytecode.LinkReferences      `json:"creation_link_references,omitempty"`
	DeployedLinkReferences bytecode.LinkReferences      `json:"deployed_link_references,omitempty"`
	ImmutableReferences    bytecode.ImmutableReferences `json:"immutable_references,omitempty"`
}

// Output is everything one compiler run produced, together with the input
// that was compiled.
type Output struct {
	Artifacts []Artifact `json:"artifacts"`
	Input     *Input     `json:"input"`
}

// Diagnostic is an entry of the compiler's "errors" array.
type Diagnostic struct {
	Severity         string `json:"severity"`
	Type             string `json:"type"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type standardOutput struct {
	Errors    []Diagnostic                              `json:"errors"`
	Contracts map[string]map[string]standardOutputEntry `json:"contracts"`
}

type standardOutputEntry struct {
	ABI json.RawMessage `json:"abi"`
	EVM struct {
		Bytecode         standardBytecode `json:"bytecode"`
		DeployedBytecode standardBytecode `json:"deployedBytecode"`
	} `json:"evm"`
}

type standardBytecode struct {
	Object              string                       `json:"object"`
	LinkReferences      bytecode.LinkReferences      `json:"linkReferences"`
	ImmutableReferences bytecode.ImmutableReferences `json:"immutableReferences"`
}

// ParseOutput decodes compiler standard-json output. Any diagnostic with
// severity "error" turns into a CompilationError.
func ParseOutput(data []byte, in *Input) (*Output, error) {
	var raw standardOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding compiler output: %w", err)
	}

	var messages []string
	for _, d := range raw.Errors {
		if d.Severity != "error" {
			continue
		}
		msg := d.FormattedMessage
		if msg == "" {
			msg = d.Message
		}
		messages = append(messages, msg)
	}
	if len(messages) > 0 {
		return nil, &CompilationError{Messages: messages}
	}

	out := &Output{Input: in, Artifacts: []Artifact{}}
	files := make([]string, 0, len(raw.Contracts))
	for f := range raw.Contracts {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		names := make([]string, 0, len(raw.Contracts[file]))
		for n := range raw.Contracts[file] {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, name := range names {
			entry := raw.Contracts[file][name]
			a := Artifact{
				FileName:               file,
				ContractName:           name,
				CreationBytecode:       entry.EVM.Bytecode.Object,
				DeployedBytecode:       entry.EVM.DeployedBytecode.Object,
				CreationLinkReferences: entry.EVM.Bytecode.LinkReferences,
				DeployedLinkReferences: entry.EVM.DeployedBytecode.LinkReferences,
				ImmutableReferences:    entry.EVM.DeployedBytecode.ImmutableReferences,
			}
			if in == nil || in.Language != LanguageYul {
				if len(entry.ABI) > 0 && string(entry.ABI) != "null" {
					a.ABI = entry.ABI
				}
			}
			out.Artifacts = append(out.Artifacts, a)
		}
	}
	return out, nil
}
