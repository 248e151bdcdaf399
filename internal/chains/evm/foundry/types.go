package foundry

import (
	"encoding/json"
	"sort"
	"strings"
)

// Artifact is a Foundry out/{Source}.sol/{Contract}.json file.
type Artifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

func (a *Artifact) hasBytecode() bool {
	return a.Bytecode.Object != "" && a.Bytecode.Object != "0x"
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object string `json:"object"`
}

// Metadata is the solc metadata embedded as rawMetadata.
type Metadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string            `json:"language"`
	Settings Settings          `json:"settings"`
	Sources  map[string]Source `json:"sources"`
}

// Settings are the compiler settings recorded in metadata.
type Settings struct {
	CompilationTarget map[string]string `json:"compilationTarget"`
	EVMVersion        string            `json:"evmVersion"`
	// "path:Lib" -> address
	Libraries  map[string]string `json:"libraries"`
	Metadata   *MetadataSettings `json:"metadata,omitempty"`
	Optimizer  Optimizer         `json:"optimizer"`
	Remappings []string          `json:"remappings"`
	ViaIR      bool              `json:"viaIR"`
}

func (s Settings) sourcePath() string {
	paths := make([]string, 0, len(s.CompilationTarget))
	for p := range s.CompilationTarget {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// libraries converts the flat metadata form into the nested
// standard-json form: file -> library -> address.
func (s Settings) libraries() map[string]map[string]string {
	if len(s.Libraries) == 0 {
		return nil
	}
	out := make(map[string]map[string]string)
	for key, addr := range s.Libraries {
		file, name := "", key
		if i := strings.LastIndex(key, ":"); i >= 0 {
			file, name = key[:i], key[i+1:]
		}
		if out[file] == nil {
			out[file] = make(map[string]string)
		}
		out[file][name] = addr
	}
	return out
}

// MetadataSettings are the settings.metadata options.
type MetadataSettings struct {
	BytecodeHash      string `json:"bytecodeHash,omitempty"`
	UseLiteralContent bool   `json:"useLiteralContent,omitempty"`
	AppendCBOR        *bool  `json:"appendCBOR,omitempty"`
}

// Optimizer contains optimizer settings
type Optimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// Source is a metadata source entry. Content is only set when the
// project compiles with useLiteralContent.
type Source struct {
	Keccak256 string `json:"keccak256"`
	Content   string `json:"content,omitempty"`
}

// BuildInfo represents a Foundry build-info file (hh-sol-build-info-1 format)
type BuildInfo struct {
	SolcLongVersion string          `json:"solcLongVersion"` // "0.8.28+commit.7893614a"
	Input           json.RawMessage `json:"input"`
	Output          json.RawMessage `json:"output"`
}

func (bi *BuildInfo) produced(sourcePath, contract string) bool {
	var output struct {
		Contracts map[string]map[string]json.RawMessage `json:"contracts"`
	}
	if err := json.Unmarshal(bi.Output, &output); err != nil {
		return false
	}
	_, ok := output.Contracts[sourcePath][contract]
	return ok
}

type standardJSONInput struct {
	Language string                   `json:"language"`
	Sources  map[string]sourceContent `json:"sources"`
	Settings inputSettings            `json:"settings"`
}

type sourceContent struct {
	Content string `json:"content"`
}

type inputSettings struct {
	Optimizer       Optimizer                      `json:"optimizer"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	ViaIR           bool                           `json:"viaIR,omitempty"`
	Libraries       map[string]map[string]string   `json:"libraries,omitempty"`
	Remappings      []string                       `json:"remappings,omitempty"`
	Metadata        inputMetadata                  `json:"metadata"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

type inputMetadata struct {
	BytecodeHash      string `json:"bytecodeHash,omitempty"`
	UseLiteralContent bool   `json:"useLiteralContent,omitempty"`
	AppendCBOR        *bool  `json:"appendCBOR,omitempty"`
}
