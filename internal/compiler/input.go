package compiler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Standard-json languages.
const (
	LanguageSolidity = "Solidity"
	LanguageYul      = "Yul"
	LanguageVyper    = "Vyper"
)

// Metadata hash variants tried for solc >= 0.6.0, in order.
var bytecodeHashVariants = []string{"ipfs", "none", "bzzr1"}

var outputFields = []string{"abi", "evm.bytecode", "evm.deployedBytecode"}

// Input is a compiler standard-json input. Settings are kept as raw JSON so
// that fields this package does not know about reach the compiler unchanged.
type Input struct {
	Language string                `json:"language"`
	Sources  map[string]SourceFile `json:"sources"`
	Settings json.RawMessage       `json:"settings,omitempty"`
}

// SourceFile is a single entry of Input.Sources.
type SourceFile struct {
	Content   string   `json:"content,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	Keccak256 string   `json:"keccak256,omitempty"`
}

// SettingsView is the subset of settings needed to describe a verified
// contract.
type SettingsView struct {
	Optimizer *struct {
		Enabled *bool `json:"enabled"`
		Runs    *int  `json:"runs"`
	} `json:"optimizer"`
	EVMVersion string                       `json:"evmVersion"`
	Libraries  map[string]map[string]string `json:"libraries"`
	Metadata   *struct {
		BytecodeHash string `json:"bytecodeHash"`
	} `json:"metadata"`
}

type settings struct {
	Optimizer  *optimizerSettings           `json:"optimizer,omitempty"`
	EVMVersion string                       `json:"evmVersion,omitempty"`
	Libraries  map[string]map[string]string `json:"libraries,omitempty"`
	Metadata   *metadataSettings            `json:"metadata,omitempty"`
}

type optimizerSettings struct {
	Enabled bool `json:"enabled"`
	Runs    *int `json:"runs,omitempty"`
}

type metadataSettings struct {
	BytecodeHash string `json:"bytecodeHash"`
}

// ParseStandardJSON decodes a raw standard-json input.
func ParseStandardJSON(raw string) (*Input, error) {
	var in Input
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	if in.Language == "" {
		return nil, fmt.Errorf("missing language")
	}
	if len(in.Sources) == 0 {
		return nil, fmt.Errorf("no sources")
	}
	return &in, nil
}

// View decodes the settings fields used in results. Unknown or malformed
// settings produce an empty view.
func (in *Input) View() SettingsView {
	var v SettingsView
	if len(in.Settings) > 0 {
		_ = json.Unmarshal(in.Settings, &v)
	}
	return v
}

// SourceContents returns path -> content for the input's sources.
func (in *Input) SourceContents() map[string]string {
	out := make(map[string]string, len(in.Sources))
	for path, src := range in.Sources {
		out[path] = src.Content
	}
	return out
}

// Encode renders the input sent to the compiler, with an output selection
// requesting everything the matcher needs.
func (in *Input) Encode(t Toolchain) ([]byte, error) {
	s := map[string]any{}
	if len(in.Settings) > 0 {
		if err := json.Unmarshal(in.Settings, &s); err != nil {
			return nil, fmt.Errorf("decoding settings: %w", err)
		}
		if s == nil {
			s = map[string]any{}
		}
	}
	if t == Vyper {
		s["outputSelection"] = map[string]any{"*": outputFields}
	} else {
		s["outputSelection"] = map[string]any{"*": map[string]any{"*": outputFields}}
	}
	rawSettings, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Input{Language: in.Language, Sources: in.Sources, Settings: rawSettings})
}

// BuildInvocations expands a job into the compiler runs to try, in order.
// Standard-json jobs produce a single run. Solidity multi-part jobs are split
// into Solidity and Yul inputs, and for solc >= 0.6.0 each input is tried with
// every metadata hash variant.
func BuildInvocations(job Job) ([]Invocation, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if job.IsStandardJSON() {
		in, err := ParseStandardJSON(job.RawInput)
		if err != nil {
			return nil, &CompilationError{Messages: []string{fmt.Sprintf("content is not a valid standard-json: %v", err)}}
		}
		return []Invocation{{Toolchain: job.Toolchain, Version: job.Version, Input: in}}, nil
	}

	if job.Toolchain == Vyper {
		in, err := vyperInput(job)
		if err != nil {
			return nil, err
		}
		return []Invocation{{Toolchain: Vyper, Version: job.Version, Input: in}}, nil
	}

	var variants []string
	if job.Version.AtLeast("v0.6.0") {
		variants = bytecodeHashVariants
	} else {
		variants = []string{""}
	}

	var invocations []Invocation
	for _, group := range splitSolidity(job.Sources) {
		for _, variant := range variants {
			in, err := solidityInput(job, group.language, group.sources, variant)
			if err != nil {
				return nil, err
			}
			invocations = append(invocations, Invocation{Toolchain: Solidity, Version: job.Version, Input: in})
		}
	}
	return invocations, nil
}

type sourceGroup struct {
	language string
	sources  map[string]string
}

// splitSolidity separates .yul files, which solc compiles as a separate
// language input.
func splitSolidity(sources map[string]string) []sourceGroup {
	sol := map[string]string{}
	yul := map[string]string{}
	for path, content := range sources {
		if strings.HasSuffix(path, ".yul") {
			yul[path] = content
		} else {
			sol[path] = content
		}
	}
	var groups []sourceGroup
	if len(sol) > 0 {
		groups = append(groups, sourceGroup{language: LanguageSolidity, sources: sol})
	}
	if len(yul) > 0 {
		groups = append(groups, sourceGroup{language: LanguageYul, sources: yul})
	}
	return groups
}

func solidityInput(job Job, language string, sources map[string]string, bytecodeHash string) (*Input, error) {
	s := settings{EVMVersion: job.EVMVersion}
	if job.Optimization.Modeled() {
		s.Optimizer = &optimizerSettings{Enabled: job.Optimization.Enabled()}
		if runs, ok := job.Optimization.Runs(); ok {
			s.Optimizer.Runs = &runs
		}
	}
	if bytecodeHash != "" {
		s.Metadata = &metadataSettings{BytecodeHash: bytecodeHash}
	}
	if language == LanguageSolidity {
		s.Libraries = librariesPerFile(sources, job.Libraries)
	}
	return newInput(language, sources, s)
}

func vyperInput(job Job) (*Input, error) {
	return newInput(LanguageVyper, job.Sources, settings{EVMVersion: job.EVMVersion})
}

func newInput(language string, sources map[string]string, s settings) (*Input, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	files := make(map[string]SourceFile, len(sources))
	for path, content := range sources {
		files[path] = SourceFile{Content: content}
	}
	return &Input{Language: language, Sources: files, Settings: raw}, nil
}

// librariesPerFile applies every library address to every source file, since
// the file that declares a library is not known. Keys of the form "path:Lib"
// are applied to that path only.
func librariesPerFile(sources map[string]string, libraries map[string]string) map[string]map[string]string {
	if len(libraries) == 0 {
		return nil
	}
	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := map[string]map[string]string{}
	add := func(path, name, addr string) {
		if out[path] == nil {
			out[path] = map[string]string{}
		}
		out[path][name] = addr
	}
	for key, addr := range libraries {
		if i := strings.LastIndex(key, ":"); i > 0 {
			add(key[:i], key[i+1:], addr)
			continue
		}
		for _, p := range paths {
			add(p, key, addr)
		}
	}
	return out
}
