// Package foundry reads Foundry build output and turns it into
// standard-json verification input.
package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pendergraft/verifactory/internal/chains"
)

var _ chains.Builder = (*Builder)(nil)

// Builder implements chains.Builder for Foundry projects
type Builder struct{}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Discover finds the deployable contracts of a Foundry project. Only
// contracts compiled from src/ are returned.
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]chains.Contract, error) {
	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("out directory not found - run 'forge build' first")
	}

	var found []chains.Contract
	seen := make(map[string]bool)

	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		// out/{Source}.sol/{Contract}.json
		if !strings.HasSuffix(info.Name(), ".json") || !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}

		name := strings.TrimSuffix(info.Name(), ".json")
		if seen[name] || !wanted(name, opts) {
			return nil
		}

		artifact, meta, err := readArtifact(path)
		if err != nil || !artifact.hasBytecode() {
			return nil
		}
		sourcePath := meta.Settings.sourcePath()
		if !strings.HasPrefix(sourcePath, "src/") || excludedPath(sourcePath, opts.ExcludePaths) {
			return nil
		}

		seen[name] = true
		found = append(found, chains.Contract{
			Name:         name,
			SourcePath:   sourcePath,
			ArtifactPath: path,
		})
		return nil
	})
	return found, err
}

func wanted(name string, opts chains.DiscoverOptions) bool {
	if len(opts.Contracts) > 0 {
		included := false
		for _, c := range opts.Contracts {
			if c == name {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range opts.Exclude {
		if strings.HasPrefix(name, pattern) || strings.HasSuffix(name, pattern) {
			return false
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return false
		}
	}
	return true
}

func excludedPath(sourcePath string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(sourcePath, pattern) {
			return true
		}
		if matched, _ := filepath.Match(pattern, sourcePath); matched {
			return true
		}
	}
	return false
}

// VerificationInput builds the standard-json input for c. The input is
// rebuilt from the artifact's metadata so it contains only the files the
// contract was compiled from, which keeps the metadata hash reproducible.
// When a source listed in the metadata is missing on disk, the project's
// build-info is used instead.
func (b *Builder) VerificationInput(dir string, c chains.Contract) (*chains.VerificationInput, error) {
	_, meta, err := readArtifact(c.ArtifactPath)
	if err != nil {
		return nil, err
	}

	input, err := perContractInput(dir, meta)
	if err == nil {
		return &chains.VerificationInput{
			StandardJSON:    input,
			CompilerVersion: meta.Compiler.Version,
		}, nil
	}

	vi, biErr := b.buildInfoInput(dir, c)
	if biErr != nil {
		return nil, fmt.Errorf("%v; %w", err, biErr)
	}
	return vi, nil
}

// buildInfoInput finds the build-info whose output contains c.
func (b *Builder) buildInfoInput(dir string, c chains.Contract) (*chains.VerificationInput, error) {
	buildInfoDir := filepath.Join(dir, "out", "build-info")
	entries, err := os.ReadDir(buildInfoDir)
	if err != nil {
		return nil, fmt.Errorf("reading build-info directory: %w", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(buildInfoDir, entry.Name()))
		if err != nil {
			continue
		}
		var info BuildInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		if !info.produced(c.SourcePath, c.Name) {
			continue
		}
		input, err := stripFoundryKeys(info.Input)
		if err != nil {
			continue
		}
		return &chains.VerificationInput{
			StandardJSON:    input,
			CompilerVersion: info.SolcLongVersion,
		}, nil
	}
	return nil, fmt.Errorf("build-info not found for contract %s", c.Name)
}

// foundryKeys are top-level keys Foundry adds that the Solidity compiler
// rejects in standard-json input.
var foundryKeys = []string{"allowPaths", "basePath", "includePaths", "version"}

func stripFoundryKeys(input json.RawMessage) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(input, &m); err != nil {
		return nil, err
	}
	for _, key := range foundryKeys {
		delete(m, key)
	}
	return json.Marshal(m)
}

func perContractInput(dir string, meta *Metadata) ([]byte, error) {
	if len(meta.Sources) == 0 {
		return nil, fmt.Errorf("metadata has no sources")
	}

	sources := make(map[string]sourceContent, len(meta.Sources))
	for path, src := range meta.Sources {
		if src.Content != "" {
			sources[path] = sourceContent{Content: src.Content}
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, path))
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", path, err)
		}
		sources[path] = sourceContent{Content: string(content)}
	}

	lang := meta.Language
	if lang == "" {
		lang = "Solidity"
	}

	opt := meta.Settings.Optimizer
	// solc defaults runs to 200; metadata omits it for some versions
	if opt.Enabled && opt.Runs == 0 {
		opt.Runs = 200
	}

	metaOut := inputMetadata{BytecodeHash: "ipfs"}
	if m := meta.Settings.Metadata; m != nil {
		if m.BytecodeHash != "" {
			metaOut.BytecodeHash = m.BytecodeHash
		}
		metaOut.UseLiteralContent = m.UseLiteralContent
		metaOut.AppendCBOR = m.AppendCBOR
	}

	input := standardJSONInput{
		Language: lang,
		Sources:  sources,
		Settings: inputSettings{
			Optimizer:       opt,
			EVMVersion:      meta.Settings.EVMVersion,
			ViaIR:           meta.Settings.ViaIR,
			Libraries:       meta.Settings.libraries(),
			Remappings:      meta.Settings.Remappings,
			Metadata:        metaOut,
			OutputSelection: outputSelection(),
		},
	}
	return json.MarshalIndent(input, "", "  ")
}

func outputSelection() map[string]map[string][]string {
	return map[string]map[string][]string{
		"*": {"*": {"abi", "evm.bytecode", "evm.deployedBytecode", "metadata"}},
	}
}

func readArtifact(path string) (*Artifact, *Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if a.RawMetadata == "" {
		return nil, nil, fmt.Errorf("artifact %s has no rawMetadata", filepath.Base(path))
	}
	var m Metadata
	if err := json.Unmarshal([]byte(a.RawMetadata), &m); err != nil {
		return nil, nil, fmt.Errorf("parsing rawMetadata: %w", err)
	}
	return &a, &m, nil
}
