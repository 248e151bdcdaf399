package sourcify

import (
	"encoding/json"
	"sort"
)

// Metadata is the solc metadata.json stored by Sourcify.
type Metadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Language string `json:"language"`
	Output   struct {
		ABI json.RawMessage `json:"abi"`
	} `json:"output"`
	Settings json.RawMessage `json:"settings"`
}

type metadataSettings struct {
	CompilationTarget map[string]string `json:"compilationTarget"`
	EVMVersion        string            `json:"evmVersion"`
	Libraries         map[string]string `json:"libraries"`
	Optimizer         *struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	} `json:"optimizer"`
}

func (m *Metadata) settings() metadataSettings {
	var s metadataSettings
	if len(m.Settings) > 0 {
		_ = json.Unmarshal(m.Settings, &s)
	}
	return s
}

// CompilationTarget returns the file and contract name the metadata was
// produced for.
func (m *Metadata) CompilationTarget() (file, contract string) {
	target := m.settings().CompilationTarget
	files := make([]string, 0, len(target))
	for f := range target {
		files = append(files, f)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return "", ""
	}
	return files[0], target[files[0]]
}

// EVMVersion returns the configured EVM version, or "" for the default.
func (m *Metadata) EVMVersion() string {
	return m.settings().EVMVersion
}

// Optimizer returns the optimizer flag and runs.
func (m *Metadata) Optimizer() (enabled bool, runs int, ok bool) {
	o := m.settings().Optimizer
	if o == nil {
		return false, 0, false
	}
	return o.Enabled, o.Runs, true
}

// Libraries returns the linked libraries keyed by library name. Metadata keys
// are "path:Lib".
func (m *Metadata) Libraries() map[string]string {
	out := map[string]string{}
	for key, addr := range m.settings().Libraries {
		name := key
		for i := len(key) - 1; i >= 0; i-- {
			if key[i] == ':' {
				name = key[i+1:]
				break
			}
		}
		out[name] = addr
	}
	return out
}
