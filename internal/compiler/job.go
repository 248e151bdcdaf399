// Package compiler turns compilation jobs into compiler standard-json inputs,
// runs versioned compiler binaries, and parses their output into artifacts.
package compiler

import (
	"fmt"
)

// Toolchain identifies a compiler family.
type Toolchain string

const (
	Solidity Toolchain = "solidity"
	Vyper    Toolchain = "vyper"
)

// Binary returns the executable name for the toolchain.
func (t Toolchain) Binary() string {
	switch t {
	case Vyper:
		return "vyper"
	default:
		return "solc"
	}
}

// Valid reports whether t is a known toolchain.
func (t Toolchain) Valid() bool {
	return t == Solidity || t == Vyper
}

type optimizationMode int

const (
	optimizationUnset optimizationMode = iota
	optimizationDisabled
	optimizationEnabled
)

// Optimization is the optimizer setting of a job. The zero value means the
// setting is not modeled, which is the case for Vyper.
type Optimization struct {
	mode optimizationMode
	runs int
}

// OptimizationDisabled returns a disabled optimizer setting.
func OptimizationDisabled() Optimization {
	return Optimization{mode: optimizationDisabled}
}

// OptimizationEnabled returns an enabled optimizer setting with the given runs.
func OptimizationEnabled(runs int) Optimization {
	return Optimization{mode: optimizationEnabled, runs: runs}
}

// OptimizationFromRuns maps an optional runs value to a setting: absent means
// disabled.
func OptimizationFromRuns(runs *int) Optimization {
	if runs == nil {
		return OptimizationDisabled()
	}
	return OptimizationEnabled(*runs)
}

// Modeled reports whether the job carries an optimizer setting at all.
func (o Optimization) Modeled() bool { return o.mode != optimizationUnset }

// Enabled reports whether the optimizer is on.
func (o Optimization) Enabled() bool { return o.mode == optimizationEnabled }

// Runs returns the optimizer runs when enabled.
func (o Optimization) Runs() (int, bool) {
	return o.runs, o.mode == optimizationEnabled
}

// Job is one compilation request. Exactly one of Sources or RawInput is set.
type Job struct {
	Toolchain    Toolchain
	Version      Version
	Sources      map[string]string
	EVMVersion   string
	Optimization Optimization
	Libraries    map[string]string
	RawInput     string
}

// IsStandardJSON reports whether the job carries a raw standard-json input.
func (j Job) IsStandardJSON() bool {
	return j.RawInput != ""
}

// Validate checks the structural invariants of a job.
func (j Job) Validate() error {
	if !j.Toolchain.Valid() {
		return fmt.Errorf("unknown toolchain %q", j.Toolchain)
	}
	if j.Version.String() == "" {
		return fmt.Errorf("compiler version is required")
	}
	hasSources := len(j.Sources) > 0
	if hasSources == j.IsStandardJSON() {
		return fmt.Errorf("exactly one of sources or standard-json input must be set")
	}
	if j.Toolchain == Vyper && j.Optimization.Modeled() {
		return fmt.Errorf("optimization is not configurable for vyper jobs")
	}
	return nil
}

// Invocation is a single compiler run: one standard-json input for one
// compiler build.
type Invocation struct {
	Toolchain Toolchain
	Version   Version
	Input     *Input
}
