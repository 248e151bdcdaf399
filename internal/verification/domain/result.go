package domain

import (
	"strings"

	"github.com/pendergraft/verifactory/internal/bytecode"
	"github.com/pendergraft/verifactory/internal/compiler"
	"github.com/pendergraft/verifactory/internal/sourcify"
)

const defaultEVMVersion = "default"

// AssembleResult builds the verification result for a matched artifact.
func AssembleResult(job compiler.Job, out *compiler.Output, outcome *MatchOutcome) *VerificationResult {
	view := out.Input.View()

	result := &VerificationResult{
		FileName:                   outcome.Artifact.FileName,
		ContractName:               outcome.Artifact.ContractName,
		CompilerVersion:            job.Version.String(),
		Sources:                    out.Input.SourceContents(),
		EVMVersion:                 view.EVMVersion,
		ContractLibraries:          resultLibraries(job, view),
		CompilerSettings:           string(out.Input.Settings),
		ConstructorArguments:       outcome.ConstructorArguments,
		LocalCreationInputParts:    outcome.Creation.AllParts(),
		LocalDeployedBytecodeParts: outcome.Deployed.AllParts(),
		MatchType:                  outcome.MatchType,
	}
	if result.EVMVersion == "" {
		result.EVMVersion = defaultEVMVersion
	}
	if len(outcome.Artifact.ABI) > 0 {
		abi := string(outcome.Artifact.ABI)
		result.ABI = &abi
	}

	// Vyper has no optimizer setting to report.
	if job.Toolchain == compiler.Solidity {
		enabled := false
		if o := view.Optimizer; o != nil {
			if o.Enabled != nil {
				enabled = *o.Enabled
			}
			if enabled && o.Runs != nil {
				runs := *o.Runs
				result.OptimizationRuns = &runs
			}
		}
		result.Optimization = &enabled
	}
	return result
}

// resultLibraries reports libraries by name. Multi-part jobs carry them
// directly; standard-json inputs declare them per file in the settings.
func resultLibraries(job compiler.Job, view compiler.SettingsView) map[string]string {
	libs := map[string]string{}
	if !job.IsStandardJSON() {
		for name, addr := range job.Libraries {
			libs[name] = addr
		}
		return libs
	}
	for _, fileLibs := range view.Libraries {
		for name, addr := range fileLibs {
			libs[name] = addr
		}
	}
	return libs
}

// AssembleSourcifyResult builds a result from the files Sourcify stored for a
// verified contract. Sourcify does not return bytecode, so the parts are empty.
func AssembleSourcifyResult(files *sourcify.Files, matchType MatchType) *VerificationResult {
	m := files.Metadata
	fileName, contractName := m.CompilationTarget()

	result := &VerificationResult{
		FileName:                   fileName,
		ContractName:               contractName,
		CompilerVersion:            m.Compiler.Version,
		Sources:                    files.Sources,
		EVMVersion:                 m.EVMVersion(),
		ContractLibraries:          m.Libraries(),
		CompilerSettings:           string(m.Settings),
		LocalCreationInputParts:    []bytecode.Part{},
		LocalDeployedBytecodeParts: []bytecode.Part{},
		MatchType:                  matchType,
	}
	if result.EVMVersion == "" {
		result.EVMVersion = defaultEVMVersion
	}
	if len(m.Output.ABI) > 0 {
		abi := string(m.Output.ABI)
		result.ABI = &abi
	}
	if !strings.EqualFold(m.Language, "vyper") {
		if enabled, runs, ok := m.Optimizer(); ok {
			result.Optimization = &enabled
			if enabled {
				result.OptimizationRuns = &runs
			}
		}
	}
	return result
}

// sourcifyMatchType maps a Sourcify status onto a verdict.
func sourcifyMatchType(status string) MatchType {
	switch status {
	case sourcify.StatusPerfect:
		return MatchFull
	case sourcify.StatusPartial:
		return MatchPartial
	default:
		return MatchUnspecified
	}
}
