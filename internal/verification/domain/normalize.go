package domain

import (
	"strings"

	"github.com/pendergraft/verifactory/internal/bytecode"
	"github.com/pendergraft/verifactory/internal/compiler"
	"github.com/pendergraft/verifactory/internal/validation"
)

// NormalizeRequest converts a request into the compilation job to run and the
// on-chain code to compare against. Sourcify requests are not compiled
// locally and are rejected.
func NormalizeRequest(req Request) (compiler.Job, Target, error) {
	switch r := req.(type) {
	case SolidityMultiPart:
		target, version, err := normalizeCommon(r.CreationBytecode, r.DeployedBytecode, r.CompilerVersion)
		if err != nil {
			return compiler.Job{}, Target{}, err
		}
		evmVersion, err := normalizeSources(r.Sources, r.EVMVersion)
		if err != nil {
			return compiler.Job{}, Target{}, err
		}
		return compiler.Job{
			Toolchain:    compiler.Solidity,
			Version:      version,
			Sources:      r.Sources,
			EVMVersion:   evmVersion,
			Optimization: compiler.OptimizationFromRuns(r.OptimizationRuns),
			Libraries:    r.Libraries,
		}, target, nil

	case SolidityStandardJSON:
		target, version, err := normalizeCommon(r.CreationBytecode, r.DeployedBytecode, r.CompilerVersion)
		if err != nil {
			return compiler.Job{}, Target{}, err
		}
		if strings.TrimSpace(r.Input) == "" {
			return compiler.Job{}, Target{}, malformed("standard-json input is empty")
		}
		// The input is parsed by the invoker; invalid JSON surfaces there as
		// a compilation error.
		return compiler.Job{
			Toolchain: compiler.Solidity,
			Version:   version,
			RawInput:  r.Input,
		}, target, nil

	case VyperMultiPart:
		target, version, err := normalizeCommon(r.CreationBytecode, r.DeployedBytecode, r.CompilerVersion)
		if err != nil {
			return compiler.Job{}, Target{}, err
		}
		evmVersion, err := normalizeSources(r.Sources, r.EVMVersion)
		if err != nil {
			return compiler.Job{}, Target{}, err
		}
		return compiler.Job{
			Toolchain:  compiler.Vyper,
			Version:    version,
			Sources:    r.Sources,
			EVMVersion: evmVersion,
		}, target, nil

	case SourcifyRequest:
		return compiler.Job{}, Target{}, malformed("sourcify requests are not compiled locally")

	default:
		return compiler.Job{}, Target{}, malformed("unsupported request type %T", req)
	}
}

func normalizeCommon(creation *string, deployed, version string) (Target, compiler.Version, error) {
	target, err := parseTarget(creation, deployed)
	if err != nil {
		return Target{}, compiler.Version{}, err
	}
	if strings.TrimSpace(version) == "" {
		return Target{}, compiler.Version{}, malformed("compiler version is required")
	}
	v, err := compiler.ParseVersion(version)
	if err != nil {
		return Target{}, compiler.Version{}, malformed("invalid compiler version: %v", err)
	}
	return target, v, nil
}

// parseTarget decodes the on-chain code. An empty creation string counts as
// absent.
func parseTarget(creation *string, deployed string) (Target, error) {
	var t Target
	if creation != nil && strings.TrimSpace(*creation) != "" {
		b, err := bytecode.DecodeHex(*creation)
		if err != nil {
			return Target{}, malformed("invalid creation bytecode: %v", err)
		}
		t.Creation = b
	}

	b, err := bytecode.DecodeHex(deployed)
	if err != nil {
		return Target{}, malformed("invalid deployed bytecode: %v", err)
	}
	t.Deployed = b

	if t.Creation == nil && len(t.Deployed) == 0 {
		return Target{}, malformed("creation bytecode is absent and deployed bytecode is empty")
	}
	return t, nil
}

// normalizeSources checks multi-part sources and returns the EVM version to
// compile for. "default" selects the compiler default.
func normalizeSources(sources map[string]string, evmVersion string) (string, error) {
	if len(sources) == 0 {
		return "", malformed("sources are empty")
	}
	for path := range sources {
		if err := validation.ValidateSourcePath(path); err != nil {
			return "", malformed("%v", err)
		}
	}
	evmVersion = strings.TrimSpace(evmVersion)
	if strings.EqualFold(evmVersion, "default") {
		return "", nil
	}
	v, err := validation.CanonicalEVMVersion(evmVersion)
	if err != nil {
		return "", malformed("%v", err)
	}
	return v, nil
}

func languageOf(t compiler.Toolchain) string {
	if t == compiler.Vyper {
		return languageVyper
	}
	return languageSolidity
}
