package domain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pendergraft/verifactory/internal/bytecode"
	"github.com/pendergraft/verifactory/internal/compiler"
)

// Match compares one compiled artifact with the on-chain code. Creation code
// is compared when the target has it, deployed code otherwise. It returns
// ErrNoMatch when the executable parts differ, and an
// *bytecode.UnresolvedLibraryError when the artifact references a library
// missing from libraries.
func Match(artifact compiler.Artifact, target Target, libraries map[string]string) (*MatchOutcome, error) {
	localCreation, err := bytecode.DecodeLinked(artifact.CreationBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding creation bytecode of %s: %w", artifact.ContractName, err)
	}
	localDeployed, err := bytecode.DecodeLinked(artifact.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding deployed bytecode of %s: %w", artifact.ContractName, err)
	}

	outcome := &MatchOutcome{
		Artifact: artifact,
		Creation: bytecode.Segment(localCreation),
		Deployed: bytecode.Segment(localDeployed),
	}

	var local, onChain []byte
	var masks []bytecode.Range
	if target.Creation != nil {
		n := len(localCreation)
		if n == 0 || len(target.Creation) < n {
			return nil, ErrNoMatch
		}
		args := hexutil.Encode(target.Creation[n:])
		outcome.ConstructorArguments = &args

		local, onChain = localCreation, target.Creation[:n]
		masks, err = linkMasks(artifact.CreationLinkReferences, artifact.CreationBytecode, libraries)
		if err != nil {
			return nil, err
		}
	} else {
		if len(localDeployed) == 0 {
			return nil, ErrNoMatch
		}
		local, onChain = localDeployed, target.Deployed
		masks, err = linkMasks(artifact.DeployedLinkReferences, artifact.DeployedBytecode, libraries)
		if err != nil {
			return nil, err
		}
		masks = append(masks, bytecode.ImmutableMasks(artifact.ImmutableReferences)...)
	}

	local, onChain = bytecode.Normalize(local, onChain, masks)
	localSeg := bytecode.Segment(local)
	chainSeg := bytecode.Segment(onChain)

	if !bytes.Equal(localSeg.Main, chainSeg.Main) {
		return nil, ErrNoMatch
	}
	if bytes.Equal(localSeg.Meta, chainSeg.Meta) {
		outcome.MatchType = MatchFull
	} else {
		outcome.MatchType = MatchPartial
	}
	return outcome, nil
}

// linkMasks prefers the link references reported by the compiler and falls
// back to scanning the hex for placeholders.
func linkMasks(refs bytecode.LinkReferences, compiledHex string, libraries map[string]string) ([]bytecode.Range, error) {
	if len(refs) > 0 {
		return bytecode.LinkMasks(refs, libraries)
	}
	return bytecode.PlaceholderMasks(compiledHex, libraries)
}

// MatchBest tries every artifact in order. The first FULL match wins,
// otherwise the first PARTIAL one. When nothing matches, an unresolved
// library error is reported in preference to ErrNoMatch.
func MatchBest(artifacts []compiler.Artifact, target Target, libraries map[string]string) (*MatchOutcome, error) {
	var partial *MatchOutcome
	var libErr error
	for _, a := range artifacts {
		if a.CreationBytecode == "" && a.DeployedBytecode == "" {
			continue
		}
		outcome, err := Match(a, target, libraries)
		if err != nil {
			var unresolved *bytecode.UnresolvedLibraryError
			switch {
			case errors.Is(err, ErrNoMatch):
				continue
			case errors.As(err, &unresolved):
				if libErr == nil {
					libErr = err
				}
				continue
			default:
				return nil, err
			}
		}
		if outcome.MatchType == MatchFull {
			return outcome, nil
		}
		if partial == nil {
			partial = outcome
		}
	}
	if partial != nil {
		return partial, nil
	}
	if libErr != nil {
		return nil, libErr
	}
	return nil, ErrNoMatch
}
