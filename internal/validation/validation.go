// Package validation provides input validation for verifactory.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// evmVersions are the EVM targets accepted by solc and vyper, oldest first.
var evmVersions = []string{
	"homestead",
	"tangerineWhistle",
	"spuriousDragon",
	"byzantium",
	"constantinople",
	"petersburg",
	"istanbul",
	"berlin",
	"london",
	"paris",
	"shanghai",
	"cancun",
	"prague",
	"osaka",
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	// Check hex characters
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChain validates a chain ID given as a decimal string
func ValidateChain(chain string) error {
	if chain == "" {
		return errors.New("chain is required")
	}
	id, err := strconv.ParseUint(chain, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chain %q: must be a decimal chain ID", chain)
	}
	if id == 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// CanonicalEVMVersion returns the compiler spelling of an EVM version, matched
// case-insensitively. An empty version stays empty.
func CanonicalEVMVersion(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	for _, known := range evmVersions {
		if strings.EqualFold(v, known) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown EVM version %q", v)
}

// ValidateSourcePath rejects source paths that are empty or escape the
// compilation root.
func ValidateSourcePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("source path cannot be empty")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("source path %q must be relative", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return fmt.Errorf("source path %q escapes the source root", path)
		}
	}
	return nil
}
