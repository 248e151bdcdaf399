package compiler

import (
	"fmt"
	"strings"
)

// CompilationError reports that the compiler rejected the input.
type CompilationError struct {
	Messages []string
}

func (e *CompilationError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// ToolchainUnavailableError reports that no binary is installed for the
// requested compiler version.
type ToolchainUnavailableError struct {
	Toolchain Toolchain
	Version   string
}

func (e *ToolchainUnavailableError) Error() string {
	return fmt.Sprintf("%s compiler version not found: %s", e.Toolchain, e.Version)
}
