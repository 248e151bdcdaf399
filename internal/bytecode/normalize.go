package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Range is a byte region inside bytecode.
type Range struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// LinkReferences are the library slots reported by the compiler:
// file -> library -> offsets.
type LinkReferences map[string]map[string][]Range

// ImmutableReferences are the immutable slots reported by the compiler for
// deployed code: AST id -> offsets.
type ImmutableReferences map[string][]Range

// UnresolvedLibraryError is returned when compiled code references a library
// the caller supplied no address for.
type UnresolvedLibraryError struct {
	Library string
}

func (e *UnresolvedLibraryError) Error() string {
	return fmt.Sprintf("library %q is referenced by the compiled code but no address was provided", e.Library)
}

// LinkMasks returns the ranges occupied by library addresses. Every library in
// refs must be covered by a key in libraries, either "Lib" or "path:Lib".
func LinkMasks(refs LinkReferences, libraries map[string]string) ([]Range, error) {
	var masks []Range
	for _, file := range sortedKeys(refs) {
		libs := refs[file]
		for _, name := range sortedKeys(libs) {
			if !hasLibrary(libraries, file, name) {
				return nil, &UnresolvedLibraryError{Library: file + ":" + name}
			}
			masks = append(masks, libs[name]...)
		}
	}
	return masks, nil
}

// PlaceholderMasks derives library masks by scanning compiler hex output.
// It is used when the compiler did not report link references.
func PlaceholderMasks(compiledHex string, libraries map[string]string) ([]Range, error) {
	var masks []Range
	for _, p := range FindPlaceholders(compiledHex) {
		resolved := false
		for key := range libraries {
			if matchesPlaceholder(p.Token, key) {
				resolved = true
				break
			}
		}
		if !resolved {
			return nil, &UnresolvedLibraryError{Library: p.Token}
		}
		masks = append(masks, Range{Start: p.Offset, Length: 20})
	}
	return masks, nil
}

// ImmutableMasks flattens immutable references into ranges.
func ImmutableMasks(refs ImmutableReferences) []Range {
	var masks []Range
	for _, id := range sortedKeys(refs) {
		masks = append(masks, refs[id]...)
	}
	return masks
}

// Normalize returns copies of both inputs with every in-bounds mask range
// zeroed. Out-of-bounds portions of a range are ignored. Applying it twice
// yields the same result as applying it once.
func Normalize(compiled, onChain []byte, masks []Range) ([]byte, []byte) {
	return Mask(compiled, masks), Mask(onChain, masks)
}

// Mask returns a copy of code with the given ranges zeroed.
func Mask(code []byte, masks []Range) []byte {
	out := make([]byte, len(code))
	copy(out, code)
	for _, m := range masks {
		if m.Length <= 0 || m.Start < 0 || m.Start >= len(out) {
			continue
		}
		end := m.Start + m.Length
		if end > len(out) {
			end = len(out)
		}
		clear(out[m.Start:end])
	}
	return out
}

func hasLibrary(libraries map[string]string, file, name string) bool {
	if _, ok := libraries[name]; ok {
		return true
	}
	if _, ok := libraries[file+":"+name]; ok {
		return true
	}
	return false
}

func libraryName(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
