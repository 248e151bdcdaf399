package bytecode

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// placeholderLen is the hex width of a 20-byte address slot.
const placeholderLen = 40

// Placeholder is an unlinked library slot found in compiler hex output.
type Placeholder struct {
	// Offset in bytes into the decoded bytecode.
	Offset int
	Token  string
}

// PlaceholderFor returns the solc >= 0.5 link placeholder for a fully
// qualified library name such as "contracts/Math.sol:Math".
func PlaceholderFor(qualifiedName string) string {
	h := crypto.Keccak256([]byte(qualifiedName))
	return "__$" + hex.EncodeToString(h)[:34] + "$__"
}

// DecodeHex decodes hex with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// DecodeLinked decodes compiler hex output, replacing every unlinked library
// placeholder with a zero address. Valid hex never contains '_', so any "__"
// at an even offset starts a 40-character placeholder, which covers both the
// "__$<hash>$__" and the older "__Name____" forms.
func DecodeLinked(s string) ([]byte, error) {
	s = trimHexPrefix(s)
	if !strings.Contains(s, "__") {
		return DecodeHex(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == '_' && s[i+1] == '_' && i%2 == 0 {
			if i+placeholderLen > len(s) {
				return nil, fmt.Errorf("invalid hex: truncated library placeholder at offset %d", i/2)
			}
			b.WriteString(strings.Repeat("0", placeholderLen))
			i += placeholderLen
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return DecodeHex(b.String())
}

// FindPlaceholders lists the unlinked library slots in compiler hex output.
func FindPlaceholders(s string) []Placeholder {
	s = trimHexPrefix(s)
	var out []Placeholder
	for i := 0; i+placeholderLen <= len(s); i += 2 {
		if s[i] == '_' && s[i+1] == '_' {
			out = append(out, Placeholder{Offset: i / 2, Token: s[i : i+placeholderLen]})
			i += placeholderLen - 2
		}
	}
	return out
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// matchesPlaceholder reports whether token is the placeholder solc would emit
// for the library key, which is either "Lib" or "path:Lib".
func matchesPlaceholder(token, key string) bool {
	if token == PlaceholderFor(key) {
		return true
	}
	// Pre-0.5 placeholders embed the (possibly truncated) qualified name.
	legacy := strings.TrimRight(strings.TrimPrefix(token, "__"), "_")
	if legacy == "" {
		return false
	}
	return strings.HasPrefix(key, legacy) || libraryName(legacy) == libraryName(key)
}
