// Package bytecode splits EVM bytecode into executable code and its metadata
// trailer, and masks regions that legitimately differ between locally
// compiled code and code observed on chain.
package bytecode

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fxamacker/cbor/v2"
)

// Part types.
const (
	PartMain = "main"
	PartMeta = "meta"
)

// Part is a typed chunk of bytecode. Data is 0x-prefixed hex.
type Part struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Segments is bytecode split into executable code and the compiler's
// metadata trailer. Meta includes the 2-byte length suffix.
type Segments struct {
	Main []byte
	Meta []byte
}

// Segment splits code at the CBOR metadata trailer, if one is present.
// It never fails: anything that does not look like a well-formed trailer is
// treated as executable code.
func Segment(code []byte) Segments {
	if len(code) < 2 {
		return Segments{Main: code}
	}
	l := int(binary.BigEndian.Uint16(code[len(code)-2:]))
	if l+2 > len(code) {
		return Segments{Main: code}
	}
	start := len(code) - 2 - l
	if !isMetadata(code[start : len(code)-2]) {
		return Segments{Main: code}
	}
	return Segments{Main: code[:start], Meta: code[start:]}
}

// isMetadata reports whether b is exactly one CBOR item of the shape compilers
// append: a map for solc, or an array for vyper >= 0.3.10.
func isMetadata(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	var v any
	if err := cbor.Unmarshal(b, &v); err != nil {
		return false
	}
	switch v.(type) {
	case map[any]any, map[string]any, []any:
		return true
	}
	return false
}

// Join concatenates the segments back into the original bytecode.
func (s Segments) Join() []byte {
	out := make([]byte, 0, len(s.Main)+len(s.Meta))
	out = append(out, s.Main...)
	return append(out, s.Meta...)
}

// Parts returns the main and meta chunks in wire form. Empty segments
// produce no chunks.
func (s Segments) Parts() (main []Part, meta []Part) {
	main = []Part{}
	meta = []Part{}
	if len(s.Main) > 0 {
		main = append(main, Part{Type: PartMain, Data: hexutil.Encode(s.Main)})
	}
	if len(s.Meta) > 0 {
		meta = append(meta, Part{Type: PartMeta, Data: hexutil.Encode(s.Meta)})
	}
	return main, meta
}

// AllParts returns the main chunks followed by the meta chunks.
func (s Segments) AllParts() []Part {
	main, meta := s.Parts()
	return append(main, meta...)
}

// JoinParts decodes and concatenates parts in order.
func JoinParts(parts []Part) ([]byte, error) {
	var out []byte
	for _, p := range parts {
		b, err := DecodeHex(p.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
