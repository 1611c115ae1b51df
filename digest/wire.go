package digest

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Digest message, matching the remote execution API.
const (
	fieldHash      protowire.Number = 1
	fieldSizeBytes protowire.Number = 2
)

// AppendField appends d as an embedded Digest message under field num.
func AppendField(b []byte, num protowire.Number, d Digest) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, Marshal(d))
}

// Marshal encodes d as a Digest message: hash (hex) then size_bytes.
func Marshal(d Digest) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldHash, protowire.BytesType)
	b = protowire.AppendString(b, d.Key())
	b = protowire.AppendTag(b, fieldSizeBytes, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.SizeBytes))
	return b
}

// Unmarshal decodes a Digest message and validates the result.
func Unmarshal(b []byte) (Digest, error) {
	var (
		hexHash string
		size    int64
		hasHash bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Digest{}, fmt.Errorf("%w: %v", ErrInvalidDigest, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Digest{}, fmt.Errorf("%w: %v", ErrInvalidDigest, protowire.ParseError(n))
			}
			hexHash, hasHash = v, true
			b = b[n:]
		case num == fieldSizeBytes && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Digest{}, fmt.Errorf("%w: %v", ErrInvalidDigest, protowire.ParseError(n))
			}
			size = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Digest{}, fmt.Errorf("%w: %v", ErrInvalidDigest, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !hasHash {
		return Digest{}, fmt.Errorf("%w: missing hash", ErrInvalidDigest)
	}
	return New(hexHash, size)
}
