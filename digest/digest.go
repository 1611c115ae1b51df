package digest

import (
	_ "crypto/sha256" // registers crypto.SHA256 for go-digest
	"errors"
	"fmt"
	"strconv"
	"strings"

	godigest "github.com/opencontainers/go-digest"
)

// Sentinel errors for digest operations.
var (
	ErrInvalidDigest = errors.New("digest: digest is invalid")
)

// Digest is a content hash plus the length of the hashed content.
type Digest struct {
	Hash      godigest.Digest
	SizeBytes int64
}

// Empty is the digest of zero bytes.
var Empty = Of(nil)

// Of returns the digest of b.
func Of(b []byte) Digest {
	return Digest{
		Hash:      godigest.SHA256.FromBytes(b),
		SizeBytes: int64(len(b)),
	}
}

// New builds a Digest from a hex-encoded SHA-256 hash and a size.
func New(hexHash string, size int64) (Digest, error) {
	d := Digest{
		Hash:      godigest.NewDigestFromEncoded(godigest.SHA256, strings.ToLower(hexHash)),
		SizeBytes: size,
	}
	if err := d.Validate(); err != nil {
		return Digest{}, err
	}
	return d, nil
}

// Parse parses the "<hex>/<size>" form produced by String.
func Parse(s string) (Digest, error) {
	hexHash, sizeStr, ok := strings.Cut(s, "/")
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q is not <hash>/<size>", ErrInvalidDigest, s)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: size %q: %v", ErrInvalidDigest, sizeStr, err)
	}
	return New(hexHash, size)
}

// Validate reports whether d is a well-formed SHA-256 digest.
func (d Digest) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero value", ErrInvalidDigest)
	}
	if err := d.Hash.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if d.Hash.Algorithm() != godigest.SHA256 {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidDigest, d.Hash.Algorithm())
	}
	if d.SizeBytes < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidDigest, d.SizeBytes)
	}
	return nil
}

// IsZero reports whether d is the zero Digest.
func (d Digest) IsZero() bool {
	return d.Hash == "" && d.SizeBytes == 0
}

// Key returns the hex hash. It is filesystem safe.
func (d Digest) Key() string {
	_, encoded, ok := strings.Cut(string(d.Hash), ":")
	if !ok {
		return string(d.Hash)
	}
	return encoded
}

// String returns "<hex>/<size>".
func (d Digest) String() string {
	return d.Key() + "/" + strconv.FormatInt(d.SizeBytes, 10)
}

// Matches reports whether b hashes to d.
func (d Digest) Matches(b []byte) bool {
	return int64(len(b)) == d.SizeBytes && Of(b).Hash == d.Hash
}
