// Package digest computes the content digests that identify an archive.
//
// Digests are rendered in [Subresource Integrity] form ("sha256-<base64>") for display and comparison, and in hex for
// use in object keys.
//
// [Subresource Integrity]: https://developer.mozilla.org/en-US/docs/Web/Security/Subresource_Integrity
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"
)

// Hash extends hash.Hash with methods to render the sum.
type Hash interface {
	hash.Hash

	// Name returns the name of the hash function.
	Name() string

	// SumToString calls [hash.Hash.Sum] passing b and encodes the returned slice as a string prefixed with the hash
	// name.
	SumToString(b []byte) string

	// Hex calls [hash.Hash.Sum] passing nil and returns the lowercase hex encoding.
	Hex() string
}

// New returns the default Hash which uses sha256.
func New() Hash {
	return NewSha256()
}

// NewSha256 returns a new Hash using sha256 as the hash function.
func NewSha256() Hash {
	return &hasher{Hash: sha256.New(), name: "sha256"}
}

// NewSha384 returns a new Hash using sha384 as the hash function.
func NewSha384() Hash {
	return &hasher{Hash: sha512.New384(), name: "sha384"}
}

// NewSha512 returns a new Hash using sha512 as the hash function.
func NewSha512() Hash {
	return &hasher{Hash: sha512.New(), name: "sha512"}
}

// parse returns a new Hash for the function named by the prefix of the given SRI string.
//
// Returns nil if the function is not supported.
func parse(digest string) (h Hash) {
	name, _, _ := strings.Cut(digest, "-")

	switch name {
	case "sha256":
		h = NewSha256()
	case "sha384":
		h = NewSha384()
	case "sha512":
		h = NewSha512()
	}

	return
}

// hasher implements Hash.
type hasher struct {
	hash.Hash
	name string
}

func (h *hasher) Name() string {
	return h.name
}

func (h *hasher) SumToString(b []byte) string {
	return h.name + "-" + base64.RawStdEncoding.EncodeToString(h.Sum(b))
}

func (h *hasher) Hex() string {
	return hex.EncodeToString(h.Sum(nil))
}

var _ Hash = (*hasher)(nil)
