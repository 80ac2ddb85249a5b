package digest

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnknownHash is returned by Verify if the expected digest names an unsupported hash function.
var ErrUnknownHash = errors.New("unknown hash function")

// Digest is the rendered sum of some content.
type Digest struct {
	// SRI is the Subresource Integrity form such as "sha256-aOZWslHmfoNYvvhIOrDVHGYZ8+ehqfDnWDjUH/No9yg".
	SRI string
	// Hex is the lowercase hex encoding of the same sum.
	Hex string
	// Size is the number of bytes that were hashed.
	Size int64
}

// Reader hashes everything read from r with a new Hash from New.
func Reader(r io.Reader) (Digest, error) {
	h := New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, err
	}

	return Digest{SRI: h.SumToString(nil), Hex: h.Hex(), Size: n}, nil
}

// File hashes the content of the named file.
func File(name string) (Digest, error) {
	f, err := os.Open(name)
	if err != nil {
		return Digest{}, fmt.Errorf("open file error: %w", err)
	}
	defer f.Close()

	d, err := Reader(f)
	if err != nil {
		return d, fmt.Errorf("read file error: %w", err)
	}

	return d, nil
}

// Verify hashes r with the function named by expected and returns true if and only if the result matches.
func Verify(r io.Reader, expected string) (bool, error) {
	h := parse(expected)
	if h == nil {
		return false, fmt.Errorf(`%w in "%s"`, ErrUnknownHash, expected)
	}

	if _, err := io.Copy(h, r); err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare([]byte(h.SumToString(nil)), []byte(expected)) == 1, nil
}
