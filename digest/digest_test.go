package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	data := []byte("hello, world!")

	tests := []struct {
		name        string
		fn          func() Hash
		expected    string
		expectedHex string
	}{
		{
			name:        "sha256",
			fn:          NewSha256,
			expected:    "sha256-aOZWslHmfoNYvvhIOrDVHGYZ8+ehqfDnWDjUH/No9yg",
			expectedHex: "68e656b251e67e8358bef8483ab0d51c6619f3e7a1a9f0e75838d41ff368f728",
		},
		{
			name:        "sha384",
			fn:          NewSha384,
			expected:    "sha384-b58jhCXsokOe1Fgawf20X8djeef7qUvAp2JPo+erHsNwG0v83aN2ynVRkub0XypO",
			expectedHex: "6f9f238425eca2439ed4581ac1fdb45fc76379e7fba94bc0a7624fa3e7ab1ec3701b4bfcdda376ca755192e6f45f2a4e",
		},
		{
			name:        "sha512",
			fn:          NewSha512,
			expected:    "sha512-bCYYNY2gfIMLiMWvjDU1CA6OYDyIuJECiiWczbmsgC0PwBcMmdWK/88AeGzhiPxddT6MZiivIHHDJw1QRFxLHA",
			expectedHex: "6c2618358da07c830b88c5af8c3535080e8e603c88b891028a259ccdb9ac802d0fc0170c99d58affcf00786ce188fc5d753e8c6628af2071c3270d50445c4b1c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.fn()
			assert.Equal(t, tt.name, h.Name())

			_, _ = h.Write(data)
			assert.Equal(t, tt.expected, h.SumToString(nil))
			assert.Equal(t, tt.expectedHex, h.Hex())
		})
	}
}

func TestFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(name, []byte("hello, world!"), 0644))

	d, err := File(name)
	assert.NoErrorf(t, err, "File(%s) error = %v", name, err)
	assert.Equal(t, Digest{
		SRI:  "sha256-aOZWslHmfoNYvvhIOrDVHGYZ8+ehqfDnWDjUH/No9yg",
		Hex:  "68e656b251e67e8358bef8483ab0d51c6619f3e7a1a9f0e75838d41ff368f728",
		Size: 13,
	}, d)

	_, err = File(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		want     bool
		wantErr  error
	}{
		{
			name:     "sha256 match",
			expected: "sha256-aOZWslHmfoNYvvhIOrDVHGYZ8+ehqfDnWDjUH/No9yg",
			want:     true,
		},
		{
			name:     "sha512 match",
			expected: "sha512-bCYYNY2gfIMLiMWvjDU1CA6OYDyIuJECiiWczbmsgC0PwBcMmdWK/88AeGzhiPxddT6MZiivIHHDJw1QRFxLHA",
			want:     true,
		},
		{
			name:     "mismatch",
			expected: "sha256-47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU",
			want:     false,
		},
		{
			name:     "unknown",
			expected: "md5-6Nm2gS84eI8t4x6Nchmm1w",
			wantErr:  ErrUnknownHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Verify(strings.NewReader("hello, world!"), tt.expected)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoErrorf(t, err, "Verify() error = %v", err)
			assert.Equal(t, tt.want, got)
		})
	}
}
