// Package hash implements the content identifier used throughout Dits: a
// 32-byte BLAKE3 digest, its hex encoding, and the two-level fan-out path
// used to key objects on disk.
package hash

import (
	"encoding/hex"
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of a CID.
const Size = 32

// ErrInvalidLength is returned when decoding a byte slice or hex string of
// the wrong length into a CID.
var ErrInvalidLength = errors.New("hash: invalid CID length")

// CID is a 32-byte content identifier. The zero value is the distinguished
// "absent" CID.
type CID [Size]byte

// Zero is the distinguished all-zero CID denoting "absent".
var Zero CID

// FromBytes computes the CID of data.
func FromBytes(data []byte) CID {
	var c CID
	sum := blake3.Sum256(data)
	copy(c[:], sum[:])
	return c
}

// FromSlice copies a byte slice of exactly Size bytes into a CID.
func FromSlice(b []byte) (CID, error) {
	var c CID
	if len(b) != Size {
		return c, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// FromHex decodes a 64-character hex string into a CID.
func FromHex(s string) (CID, error) {
	var c CID
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("hash: decode hex: %w", err)
	}
	return FromSlice(b)
}

// Bytes returns the CID's raw bytes.
func (c CID) Bytes() []byte {
	return c[:]
}

// String returns the full 64-character hex encoding.
func (c CID) String() string {
	return hex.EncodeToString(c[:])
}

// Short returns the first 8 hex characters, for display purposes.
func (c CID) Short() string {
	return c.String()[:8]
}

// MarshalText implements encoding.TextMarshaler, so CIDs appear as hex in
// every serialized form (index, manifests, commits).
func (c CID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CID) UnmarshalText(text []byte) error {
	parsed, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsZero reports whether c is the distinguished absent CID.
func (c CID) IsZero() bool {
	return c == Zero
}

// ObjectPath returns the two-level fan-out path used to key this CID on
// disk: the first two hex digits, then the remaining 62.
func (c CID) ObjectPath() string {
	full := c.String()
	return full[:2] + "/" + full[2:]
}

// Hasher accumulates bytes and produces a CID, for callers that cannot
// buffer the whole input before hashing (e.g. streaming object writes).
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher returns a ready-to-use streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(Size, nil)}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the hash and returns the resulting CID. The hasher remains
// usable for further writes per blake3's semantics, but callers should treat
// Sum as terminal.
func (h *Hasher) Sum() CID {
	var c CID
	copy(c[:], h.h.Sum(nil))
	return c
}

// Hash is a convenience one-shot equivalent to FromBytes, named to match the
// vocabulary used by the rest of the core ("hash this blob").
func Hash(data []byte) CID {
	return FromBytes(data)
}
