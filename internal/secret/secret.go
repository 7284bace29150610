// Package secret provides scoped wrappers for key material and other
// sensitive byte buffers: zero-on-release, constant-time comparison,
// and formatting that never leaks contents accidentally.
package secret

import (
	"crypto/subtle"
	"fmt"
	"runtime"
)

// Bytes wraps a byte slice that must be wiped before it is released.
// Its zero value is not usable; construct with New or FromBytes.
type Bytes struct {
	data  []byte
	wiped bool
}

// New allocates a zeroed Bytes of the given length.
func New(length int) *Bytes {
	return &Bytes{data: make([]byte, length)}
}

// FromBytes takes ownership of data, wrapping it in a Bytes. The
// caller must not retain or use data after this call; Wipe on the
// caller's copy is the caller's responsibility if it still holds one.
func FromBytes(data []byte) *Bytes {
	return &Bytes{data: data}
}

// Bytes returns the underlying slice. The returned slice aliases the
// wrapper's storage and must not be retained past the wrapper's
// lifetime or stored; use it immediately and discard.
func (b *Bytes) Bytes() []byte {
	if b == nil || b.wiped {
		return nil
	}
	return b.data
}

// Len reports the length of the wrapped buffer.
func (b *Bytes) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Equal performs a constant-time comparison against other, regardless
// of whether either operand has already been wiped (a wiped buffer
// simply never equals anything but another all-zero buffer of the
// same stated length, which is the correct, safe behavior).
func (b *Bytes) Equal(other []byte) bool {
	if b == nil {
		return len(other) == 0
	}
	if len(b.data) != len(other) {
		return false
	}
	return subtle.ConstantTimeCompare(b.data, other) == 1
}

// Wipe overwrites the buffer with zeros. Safe to call multiple times.
func (b *Bytes) Wipe() {
	if b == nil || b.wiped {
		return
	}
	Wipe(b.data)
	b.wiped = true
}

// String implements fmt.Stringer to block accidental logging of secret
// contents: printing a *Bytes (directly, or via %v/%s) never reveals
// the underlying bytes.
func (b *Bytes) String() string {
	return "secret.Bytes(REDACTED)"
}

// GoString blocks the %#v formatting verb the same way.
func (b *Bytes) GoString() string {
	return "secret.Bytes(REDACTED)"
}

var _ fmt.Stringer = (*Bytes)(nil)

// Wipe overwrites data with zeros in place. Unlike a bare loop, the
// runtime.KeepAlive call after the loop is a memory barrier that
// prevents the compiler from proving the writes are dead and eliding
// them — the same discipline the PUF-derived key hierarchy in this
// corpus' teacher project uses for its ratchet state.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// ConstantTimeEqual compares two plain byte slices in constant time.
// Prefer Bytes.Equal when one side is already wrapped; this helper
// exists for comparisons of derived values (MACs, digests) that never
// need long-term wrapping.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
