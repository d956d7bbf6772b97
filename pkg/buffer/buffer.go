// Package buffer holds the opaque byte payload stored by the cache.
package buffer

// Buffer is an owned, independently releasable byte payload. The zero value
// is an empty buffer.
type Buffer struct {
	b []byte
}

// New returns a Buffer holding a copy of b.
func New(b []byte) *Buffer {
	return &Buffer{b: cloneBytes(b)}
}

// Own returns a Buffer that takes ownership of b without copying it. The
// caller must not read or write b afterwards.
func Own(b []byte) *Buffer {
	return &Buffer{b: b}
}

// FromString returns a Buffer holding the bytes of s.
func FromString(s string) *Buffer {
	return &Buffer{b: []byte(s)}
}

// Copy returns a deep copy. Releasing or mutating either side never affects
// the other.
func (v *Buffer) Copy() *Buffer {
	if v == nil {
		return nil
	}
	return &Buffer{b: cloneBytes(v.b)}
}

// Len reports the payload size in bytes.
func (v *Buffer) Len() int {
	if v == nil {
		return 0
	}
	return len(v.b)
}

// Bytes returns a copy of the payload.
func (v *Buffer) Bytes() []byte {
	if v == nil {
		return nil
	}
	return cloneBytes(v.b)
}

// String returns a printable form of the payload, used by debug dumps.
func (v *Buffer) String() string {
	if v == nil {
		return "<nil>"
	}
	return string(v.b)
}

// Release zeroes the payload and drops it. Calling Release more than once is
// a no-op.
func (v *Buffer) Release() {
	if v == nil || v.b == nil {
		return
	}
	clear(v.b)
	v.b = nil
}

// Released reports whether Release has been called on a non-empty buffer.
func (v *Buffer) Released() bool {
	return v == nil || v.b == nil
}

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
