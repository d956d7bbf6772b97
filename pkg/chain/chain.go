// Package chain implements the per-bucket entry list used by the cache: a
// doubly linked dictionary keyed by string, where each entry owns its key and
// value and carries a recency timestamp.
//
// A Chain is not safe for concurrent mutation. The cache serializes writers
// and only lets readers touch entry timestamps, which are atomic.
package chain

import (
	"errors"
	"sync/atomic"

	"github.com/ryandielhenn/proxycache/pkg/buffer"
)

// ErrNotMember is returned by Remove when the entry is not linked into the
// chain it is being removed from.
var ErrNotMember = errors.New("chain: entry is not a member of this chain")

// Entry is one key/value pair linked into a Chain.
type Entry struct {
	key   string
	value *buffer.Buffer
	stamp atomic.Int64

	next *Entry
	prev *Entry

	// owner is a non-owning back-reference used to validate Remove.
	owner *Chain
}

// Key returns the entry key.
func (e *Entry) Key() string { return e.key }

// Value returns the stored buffer. Callers must not release it; use Copy to
// hand it out.
func (e *Entry) Value() *buffer.Buffer { return e.value }

// Timestamp returns the recency marker.
func (e *Entry) Timestamp() int64 { return e.stamp.Load() }

// Touch sets the recency marker. Safe to call from concurrent readers; the
// last store wins.
func (e *Entry) Touch(ts int64) { e.stamp.Store(ts) }

// Replace swaps in a new value and releases the previous one.
func (e *Entry) Replace(v *buffer.Buffer) {
	old := e.value
	e.value = v
	if old != v {
		old.Release()
	}
}

// Next returns the following entry in the chain, or nil at the tail.
func (e *Entry) Next() *Entry { return e.next }

// Chain is one bucket's list of entries. The zero value is an empty chain.
type Chain struct {
	head *Entry
	n    int
}

// Front returns the head entry, or nil if the chain is empty.
func (c *Chain) Front() *Entry { return c.head }

// Len returns the number of linked entries.
func (c *Chain) Len() int { return c.n }

// InsertFront links a new entry owning key and value at the head of the
// chain. It does not check for an existing entry with the same key.
func (c *Chain) InsertFront(key string, value *buffer.Buffer, ts int64) *Entry {
	e := &Entry{key: key, value: value, owner: c}
	e.stamp.Store(ts)

	if c.head != nil {
		c.head.prev = e
		e.next = c.head
	}
	c.head = e
	c.n++
	return e
}

// Find returns the first entry whose key equals key, or nil.
func (c *Chain) Find(key string) *Entry {
	for e := c.head; e != nil; e = e.next {
		if e.key == key {
			return e
		}
	}
	return nil
}

// Remove unlinks e, releases its value and clears it. e must not be used
// afterwards.
func (c *Chain) Remove(e *Entry) error {
	if e == nil || e.owner != c {
		return ErrNotMember
	}

	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	c.n--

	e.release()
	return nil
}

// DestroyAll releases every entry and leaves the chain empty.
func (c *Chain) DestroyAll() {
	for e := c.head; e != nil; {
		next := e.next
		e.release()
		e = next
	}
	c.head = nil
	c.n = 0
}

func (e *Entry) release() {
	e.value.Release()
	e.value = nil
	e.key = ""
	e.next = nil
	e.prev = nil
	e.owner = nil
}
