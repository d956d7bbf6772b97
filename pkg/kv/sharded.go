package kv

import (
	"fmt"
	"hash/fnv"
	"io"

	"github.com/ryandielhenn/proxycache/pkg/buffer"
)

// Sharded splits the key space over independent Stores, each with its own
// lock, a slice of the byte budget and a slice of the buckets. Writers to
// different shards no longer block each other, but eviction only considers
// the shard a key lands in: the least recently used entry of that shard is
// evicted, not of the whole cache.
type Sharded struct {
	shards []*Store
}

// NewSharded builds n shards sharing capacityBytes and numBuckets evenly.
// When capacityBytes does not divide by n, the first capacityBytes%n shards
// get one extra byte, so the shard budgets sum to capacityBytes. n <= 1
// yields a single shard, equivalent to a plain Store.
func NewSharded(capacityBytes, numBuckets, n int, opts ...Option) *Sharded {
	if n < 1 {
		n = 1
	}
	if capacityBytes < n {
		panic(fmt.Sprintf("kv: capacity %d too small for %d shards", capacityBytes, n))
	}
	if numBuckets <= 0 {
		numBuckets = DefaultBuckets
	}
	perBuckets := max(numBuckets/n, 1)

	s := &Sharded{shards: make([]*Store, n)}
	per, extra := capacityBytes/n, capacityBytes%n
	for i := range s.shards {
		c := per
		if i < extra {
			c++
		}
		s.shards[i] = NewStore(c, perBuckets, opts...)
	}
	return s
}

// Shards returns the number of shards.
func (s *Sharded) Shards() int { return len(s.shards) }

func (s *Sharded) shardFor(key string) *Store {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get looks key up in its shard.
func (s *Sharded) Get(key string) (*buffer.Buffer, bool) {
	return s.shardFor(key).Get(key)
}

// Add stores value in the shard owning key. A value larger than a single
// shard's budget is rejected with ErrValueTooLarge.
func (s *Sharded) Add(key string, value *buffer.Buffer) error {
	return s.shardFor(key).Add(key, value)
}

// Delete removes key from its shard.
func (s *Sharded) Delete(key string) bool {
	return s.shardFor(key).Delete(key)
}

// Len sums the shard entry counts. Shards are read one after another, so
// the result is not a consistent snapshot under concurrent writes.
func (s *Sharded) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

// Bytes sums the shard byte counts.
func (s *Sharded) Bytes() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Bytes()
	}
	return n
}

// Dump writes each shard's dump under a "Shard i" header.
func (s *Sharded) Dump(w io.Writer) error {
	for i, sh := range s.shards {
		if _, err := fmt.Fprintf(w, "Shard %d\n", i); err != nil {
			return err
		}
		if err := sh.Dump(w); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}

// Destroy destroys every shard.
func (s *Sharded) Destroy() {
	for _, sh := range s.shards {
		sh.Destroy()
	}
}
