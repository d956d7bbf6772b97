package kv

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"

	"github.com/ryandielhenn/proxycache/pkg/buffer"
	"github.com/ryandielhenn/proxycache/pkg/chain"
)

// DefaultBuckets is used when a non-positive bucket count is requested.
const DefaultBuckets = 1024

var (
	// ErrValueTooLarge is returned by Add when a single value is larger than
	// the whole capacity of the cache.
	ErrValueTooLarge = errors.New("kv: value exceeds cache capacity")

	// ErrClosed is returned by Add after Destroy.
	ErrClosed = errors.New("kv: store is destroyed")
)

// Cache is the contract shared by Store and Sharded.
type Cache interface {
	Get(key string) (*buffer.Buffer, bool)
	Add(key string, value *buffer.Buffer) error
	Delete(key string) bool
	Len() int
	Bytes() int
	Dump(w io.Writer) error
	Destroy()
}

var (
	_ Cache = (*Store)(nil)
	_ Cache = (*Sharded)(nil)
)

// Store is a bounded, approximately-LRU key/value cache. Keys hash into a
// fixed array of buckets, each a chain of entries stamped with the time they
// were last added or read. When an Add would push the summed value sizes past
// capacity, the entry with the oldest stamp anywhere in the table is evicted,
// repeatedly, until the new value fits.
//
// A single RWMutex guards the whole table. Get runs under the read lock and
// still refreshes the entry stamp; concurrent readers may overwrite each
// other's stamps, so recency is only exact between operations separated by
// the write lock.
type Store struct {
	mu      sync.RWMutex
	buckets []chain.Chain
	used    int
	cap     int
	closed  bool

	hash  Hasher
	clock clock.Clock
	log   *zap.Logger

	// Stamps are nanoseconds since epoch, forced to increase strictly.
	epoch time.Time
	last  atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp entries.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithHasher sets the bucket hash. The default is Sum37.
func WithHasher(h Hasher) Option {
	return func(s *Store) { s.hash = h }
}

// NewStore returns an empty store holding at most capacityBytes of value
// data spread over numBuckets buckets. It panics if capacityBytes is not
// positive.
func NewStore(capacityBytes, numBuckets int, opts ...Option) *Store {
	if capacityBytes <= 0 {
		panic(fmt.Sprintf("kv: capacity must be positive, got %d", capacityBytes))
	}
	if numBuckets <= 0 {
		numBuckets = DefaultBuckets
	}
	s := &Store{
		buckets: make([]chain.Chain, numBuckets),
		cap:     capacityBytes,
		hash:    Sum37,
		clock:   clock.NewDefaultClock(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.epoch = s.clock.Now()
	return s
}

// Get returns a copy of the value stored under key and refreshes its
// recency.
func (s *Store) Get(key string) (*buffer.Buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false
	}
	e := s.bucketFor(key).Find(key)
	if e == nil {
		return nil, false
	}
	e.Touch(s.now())
	return e.Value().Copy(), true
}

// Add stores value under key, taking ownership of value. An existing entry
// for key is updated in place. Older entries are evicted until the value
// fits; a value larger than the whole capacity is rejected with
// ErrValueTooLarge and released.
func (s *Store) Add(key string, value *buffer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		value.Release()
		return ErrClosed
	}
	size := value.Len()
	if size > s.cap {
		s.log.Debug("rejecting oversized value",
			zap.String("key", key), zap.Int("size", size), zap.Int("capacity", s.cap))
		value.Release()
		return fmt.Errorf("%w: %d > %d bytes", ErrValueTooLarge, size, s.cap)
	}

	bucket := s.bucketFor(key)
	existing := bucket.Find(key)
	if existing != nil {
		s.used -= existing.Value().Len()
	}

	for s.used+size > s.cap {
		victim, b := s.oldest(existing)
		if victim == nil || !s.evict(b, victim) {
			break
		}
	}

	if existing != nil {
		existing.Replace(value)
		existing.Touch(s.now())
	} else {
		bucket.InsertFront(key, value, s.now())
	}
	s.used += size
	return nil
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	b := s.bucketFor(key)
	e := b.Find(key)
	if e == nil {
		return false
	}
	s.remove(b, e)
	return true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.buckets {
		n += s.buckets[i].Len()
	}
	return n
}

// Bytes returns the summed length of all live values.
func (s *Store) Bytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Capacity returns the byte budget.
func (s *Store) Capacity() int { return s.cap }

// Destroy releases every entry. Afterwards Get misses and Add fails with
// ErrClosed. Calling Destroy again is a no-op.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for i := range s.buckets {
		s.buckets[i].DestroyAll()
	}
	s.used = 0
	s.closed = true
	s.log.Debug("store destroyed")
}

// Dump writes every non-empty bucket as "Bucket i: key: value ->...NULL".
// The format is meant for humans and tests, not as a protocol.
func (s *Store) Dump(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.buckets {
		e := s.buckets[i].Front()
		if e == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "Bucket %d: ", i); err != nil {
			return err
		}
		for ; e != nil; e = e.Next() {
			if _, err := fmt.Fprintf(w, "%s: %s ->", e.Key(), e.Value()); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "NULL\n"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) index(key string) int {
	return int(s.hash(key) % uint64(len(s.buckets)))
}

func (s *Store) bucketFor(key string) *chain.Chain {
	return &s.buckets[s.index(key)]
}

// now samples the clock as an offset from epoch, which keeps the monotonic
// reading of the default clock. A sample that is not ahead of the previous
// stamp, after a wall clock step or on a coarse clock, becomes previous+1.
func (s *Store) now() int64 {
	sample := int64(s.clock.Now().Sub(s.epoch))
	for {
		last := s.last.Load()
		next := max(sample, last+1)
		if s.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// oldest scans buckets in order and each chain from its head, returning the
// entry with the strictly smallest stamp, so the first one seen wins a tie.
// skip is never chosen. Caller must hold the write lock.
func (s *Store) oldest(skip *chain.Entry) (*chain.Entry, *chain.Chain) {
	var (
		victim *chain.Entry
		owner  *chain.Chain
	)
	for i := range s.buckets {
		for e := s.buckets[i].Front(); e != nil; e = e.Next() {
			if e == skip {
				continue
			}
			if victim == nil || e.Timestamp() < victim.Timestamp() {
				victim, owner = e, &s.buckets[i]
			}
		}
	}
	return victim, owner
}

func (s *Store) evict(b *chain.Chain, e *chain.Entry) bool {
	if ce := s.log.Check(zap.DebugLevel, "evicting entry"); ce != nil {
		ce.Write(zap.String("key", e.Key()), zap.Int("size", e.Value().Len()),
			zap.Int64("stamp", e.Timestamp()))
	}
	return s.remove(b, e)
}

func (s *Store) remove(b *chain.Chain, e *chain.Entry) bool {
	size := e.Value().Len()
	key := e.Key()
	if err := b.Remove(e); err != nil {
		s.log.DPanic("entry not linked into its bucket", zap.String("key", key), zap.Error(err))
		return false
	}
	s.used -= size
	return true
}
