package kv

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/proxycache/pkg/buffer"
)

func TestShardedSplitsBudget(t *testing.T) {
	s := NewSharded(400, 64, 4)
	require.Equal(t, 4, s.Shards())
	for _, sh := range s.shards {
		require.Equal(t, 100, sh.Capacity())
		require.Len(t, sh.buckets, 16)
	}

	// Larger than a shard but smaller than the whole cache.
	err := s.Add("k", buf(strings.Repeat("x", 150)))
	require.ErrorIs(t, err, ErrValueTooLarge)
}

func TestShardedKeepsCapacityRemainder(t *testing.T) {
	s := NewSharded(10, 6, 3)

	var caps []int
	total := 0
	for _, sh := range s.shards {
		caps = append(caps, sh.Capacity())
		total += sh.Capacity()
	}
	require.Equal(t, []int{4, 3, 3}, caps)
	require.Equal(t, 10, total)
}

func TestShardedRoutesConsistently(t *testing.T) {
	s := NewSharded(1<<16, 64, 8)

	for i := range 200 {
		k := fmt.Sprintf("key-%d", i)
		require.NoError(t, s.Add(k, buf(k)))
	}
	require.Equal(t, 200, s.Len())

	for i := range 200 {
		k := fmt.Sprintf("key-%d", i)
		got, ok := s.Get(k)
		require.True(t, ok, k)
		require.Equal(t, k, got.String())

		owners := 0
		for _, sh := range s.shards {
			sh.mu.RLock()
			if sh.bucketFor(k).Find(k) != nil {
				owners++
			}
			sh.mu.RUnlock()
		}
		require.Equal(t, 1, owners, "key %s must live in exactly one shard", k)
	}

	require.True(t, s.Delete("key-3"))
	require.Equal(t, 199, s.Len())
}

func TestShardedSingleShardMatchesStore(t *testing.T) {
	s := NewSharded(10, 4, 0)
	require.Equal(t, 1, s.Shards())

	require.NoError(t, s.Add("a", buf("aaaa")))
	require.NoError(t, s.Add("b", buf("bbbb")))
	require.NoError(t, s.Add("c", buf("cccc")))
	require.Equal(t, 8, s.Bytes())
	require.Equal(t, 2, s.Len())

	var out bytes.Buffer
	require.NoError(t, s.Dump(&out))
	require.True(t, strings.HasPrefix(out.String(), "Shard 0\n"))
}

func TestShardedDestroy(t *testing.T) {
	s := NewSharded(1<<10, 16, 4)
	var vals []*buffer.Buffer
	for i := range 32 {
		v := buf(fmt.Sprintf("v%d", i))
		vals = append(vals, v)
		require.NoError(t, s.Add(fmt.Sprintf("k%d", i), v))
	}
	s.Destroy()
	for _, v := range vals {
		require.True(t, v.Released())
	}
	require.Zero(t, s.Len())
	require.ErrorIs(t, s.Add("k", buf("v")), ErrClosed)
}

func TestShardedConcurrent(t *testing.T) {
	s := NewSharded(8192, 64, 8)

	var g errgroup.Group
	for gid := range 16 {
		g.Go(func() error {
			for i := range 1000 {
				k := fmt.Sprintf("g%d-%d", gid%4, i%100)
				if err := s.Add(k, buf(k)); err != nil {
					return err
				}
				s.Get(k)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.LessOrEqual(t, s.Bytes(), 8192)
	for _, sh := range s.shards {
		checkInvariants(t, sh)
	}
}

func TestShardedPanicsWhenBudgetTooSmall(t *testing.T) {
	require.Panics(t, func() { NewSharded(3, 4, 4) })
}
