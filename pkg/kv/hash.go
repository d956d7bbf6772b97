package kv

import "hash/fnv"

// Hasher maps a key to an unsigned sum. The store reduces it modulo the
// bucket count.
type Hasher func(key string) uint64

// Sum37 walks the key from its last byte to its first, adding each byte and
// multiplying by 37, with 64-bit wraparound. Bytes above 0x7f are added as
// negative values (signed char arithmetic), which keeps bucket assignments
// stable against existing deployments.
func Sum37(key string) uint64 {
	var sum uint64
	for i := len(key) - 1; i >= 0; i-- {
		sum += uint64(int64(int8(key[i])))
		sum *= 37
	}
	return sum
}

// FNV64a is the 64-bit FNV-1a hash of key.
func FNV64a(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// HasherByName resolves the names accepted in configuration.
func HasherByName(name string) (Hasher, bool) {
	switch name {
	case "", "sum37":
		return Sum37, true
	case "fnv", "fnv64a":
		return FNV64a, true
	default:
		return nil, false
	}
}
