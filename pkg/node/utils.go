package node

import (
	"net"
	"strings"
)

const kvPrefix = "/kv/"

// NormalizeHostPort cuts the http:// https:// prefixes from the input address
// and adds a default port
func NormalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "http://"); ok {
		addr = rest
	} else if rest, ok := strings.CutPrefix(addr, "https://"); ok {
		addr = rest
	}
	addr = strings.TrimSuffix(addr, "/")

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return addr + ":" + defPort
}

// keyFromPath returns the cache key in a /kv/{key} path. The key is the raw
// remainder of the path and may itself contain slashes.
func keyFromPath(path string) (string, bool) {
	key, ok := strings.CutPrefix(path, kvPrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
