// Package node exposes a cache over HTTP.
package node

import (
	"go.uber.org/zap"

	"github.com/ryandielhenn/proxycache/pkg/kv"
)

// DefaultMaxBody caps request bodies when NewNode is given a non-positive
// limit.
const DefaultMaxBody = 8 << 20

type Node struct {
	cache   kv.Cache
	id      string
	log     *zap.Logger
	maxBody int64
}

// NewNode serves cache under the given node id. Request bodies larger than
// maxBody bytes are refused.
func NewNode(cache kv.Cache, id string, maxBody int64, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Node{
		cache:   cache,
		id:      id,
		log:     log.With(zap.String("node", id)),
		maxBody: maxBody,
	}
}

func (n *Node) ID() string {
	return n.id
}
