package node

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/proxycache/pkg/buffer"
	"github.com/ryandielhenn/proxycache/pkg/kv"
)

// Healthz returns 200 OK to indicate the Node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes a JSON payload with the node id, process ID, current time,
// item count and stored bytes.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		ID    string    `json:"id"`
		PID   int       `json:"pid"`
		Now   time.Time `json:"now"`
		Items int       `json:"items"`
		Bytes int       `json:"bytes"`
	}
	data, _ := json.Marshal(resp{
		ID:    n.id,
		PID:   os.Getpid(),
		Now:   time.Now(),
		Items: n.cache.Len(),
		Bytes: n.cache.Bytes(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// KV dispatches /kv/{key} by method.
func (n *Node) KV(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPut, http.MethodPost:
		n.Put(w, req)
	case http.MethodGet, http.MethodHead:
		n.Get(w, req)
	case http.MethodDelete:
		n.Del(w, req)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Put stores the request body under the key.
func (n *Node) Put(w http.ResponseWriter, req *http.Request) {
	key, ok := keyFromPath(req.URL.Path)
	if !ok {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	val, err := io.ReadAll(http.MaxBytesReader(w, req.Body, n.maxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	size := len(val)
	switch err := n.cache.Add(key, buffer.Own(val)); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, kv.ErrValueTooLarge):
		n.log.Info("value rejected", zap.String("key", key), zap.Int("size", size))
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, kv.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		n.log.Error("add failed", zap.String("key", key), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Get returns the value for a key.
func (n *Node) Get(w http.ResponseWriter, req *http.Request) {
	key, ok := keyFromPath(req.URL.Path)
	if !ok {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	val, ok := n.cache.Get(key)
	if !ok {
		http.NotFound(w, req)
		return
	}
	body := val.Bytes()
	val.Release()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if req.Method == http.MethodHead {
		return
	}
	w.Write(body)
}

// Del removes a key.
func (n *Node) Del(w http.ResponseWriter, req *http.Request) {
	key, ok := keyFromPath(req.URL.Path)
	if !ok {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	n.cache.Delete(key)
	w.WriteHeader(http.StatusNoContent)
}

// Dump writes the cache's bucket dump as plain text.
func (n *Node) Dump(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := n.cache.Dump(w); err != nil {
		n.log.Warn("dump failed", zap.Error(err))
	}
}

// Routes mounts the node endpoints on mux. wrap, when non-nil, decorates the
// /kv/ handler (metrics, access logs).
func (n *Node) Routes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	var kvh http.Handler = http.HandlerFunc(n.KV)
	if wrap != nil {
		kvh = wrap(kvh)
	}
	mux.Handle(kvPrefix, kvh)
	mux.HandleFunc("/healthz", n.Healthz)
	mux.HandleFunc("/info", n.Info)
	mux.HandleFunc("/debug/cache", n.Dump)
}
