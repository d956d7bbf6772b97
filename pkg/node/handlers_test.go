package node

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/proxycache/pkg/kv"
)

func newTestServer(t *testing.T, cache kv.Cache, maxBody int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewNode(cache, "n1", maxBody, nil).Routes(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestPutGetDelete(t *testing.T) {
	srv := newTestServer(t, kv.NewStore(1<<10, 16), 0)

	resp, _ := do(t, http.MethodPut, srv.URL+"/kv/page/index.html", "<html>")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/kv/page/index.html", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>", body)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))

	resp, body = do(t, http.MethodHead, srv.URL+"/kv/page/index.html", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Equal(t, int64(len("<html>")), resp.ContentLength)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/kv/page/index.html", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/kv/page/index.html", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutStoresBodyVerbatim(t *testing.T) {
	store := kv.NewStore(1<<16, 16)
	srv := newTestServer(t, store, 0)

	body := strings.Repeat("0123456789abcdef", 256)
	resp, _ := do(t, http.MethodPut, srv.URL+"/kv/blob", body)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, len(body), store.Bytes())

	_, got := do(t, http.MethodGet, srv.URL+"/kv/blob", "")
	assert.Equal(t, body, got)
	_, got = do(t, http.MethodGet, srv.URL+"/kv/blob", "")
	assert.Equal(t, body, got, "reads must not disturb the stored body")
}

func TestPostOverwrites(t *testing.T) {
	store := kv.NewStore(1<<10, 16)
	srv := newTestServer(t, store, 0)

	do(t, http.MethodPost, srv.URL+"/kv/x", "one")
	do(t, http.MethodPost, srv.URL+"/kv/x", "two")

	_, body := do(t, http.MethodGet, srv.URL+"/kv/x", "")
	assert.Equal(t, "two", body)
	assert.Equal(t, 1, store.Len())
}

func TestPutRejections(t *testing.T) {
	srv := newTestServer(t, kv.NewStore(8, 4), 16)

	resp, _ := do(t, http.MethodPut, srv.URL+"/kv/k", "123456789")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, "larger than cache")

	resp, _ = do(t, http.MethodPut, srv.URL+"/kv/k", strings.Repeat("x", 17))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, "larger than body limit")

	resp, _ = do(t, http.MethodPut, srv.URL+"/kv/", "v")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/kv/k", "v")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPutAfterDestroy(t *testing.T) {
	store := kv.NewStore(64, 4)
	srv := newTestServer(t, store, 0)
	store.Destroy()

	resp, _ := do(t, http.MethodPut, srv.URL+"/kv/k", "v")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInfoHealthzDump(t *testing.T) {
	store := kv.NewStore(64, 1)
	srv := newTestServer(t, store, 0)
	do(t, http.MethodPut, srv.URL+"/kv/a", "1")
	do(t, http.MethodPut, srv.URL+"/kv/b", "22")

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, body = do(t, http.MethodGet, srv.URL+"/info", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info struct {
		ID    string `json:"id"`
		Items int    `json:"items"`
		Bytes int    `json:"bytes"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "n1", info.ID)
	assert.Equal(t, 2, info.Items)
	assert.Equal(t, 3, info.Bytes)

	_, body = do(t, http.MethodGet, srv.URL+"/debug/cache", "")
	assert.Equal(t, "Bucket 0: b: 22 ->a: 1 ->NULL\n", body)
}

func TestShardedBackend(t *testing.T) {
	srv := newTestServer(t, kv.NewSharded(1<<12, 64, 4), 0)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		resp, _ := do(t, http.MethodPut, srv.URL+"/kv/"+k, k+k)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	_, body := do(t, http.MethodGet, srv.URL+"/kv/c", "")
	assert.Equal(t, "cc", body)
}

func TestNormalizeHostPort(t *testing.T) {
	for in, want := range map[string]string{
		"localhost":              "localhost:8080",
		"localhost:9000":         "localhost:9000",
		"http://cache:8081/":     "cache:8081",
		"https://cache.internal": "cache.internal:8080",
	} {
		assert.Equal(t, want, NormalizeHostPort(in, "8080"), in)
	}
}

func TestKeyFromPath(t *testing.T) {
	k, ok := keyFromPath("/kv/a/b?c")
	assert.True(t, ok)
	assert.Equal(t, "a/b?c", k)

	_, ok = keyFromPath("/kv/")
	assert.False(t, ok)
	_, ok = keyFromPath("/other/x")
	assert.False(t, ok)
}
