package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/proxycache/pkg/node"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	n := flag.Int("n", 5000, "requests")
	conc := flag.Int("c", 32, "concurrency")
	valSize := flag.Int("val", 128, "value size bytes")
	keys := flag.Int("keys", 0, "distinct keys (0 = one per request)")
	flag.Parse()

	base := "http://" + node.NormalizeHostPort(*addr, "8080") + "/kv/"
	client := &http.Client{Timeout: 5 * time.Second}

	var hits, misses atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*conc)
	start := time.Now()

	for i := 0; i < *n; i++ {
		g.Go(func() error {
			k := i
			if *keys > 0 {
				k = i % *keys
			}
			url := base + fmt.Sprintf("k%d", k)
			payload := bytes.Repeat([]byte{byte(rand.Intn(255))}, *valSize)

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err = client.Do(req)
			if err != nil {
				return err
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
	dur := time.Since(start)
	fmt.Printf("Completed %d ops in %s (%.2f ops/s), read-back hits=%d misses=%d\n",
		*n*2, dur, float64(*n*2)/dur.Seconds(), hits.Load(), misses.Load())
}
