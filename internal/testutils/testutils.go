// Package testutils provides shared test infrastructure.
package testutils

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// TestFile defines a test file served by the fake origin.
type TestFile struct {
	Name string
	Data []byte
}

// GenerateTestData generates deterministic test data of the given size.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

// FileServer is an httptest server that serves fixed files and counts
// requests per path.
type FileServer struct {
	*httptest.Server
	hits map[string]*atomic.Int64

	// ChunkDelay, when set, is slept between 4KiB writes so tests can
	// observe a download mid-flight.
	ChunkDelay time.Duration
}

// Hits returns how many GET requests the given file received.
func (s *FileServer) Hits(name string) int64 {
	c, ok := s.hits["/"+name]
	if !ok {
		return 0
	}
	return c.Load()
}

// StartFileServer starts an HTTP server serving the given files. The
// server is shut down via t.Cleanup.
func StartFileServer(t *testing.T, files []TestFile) *FileServer {
	t.Helper()

	data := make(map[string][]byte)
	hits := make(map[string]*atomic.Int64)
	for _, f := range files {
		data["/"+f.Name] = f.Data
		hits["/"+f.Name] = &atomic.Int64{}
	}

	fs := &FileServer{hits: hits}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := data[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if c, ok := hits[r.URL.Path]; ok && r.Method == http.MethodGet {
			c.Add(1)
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}

		if fs.ChunkDelay <= 0 {
			w.Write(body)
			return
		}
		flusher, _ := w.(http.Flusher)
		const chunk = 4 * 1024
		for off := 0; off < len(body); off += chunk {
			end := off + chunk
			if end > len(body) {
				end = len(body)
			}
			if _, err := w.Write(body[off:end]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(fs.ChunkDelay)
		}
	}))
	t.Cleanup(fs.Server.Close)

	return fs
}

// WaitFor polls cond every 10ms until it returns true or the timeout
// elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
