package riptidehttp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// rangeServer is a test origin with byte-range support and knobs for the
// failure modes workers must survive: missing HEAD support, missing range
// support, transient 500s for specific ranges, and mid-body stalls.
type rangeServer struct {
	data     []byte
	etag     string
	filename string
	noRanges bool
	noHead   bool

	mu       sync.Mutex
	failures map[string]int
	stalls   map[string]bool
	served   int64
	requests int
}

func newRangeServer(data []byte) *rangeServer {
	return &rangeServer{
		data:     data,
		etag:     `"v1-test"`,
		failures: make(map[string]int),
		stalls:   make(map[string]bool),
	}
}

func (s *rangeServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(srv.Close)
	return srv
}

// failNext makes the next n requests for an exact Range header fail with 500.
func (s *rangeServer) failNext(rangeHeader string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[rangeHeader] = n
}

// stallNext makes the next request for an exact Range header write half its
// body, then hang long enough to trip any sub-second read timeout.
func (s *rangeServer) stallNext(rangeHeader string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalls[rangeHeader] = true
}

func (s *rangeServer) servedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

func (s *rangeServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *rangeServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	if s.etag != "" {
		w.Header().Set("ETag", s.etag)
	}
	if s.filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.filename))
	}

	if r.Method == http.MethodHead {
		if s.noHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.noRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		return
	}

	rangeHeader := r.Header.Get("Range")
	s.mu.Lock()
	if n := s.failures[rangeHeader]; n > 0 {
		s.failures[rangeHeader] = n - 1
		s.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	stall := s.stalls[rangeHeader]
	delete(s.stalls, rangeHeader)
	s.mu.Unlock()

	if s.noRanges || rangeHeader == "" {
		if !s.noRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
		s.write(w, s.data)
		return
	}

	start, end, ok := parseByteRange(rangeHeader, int64(len(s.data)))
	if !ok {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	body := s.data[start : end+1]
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(s.data)))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusPartialContent)

	if stall {
		s.write(w, body[:len(body)/2])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(1500 * time.Millisecond)
		s.write(w, body[len(body)/2:])
		return
	}
	s.write(w, body)
}

func (s *rangeServer) write(w http.ResponseWriter, b []byte) {
	n, _ := w.Write(b)
	s.mu.Lock()
	s.served += int64(n)
	s.mu.Unlock()
}

func parseByteRange(header string, size int64) (int64, int64, bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	if start < 0 || start > end || end >= size {
		return 0, 0, false
	}
	return start, end, true
}

// testPayload builds deterministic bytes so reassembly mistakes show up as
// content mismatches, not just size mismatches.
func testPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
