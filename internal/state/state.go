package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telsin/riptide/internal/utils"
)

// TransferState is the durable record of per-chunk progress, kept as a hidden
// JSON sidecar next to the destination file. It is written through on every
// progress update by a single writer goroutine, and validated on load so a
// changed remote or changed plan never resumes into a stale layout.
type TransferState struct {
	URL       string           `json:"url"`
	ETag      string           `json:"etag,omitempty"`
	TotalSize int64            `json:"total_size"`
	ChunkSize int64            `json:"chunk_size"`
	Chunks    map[string]int64 `json:"chunks"`
	UpdatedAt time.Time        `json:"updated_at"`

	path string
}

// SidecarPath returns the state file path for an output path.
func SidecarPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	return filepath.Join(dir, "."+base+utils.SidecarSuffix)
}

func New(outputPath, url, etag string, totalSize, chunkSize int64) *TransferState {
	return &TransferState{
		URL:       url,
		ETag:      etag,
		TotalSize: totalSize,
		ChunkSize: chunkSize,
		Chunks:    make(map[string]int64),
		path:      SidecarPath(outputPath),
	}
}

// Load reads the sidecar for an output path. A missing or unreadable sidecar
// returns nil with no error; resume is best-effort.
func Load(outputPath string) (*TransferState, error) {
	path := SidecarPath(outputPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s TransferState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error parsing state file %s: %v", path, err)
	}
	if s.Chunks == nil {
		s.Chunks = make(map[string]int64)
	}
	s.path = path
	return &s, nil
}

// Matches reports whether a loaded state belongs to the same transfer: same
// URL, same chunk layout, same size, and the same ETag when both sides have
// one.
func (s *TransferState) Matches(url, etag string, totalSize, chunkSize int64) bool {
	if s.URL != url || s.TotalSize != totalSize || s.ChunkSize != chunkSize {
		return false
	}
	if s.ETag != "" && etag != "" && s.ETag != etag {
		return false
	}
	return true
}

func (s *TransferState) Written(key string) int64 {
	return s.Chunks[key]
}

func (s *TransferState) Advance(key string, delta int64) {
	next := s.Chunks[key] + delta
	if next < 0 {
		next = 0
	}
	s.Chunks[key] = next
}

func (s *TransferState) Set(key string, written int64) {
	s.Chunks[key] = written
}

// Reset clears all counters. Called at the start of a run so counts are
// rebuilt from what is actually on disk rather than trusted from the record.
func (s *TransferState) Reset() {
	s.Chunks = make(map[string]int64)
}

func (s *TransferState) TotalWritten() int64 {
	var total int64
	for _, n := range s.Chunks {
		total += n
	}
	return total
}

// Save persists the state atomically: write a temp file, then rename over the
// previous record, so a crash never leaves a torn sidecar.
func (s *TransferState) Save() error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Remove deletes the sidecar. Used on successful completion and when a stale
// record is invalidated.
func (s *TransferState) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
