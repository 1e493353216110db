package utils

import "fmt"

type TransferType string

const (
	TransferHTTP     TransferType = "http"
	TransferS3       TransferType = "s3"
	TransferGitClone TransferType = "gitclone"
	TransferTorrent  TransferType = "torrent"
)

// TransferSpec describes one transfer. It is built once by the caller and
// treated as immutable after the transfer starts; per-type working values
// discovered during preparation go into Metadata.
type TransferSpec struct {
	ID               string
	Type             TransferType
	URL              string
	OutputPath       string
	Connections      int
	ChunkSize        int64
	RateLimit        int64 // bytes/sec, 0 means unlimited
	RetryCount       int
	SHA256           string
	GitDepth         int
	HTTPClientConfig HTTPClientConfig
	Metadata         map[string]any
}

// ProbeResult is what a metadata probe learned about the remote resource.
// TotalSize <= 0 means the size is unknown.
type ProbeResult struct {
	TotalSize      int64
	RangeSupported bool
	Filename       string
	ETag           string
}

// Chunk is one byte range of the resource. End == -1 means "to EOF", which
// only happens for the single chunk planned when range support is absent.
type Chunk struct {
	ID    int
	Start int64
	End   int64
}

// RangeKey is the stable identifier for a chunk, used both in partial file
// names and as the key in the resume state sidecar.
func (c Chunk) RangeKey() string {
	if c.End < 0 {
		return fmt.Sprintf("%d-eof", c.Start)
	}
	return fmt.Sprintf("%d-%d", c.Start, c.End)
}

// Size returns the byte count of the chunk, or -1 when unbounded.
func (c Chunk) Size() int64 {
	if c.End < 0 {
		return -1
	}
	return c.End - c.Start + 1
}
