package riptidehttp

import (
	"fmt"
	"path/filepath"

	"github.com/telsin/riptide/internal/utils"
)

// PlanChunks splits the resource into inclusive byte ranges of chunkSize,
// clipping the last range to the end of the file. When the size is unknown or
// the server cannot serve ranges the plan degrades to a single open-ended
// chunk fetched on one connection.
func PlanChunks(probe *utils.ProbeResult, chunkSize int64) []utils.Chunk {
	if probe.TotalSize <= 0 || !probe.RangeSupported {
		return []utils.Chunk{{ID: 0, Start: 0, End: -1}}
	}
	numChunks := int(probe.TotalSize / chunkSize)
	if probe.TotalSize%chunkSize != 0 {
		numChunks++
	}
	chunks := make([]utils.Chunk, 0, numChunks)
	for i := range numChunks {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if end >= probe.TotalSize {
			end = probe.TotalSize - 1
		}
		chunks = append(chunks, utils.Chunk{ID: i, Start: start, End: end})
	}
	return chunks
}

// tempDirFor returns the staging directory for chunk files, kept next to the
// final output so the assembly rename stays on one filesystem.
func tempDirFor(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), utils.TempDirName)
}

// chunkPartPath names a chunk file after the output and its byte range, so
// concurrent downloads into the same directory never collide.
func chunkPartPath(tempDir, outputPath string, chunk utils.Chunk) string {
	return filepath.Join(tempDir, fmt.Sprintf("%s.part.%s", filepath.Base(outputPath), chunk.RangeKey()))
}
