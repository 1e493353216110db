package riptidehttp

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telsin/riptide/internal/utils"
)

func TestAssembleOutOfOrder(t *testing.T) {
	data := testPayload(3 * 1024)
	out := filepath.Join(t.TempDir(), "file.bin")
	tempDir := tempDirFor(out)
	require.NoError(t, os.MkdirAll(tempDir, 0755))

	chunks := []utils.Chunk{
		{ID: 0, Start: 0, End: 1023},
		{ID: 1, Start: 1024, End: 2047},
		{ID: 2, Start: 2048, End: 3071},
	}
	for _, c := range chunks {
		part := data[c.Start : c.End+1]
		require.NoError(t, os.WriteFile(chunkPartPath(tempDir, out, c), part, 0644))
	}

	// Completion order is arbitrary; assembly must impose range order.
	shuffled := []utils.Chunk{chunks[2], chunks[0], chunks[1]}
	require.NoError(t, assembleChunks(shuffled, tempDir, out, int64(len(data))))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	_, err = os.Stat(tempDir)
	assert.True(t, os.IsNotExist(err), "temp directory should be removed after assembly")
}

func TestAssembleSingleChunkRename(t *testing.T) {
	data := testPayload(2048)
	out := filepath.Join(t.TempDir(), "file.bin")
	tempDir := tempDirFor(out)
	require.NoError(t, os.MkdirAll(tempDir, 0755))

	chunk := utils.Chunk{ID: 0, Start: 0, End: -1}
	require.NoError(t, os.WriteFile(chunkPartPath(tempDir, out, chunk), data, 0644))
	require.NoError(t, assembleChunks([]utils.Chunk{chunk}, tempDir, out, int64(len(data))))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestAssembleSizeMismatch(t *testing.T) {
	out := filepath.Join(t.TempDir(), "file.bin")
	tempDir := tempDirFor(out)
	require.NoError(t, os.MkdirAll(tempDir, 0755))

	chunks := []utils.Chunk{
		{ID: 0, Start: 0, End: 1023},
		{ID: 1, Start: 1024, End: 2047},
	}
	require.NoError(t, os.WriteFile(chunkPartPath(tempDir, out, chunks[0]), testPayload(1024), 0644))
	require.NoError(t, os.WriteFile(chunkPartPath(tempDir, out, chunks[1]), testPayload(100), 0644))

	err := assembleChunks(chunks, tempDir, out, 2048)
	require.Error(t, err)

	for _, c := range chunks {
		_, statErr := os.Stat(chunkPartPath(tempDir, out, c))
		assert.NoError(t, statErr, "chunk files are kept when assembly fails")
	}
}
