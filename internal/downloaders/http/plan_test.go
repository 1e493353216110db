package riptidehttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telsin/riptide/internal/utils"
)

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name      string
		totalSize int64
		ranges    bool
		chunkSize int64
		want      []utils.Chunk
	}{
		{
			name:      "uneven last chunk",
			totalSize: 10 * 1024 * 1024,
			ranges:    true,
			chunkSize: 4 * 1024 * 1024,
			want: []utils.Chunk{
				{ID: 0, Start: 0, End: 4*1024*1024 - 1},
				{ID: 1, Start: 4 * 1024 * 1024, End: 8*1024*1024 - 1},
				{ID: 2, Start: 8 * 1024 * 1024, End: 10*1024*1024 - 1},
			},
		},
		{
			name:      "exact multiple",
			totalSize: 8192,
			ranges:    true,
			chunkSize: 4096,
			want: []utils.Chunk{
				{ID: 0, Start: 0, End: 4095},
				{ID: 1, Start: 4096, End: 8191},
			},
		},
		{
			name:      "smaller than one chunk",
			totalSize: 100,
			ranges:    true,
			chunkSize: 4096,
			want:      []utils.Chunk{{ID: 0, Start: 0, End: 99}},
		},
		{
			name:      "no range support",
			totalSize: 8192,
			ranges:    false,
			chunkSize: 4096,
			want:      []utils.Chunk{{ID: 0, Start: 0, End: -1}},
		},
		{
			name:      "unknown size",
			totalSize: 0,
			ranges:    true,
			chunkSize: 4096,
			want:      []utils.Chunk{{ID: 0, Start: 0, End: -1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &utils.ProbeResult{TotalSize: tt.totalSize, RangeSupported: tt.ranges}
			got := PlanChunks(probe, tt.chunkSize)
			require.Equal(t, tt.want, got)

			var covered int64
			for _, c := range got {
				if c.End >= 0 {
					covered += c.Size()
				}
			}
			if tt.ranges && tt.totalSize > 0 {
				assert.Equal(t, tt.totalSize, covered, "chunks must cover the file exactly")
			}
		})
	}
}

func TestChunkRangeKey(t *testing.T) {
	assert.Equal(t, "0-4095", utils.Chunk{Start: 0, End: 4095}.RangeKey())
	assert.Equal(t, "4096-8191", utils.Chunk{Start: 4096, End: 8191}.RangeKey())
	assert.Equal(t, "0-eof", utils.Chunk{Start: 0, End: -1}.RangeKey())
	assert.Equal(t, int64(4096), utils.Chunk{Start: 0, End: 4095}.Size())
	assert.Equal(t, int64(-1), utils.Chunk{Start: 0, End: -1}.Size())
}
