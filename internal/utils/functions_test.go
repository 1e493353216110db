package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"4MB", 4 * 1024 * 1024, false},
		{"4M", 4 * 1024 * 1024, false},
		{"512KB", 512 * 1024, false},
		{"512kb", 512 * 1024, false},
		{"1.5g", int64(1.5 * 1024 * 1024 * 1024), false},
		{"2T", 2 * 1024 * 1024 * 1024 * 1024, false},
		{"1024", 1024, false},
		{" 8 MB ", 8 * 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5MB", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "4.00 MB", FormatBytes(4*1024*1024))
	assert.Equal(t, "1.50 GB", FormatBytes(uint64(1.5*1024*1024*1024)))
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "0 B/s", FormatSpeed(0))
	assert.Equal(t, "0 B/s", FormatSpeed(-1))
	assert.Equal(t, "2.00 MB/s", FormatSpeed(2*1024*1024))
}

func TestDetermineTransferType(t *testing.T) {
	tests := []struct {
		source string
		want   TransferType
	}{
		{"https://example.com/file.iso", TransferHTTP},
		{"http://example.com/path", TransferHTTP},
		{"https://github.com/owner/repo", TransferHTTP},
		{"https://github.com/owner/repo.git", TransferGitClone},
		{"git@github.com:owner/repo.git", TransferGitClone},
		{"git@gitlab.com:owner/repo", TransferGitClone},
		{"s3://bucket/key/object.bin", TransferS3},
		{"magnet:?xt=urn:btih:deadbeef", TransferTorrent},
		{"https://example.com/file.torrent", TransferTorrent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetermineTransferType(tt.source), "source %q", tt.source)
	}
}

func TestParseHeaderArgs(t *testing.T) {
	headers, err := ParseHeaderArgs([]string{
		"Authorization: Bearer token123",
		"X-Custom:value",
		"Accept: application/json; q=0.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer token123", headers["Authorization"])
	assert.Equal(t, "value", headers["X-Custom"])
	assert.Equal(t, "application/json; q=0.9", headers["Accept"])

	_, err = ParseHeaderArgs([]string{"no-colon-here"})
	assert.Error(t, err)
	_, err = ParseHeaderArgs([]string{": empty name"})
	assert.Error(t, err)
}

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	renewed := RenewOutputPath(path)
	assert.Equal(t, filepath.Join(dir, "video-(1).mp4"), renewed)

	require.NoError(t, os.WriteFile(renewed, []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "video-(2).mp4"), RenewOutputPath(path))

	noExt := filepath.Join(dir, "archive")
	require.NoError(t, os.WriteFile(noExt, []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "archive-(1)"), RenewOutputPath(noExt))
}

func TestCleanDir(t *testing.T) {
	dir := t.TempDir()
	tempDir := filepath.Join(dir, TempDirName)
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "file.bin.part.0-100"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".file.bin"+SidecarSuffix), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0644))

	require.NoError(t, CleanDir(dir))

	_, err := os.Stat(tempDir)
	assert.True(t, os.IsNotExist(err), "temp dir should be removed")
	_, err = os.Stat(filepath.Join(dir, ".file.bin"+SidecarSuffix))
	assert.True(t, os.IsNotExist(err), "sidecar should be removed")
	_, err = os.Stat(filepath.Join(dir, "keep.txt"))
	assert.NoError(t, err, "unrelated files stay put")
}

func TestCleanDirEmpty(t *testing.T) {
	assert.NoError(t, CleanDir(t.TempDir()))
}
