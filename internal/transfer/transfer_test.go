package transfer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/utils"
)

func TestForRegistry(t *testing.T) {
	for _, kind := range []utils.TransferType{utils.TransferHTTP, utils.TransferS3, utils.TransferGitClone} {
		impl, err := For(kind)
		require.NoError(t, err, "type %s", kind)
		require.NotNil(t, impl)
	}

	_, err := For(utils.TransferTorrent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedSource))
	assert.Contains(t, err.Error(), "torrent engine")

	_, err = For(utils.TransferType("carrier-pigeon"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedSource))
}

func TestRunValidationFailure(t *testing.T) {
	spec := &utils.TransferSpec{
		Type:        utils.TransferHTTP,
		URL:         "ftp://example.com/file",
		Connections: 1,
		ChunkSize:   1,
	}
	err := Run(context.Background(), spec, progress.NewTracker("t"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestRunHTTPEndToEnd(t *testing.T) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 249)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "file.bin")
	spec := &utils.TransferSpec{
		ID:          "e2e",
		Type:        utils.TransferHTTP,
		URL:         srv.URL,
		OutputPath:  out,
		Connections: 2,
		ChunkSize:   16 * 1024,
		RetryCount:  2,
		HTTPClientConfig: utils.HTTPClientConfig{
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    5 * time.Second,
		},
		Metadata: make(map[string]any),
	}
	tracker := progress.NewTracker(spec.ID)
	require.NoError(t, Run(context.Background(), spec, tracker))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
	assert.Equal(t, int64(len(data)), tracker.Downloaded())
}
