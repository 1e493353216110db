package riptidehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/ratelimit"
	"github.com/telsin/riptide/internal/utils"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// chunkProgress reports newly persisted bytes for one chunk. Deltas are
// negative when a chunk restarts from zero and its earlier bytes no longer
// count.
type chunkProgress struct {
	key   string
	delta int64
}

// fetchChunk downloads one chunk to its part file, resuming from whatever the
// file already holds and retrying transient failures with exponential
// backoff. Cancellation is never retried.
func fetchChunk(ctx context.Context, spec *utils.TransferSpec, chunk utils.Chunk, rangeSupported bool, partPath string, client *utils.RiptideHTTPClient, limiter *ratelimit.Limiter, progressCh chan<- chunkProgress) error {
	log := output.GetLogger("chunk").With().Int("chunkId", chunk.ID).Str("range", chunk.RangeKey()).Logger()
	expected := chunk.Size()

	resumeOffset := int64(0)
	if info, err := os.Stat(partPath); err == nil {
		resumeOffset = info.Size()
		if expected > 0 && resumeOffset > expected {
			log.Debug().Int64("size", resumeOffset).Msg("Chunk file larger than range, restarting")
			if err := os.Remove(partPath); err != nil {
				return fmt.Errorf("error removing oversized chunk file: %v", err)
			}
			resumeOffset = 0
		}
	}
	if resumeOffset > 0 {
		progressCh <- chunkProgress{key: chunk.RangeKey(), delta: resumeOffset}
	}
	if expected > 0 && resumeOffset == expected {
		log.Debug().Msg("Chunk already complete, skipping")
		return nil
	}

	retries := spec.RetryCount
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := range retries {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			log.Debug().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying chunk")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			// A failed attempt may still have appended bytes. The file is
			// the source of truth for where the next attempt resumes.
			resumeOffset = 0
			if info, err := os.Stat(partPath); err == nil {
				resumeOffset = info.Size()
			}
			if expected > 0 && resumeOffset == expected {
				return nil
			}
		}

		err := downloadChunkRange(ctx, spec, chunk, rangeSupported, partPath, client, limiter, progressCh, resumeOffset)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("Chunk attempt failed")
	}
	return fmt.Errorf("chunk %s failed after %d attempts: %w", chunk.RangeKey(), retries, lastErr)
}

// downloadChunkRange performs a single fetch attempt, appending to the part
// file from resumeOffset. Bounded chunks demand a 206 for their range; the
// open-ended fallback accepts a plain 200 and truncates local progress if the
// server ignores the resume range.
func downloadChunkRange(ctx context.Context, spec *utils.TransferSpec, chunk utils.Chunk, rangeSupported bool, partPath string, client *utils.RiptideHTTPClient, limiter *ratelimit.Limiter, progressCh chan<- chunkProgress, resumeOffset int64) error {
	flags := os.O_WRONLY | os.O_CREATE
	if resumeOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("error opening chunk file: %v", err)
	}
	defer file.Close()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, "GET", spec.URL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Connection", "keep-alive")

	bounded := chunk.End >= 0
	if bounded {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", chunk.Start+resumeOffset, chunk.End))
	} else if rangeSupported && resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case bounded:
		if resp.StatusCode != http.StatusPartialContent {
			return fmt.Errorf("server returned %d for range request", resp.StatusCode)
		}
		if resp.Header.Get("Content-Range") == "" {
			return fmt.Errorf("server returned 206 without Content-Range")
		}
	case resumeOffset > 0 && resp.StatusCode == http.StatusOK:
		// Server ignored the resume range and is sending the whole body.
		// Drop what we had and start over.
		if err := file.Truncate(0); err != nil {
			return fmt.Errorf("error truncating chunk file: %v", err)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("error rewinding chunk file: %v", err)
		}
		progressCh <- chunkProgress{key: chunk.RangeKey(), delta: -resumeOffset}
		resumeOffset = 0
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	// Cancel the request if no bytes arrive for a full read timeout. The
	// transport's header timeout cannot see a body that stalls mid-stream.
	// The timer is only armed around the read itself so that time spent
	// waiting on the rate limiter does not count as a stall.
	readTimeout := client.ReadTimeout()
	stall := time.AfterFunc(readTimeout, cancel)
	defer stall.Stop()

	var written int64
	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		stall.Reset(readTimeout)
		n, readErr := resp.Body.Read(buffer)
		stall.Stop()
		if n > 0 {
			if err := limiter.Wait(ctx, int64(n)); err != nil {
				return err
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return fmt.Errorf("error writing to chunk file: %v", err)
			}
			written += int64(n)
			progressCh <- chunkProgress{key: chunk.RangeKey(), delta: int64(n)}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if reqCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("no data received for %s: %v", readTimeout, readErr)
			}
			return fmt.Errorf("error reading response: %v", readErr)
		}
	}

	if remaining := chunk.Size() - resumeOffset; bounded && written != remaining {
		return fmt.Errorf("chunk incomplete: got %d bytes, expected %d", written, remaining)
	}
	return nil
}
