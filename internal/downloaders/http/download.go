package riptidehttp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/ratelimit"
	"github.com/telsin/riptide/internal/state"
	"github.com/telsin/riptide/internal/utils"
)

// HTTPTransfer downloads a URL in concurrent byte-range chunks with resume
// support. Chunks land in a temp directory next to the destination and are
// concatenated in range order once every chunk is complete.
type HTTPTransfer struct{}

var sha256Regex = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

func (d *HTTPTransfer) Validate(spec *utils.TransferSpec) error {
	parsed, err := url.Parse(spec.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("invalid HTTP URL: %s", spec.URL)
	}
	if spec.Connections < 1 {
		return fmt.Errorf("connections must be at least 1")
	}
	if spec.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive")
	}
	if spec.SHA256 != "" && !sha256Regex.MatchString(spec.SHA256) {
		return fmt.Errorf("invalid sha256 checksum: %s", spec.SHA256)
	}
	return nil
}

// Prepare probes the remote, settles the output path, and decides whether an
// earlier interrupted transfer can be resumed. Results are stashed in the
// spec metadata for Run.
func (d *HTTPTransfer) Prepare(ctx context.Context, spec *utils.TransferSpec) error {
	log := output.GetLogger("http")
	client := utils.NewRiptideHTTPClient(spec.HTTPClientConfig)

	probe, err := Probe(ctx, spec.URL, client)
	if err != nil {
		return err
	}
	log.Debug().Int64("size", probe.TotalSize).Bool("rangeSupport", probe.RangeSupported).Msg("Probed URL")

	filename := probe.Filename
	if filename == "" {
		filename = filenameFromURL(spec.URL)
	}
	if spec.OutputPath == "" {
		spec.OutputPath = filename
	} else if info, err := os.Stat(spec.OutputPath); err == nil && info.IsDir() {
		spec.OutputPath = filepath.Join(spec.OutputPath, filename)
	}

	st, err := state.Load(spec.OutputPath)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring unreadable transfer state")
		os.Remove(state.SidecarPath(spec.OutputPath))
		st = nil
	}
	resumable := false
	if st != nil {
		if st.Matches(spec.URL, probe.ETag, probe.TotalSize, spec.ChunkSize) {
			resumable = true
			log.Debug().Int64("written", st.TotalWritten()).Msg("Found resumable transfer state")
		} else {
			log.Debug().Msg("Transfer state does not match remote, starting fresh")
			st.Remove()
			st = nil
		}
	}

	if info, err := os.Stat(spec.OutputPath); err == nil && !info.IsDir() && !resumable {
		if probe.TotalSize > 0 && info.Size() == probe.TotalSize {
			return fmt.Errorf("file already exists with same size: %s", spec.OutputPath)
		}
		spec.OutputPath = utils.RenewOutputPath(spec.OutputPath)
		log.Debug().Str("output", spec.OutputPath).Msg("Output exists, using renewed path")
	}

	if spec.Metadata == nil {
		spec.Metadata = make(map[string]any)
	}
	spec.Metadata["fileSize"] = probe.TotalSize
	spec.Metadata["rangeSupported"] = probe.RangeSupported
	spec.Metadata["etag"] = probe.ETag
	if resumable {
		spec.Metadata["resumeState"] = st
	}
	return nil
}

// Run executes the chunk plan with a bounded worker pool. Progress and resume
// state flow through a single aggregator goroutine, so the shared counter and
// the sidecar see every delta exactly once, in order, without worker-side
// locking.
func (d *HTTPTransfer) Run(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker) error {
	log := output.GetLogger("http")
	client := utils.NewRiptideHTTPClient(spec.HTTPClientConfig)

	fileSize, _ := spec.Metadata["fileSize"].(int64)
	rangeSupported, _ := spec.Metadata["rangeSupported"].(bool)
	etag, _ := spec.Metadata["etag"].(string)
	tracker.SetTotal(fileSize)

	chunks := PlanChunks(&utils.ProbeResult{TotalSize: fileSize, RangeSupported: rangeSupported}, spec.ChunkSize)
	if len(chunks) == 1 && chunks[0].End < 0 {
		log.Debug().Msg("Range requests unavailable or size unknown, using single stream")
	}

	tempDir := tempDirFor(spec.OutputPath)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %v", err)
	}

	st, _ := spec.Metadata["resumeState"].(*state.TransferState)
	if st == nil {
		cleanStaleParts(tempDir, filepath.Base(spec.OutputPath))
		st = state.New(spec.OutputPath, spec.URL, etag, fileSize, spec.ChunkSize)
	}
	// Chunk files are the source of truth for resumed bytes. Counters are
	// rebuilt from worker reports, so a stale count never survives a restart.
	st.Reset()

	limiter := ratelimit.New(spec.RateLimit)
	progressCh := make(chan chunkProgress, 256)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for p := range progressCh {
			tracker.Add(p.delta)
			st.Advance(p.key, p.delta)
			if err := st.Save(); err != nil {
				log.Debug().Err(err).Msg("Failed to persist transfer state")
			}
		}
	}()

	chunkCh := make(chan utils.Chunk, len(chunks))
	for _, chunk := range chunks {
		chunkCh <- chunk
	}
	close(chunkCh)

	workers := min(spec.Connections, len(chunks))
	log.Debug().Int("chunks", len(chunks)).Int("workers", workers).Msg("Starting chunk workers")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunkCh {
				// After a fatal chunk failure no new chunks are dispatched,
				// but in-flight chunks finish their writes cleanly.
				mu.Lock()
				stopped := firstErr != nil
				mu.Unlock()
				if stopped || ctx.Err() != nil {
					return
				}
				partPath := chunkPartPath(tempDir, spec.OutputPath, chunk)
				if err := fetchChunk(ctx, spec, chunk, rangeSupported, partPath, client, limiter, progressCh); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()
	close(progressCh)
	<-aggDone

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		log.Debug().Err(firstErr).Msg("Transfer stopped, chunk files and state kept for resume")
		return firstErr
	}

	for _, chunk := range chunks {
		if chunk.Size() < 0 {
			continue
		}
		info, err := os.Stat(chunkPartPath(tempDir, spec.OutputPath, chunk))
		if err != nil {
			return fmt.Errorf("chunk file missing for range %s: %v", chunk.RangeKey(), err)
		}
		if info.Size() != chunk.Size() {
			return fmt.Errorf("chunk %s incomplete: %d of %d bytes", chunk.RangeKey(), info.Size(), chunk.Size())
		}
	}

	if err := assembleChunks(chunks, tempDir, spec.OutputPath, fileSize); err != nil {
		return fmt.Errorf("error assembling file: %v", err)
	}
	if err := st.Remove(); err != nil {
		log.Debug().Err(err).Msg("Failed to remove transfer state")
	}

	if spec.SHA256 != "" {
		log.Debug().Msg("Verifying checksum")
		if err := utils.VerifyFile(spec.OutputPath, spec.SHA256); err != nil {
			return err
		}
		log.Debug().Msg("Checksum verified")
	}
	return nil
}

// cleanStaleParts removes chunk files left by an invalidated earlier attempt,
// matching only this output's parts so unrelated downloads sharing the temp
// directory are untouched.
func cleanStaleParts(tempDir, base string) {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return
	}
	prefix := base + ".part."
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			os.Remove(filepath.Join(tempDir, entry.Name()))
		}
	}
}
