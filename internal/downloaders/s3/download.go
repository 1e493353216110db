package s3

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/ratelimit"
	"github.com/telsin/riptide/internal/utils"
)

func (d *S3Transfer) Run(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker) error {
	bucket := spec.Metadata["bucket"].(string)
	key := spec.Metadata["key"].(string)
	kind, _ := spec.Metadata["fileType"].(string)

	client, err := newS3Client(ctx, awsProfile(spec))
	if err != nil {
		return fmt.Errorf("error creating S3 client: %v", err)
	}
	limiter := ratelimit.New(spec.RateLimit)
	if kind == "folder" {
		return d.runFolder(ctx, spec, tracker, client, limiter, bucket, key)
	}
	return d.runFile(ctx, spec, tracker, client, limiter, bucket, key)
}

func (d *S3Transfer) runFile(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker, client s3ClientAPI, limiter *ratelimit.Limiter, bucket, key string) error {
	log := output.GetLogger("s3")
	size, _ := spec.Metadata["size"].(int64)
	tracker.SetTotal(size)
	log.Debug().Int64("size", size).Msgf("Starting file download for s3://%s/%s", bucket, key)

	partSize := spec.ChunkSize
	if partSize <= 0 {
		partSize = 2 * utils.DefaultBufferSize
	}

	progressCh := make(chan int64, 100)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for n := range progressCh {
			tracker.Add(n)
		}
	}()

	err := downloadObject(ctx, client, bucket, key, spec.OutputPath, partSize, spec.Connections, limiter, progressCh)
	close(progressCh)
	<-aggDone
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	if spec.SHA256 != "" {
		log.Debug().Msg("Verifying checksum")
		if err := utils.VerifyFile(spec.OutputPath, spec.SHA256); err != nil {
			return err
		}
	}
	return nil
}

func (d *S3Transfer) runFolder(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker, client s3ClientAPI, limiter *ratelimit.Limiter, bucket, prefix string) error {
	log := output.GetLogger("s3")
	objects, err := listObjects(ctx, client, bucket, prefix)
	if err != nil {
		return fmt.Errorf("error listing objects: %v", err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects found in s3://%s/%s", bucket, prefix)
	}
	var totalSize int64
	for _, obj := range objects {
		totalSize += obj.Size
	}
	tracker.SetTotal(totalSize)
	log.Debug().Int("objects", len(objects)).Int64("size", totalSize).Msg("Starting folder download")

	progressCh := make(chan int64, 100)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for n := range progressCh {
			tracker.Add(n)
		}
	}()

	objectCh := make(chan s3Object, len(objects))
	for _, obj := range objects {
		objectCh <- obj
	}
	close(objectCh)

	numWorkers := min(spec.Connections, len(objects))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range objectCh {
				mu.Lock()
				stopped := firstErr != nil
				mu.Unlock()
				if stopped || ctx.Err() != nil {
					return
				}
				relPath := strings.TrimPrefix(obj.Key, prefix)
				relPath = strings.TrimPrefix(relPath, "/")
				outputPath := filepath.Join(spec.OutputPath, relPath)
				if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("error creating directory: %v", err)
					}
					mu.Unlock()
					return
				}
				if err := streamObject(ctx, client, bucket, obj.Key, outputPath, limiter, progressCh); err != nil {
					mu.Lock()
					if firstErr == nil {
						if ctx.Err() != nil {
							firstErr = ctx.Err()
						} else {
							firstErr = fmt.Errorf("error downloading %s: %v", obj.Key, err)
						}
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
	return firstErr
}
