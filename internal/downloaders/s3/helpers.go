package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/telsin/riptide/internal/ratelimit"
	"github.com/telsin/riptide/internal/utils"
)

type s3Object struct {
	Key  string
	Size int64
}

// s3ClientAPI is the slice of the S3 client this package calls. The transfer
// manager and the list paginator both take interface clients, so everything
// downstream works against this too.
type s3ClientAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func newS3Client(ctx context.Context, profile string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(profile),
		config.WithRetryMode("adaptive"),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.DisableLogOutputChecksumValidationSkipped = true
	}), nil
}

// objectInfo classifies the key as a file or a folder. HEAD succeeding means
// a file; otherwise a non-empty listing under the prefix means a folder.
func objectInfo(ctx context.Context, client s3ClientAPI, bucket, key string) (string, int64, error) {
	headObj, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		size := int64(0)
		if headObj.ContentLength != nil {
			size = *headObj.ContentLength
		}
		return "file", size, nil
	}

	result, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", 0, fmt.Errorf("error accessing S3 object: %v", err)
	}
	if len(result.Contents) > 0 || len(result.CommonPrefixes) > 0 {
		return "folder", -1, nil
	}
	return "", 0, fmt.Errorf("S3 object not found")
}

func listObjects(ctx context.Context, client s3ClientAPI, bucket, prefix string) ([]s3Object, error) {
	var objects []s3Object
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing objects: %v", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}
			// Zero-byte keys ending in / are directory markers.
			if *obj.Size == 0 && strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			objects = append(objects, s3Object{Key: *obj.Key, Size: *obj.Size})
		}
	}
	return objects, nil
}

// progressWriter forwards WriteAt calls to the output file, charging the rate
// limiter and reporting written bytes. The transfer manager calls it from
// several part goroutines at once.
type progressWriter struct {
	ctx        context.Context
	writer     io.WriterAt
	limiter    *ratelimit.Limiter
	progressCh chan<- int64
}

func (pw *progressWriter) WriteAt(p []byte, off int64) (int, error) {
	if err := pw.limiter.Wait(pw.ctx, int64(len(p))); err != nil {
		return 0, err
	}
	n, err := pw.writer.WriteAt(p, off)
	if n > 0 {
		pw.progressCh <- int64(n)
	}
	return n, err
}

// downloadObject fetches one object with the parallel transfer manager,
// splitting it into partSize ranges downloaded on concurrency goroutines.
func downloadObject(ctx context.Context, client s3ClientAPI, bucket, key, outputPath string, partSize int64, concurrency int, limiter *ratelimit.Limiter, progressCh chan<- int64) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("error creating output file: %v", err)
	}
	defer file.Close()

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = partSize
		d.Concurrency = concurrency
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(utils.DefaultBufferSize)
	})
	_, err = downloader.Download(ctx, &progressWriter{
		ctx:        ctx,
		writer:     file,
		limiter:    limiter,
		progressCh: progressCh,
	}, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error downloading S3 object: %v", err)
	}
	return nil
}

// streamObject fetches one object as a plain stream. Folder downloads use
// this per object since the worker pool already provides the parallelism.
func streamObject(ctx context.Context, client s3ClientAPI, bucket, key, outputPath string, limiter *ratelimit.Limiter, progressCh chan<- int64) error {
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error getting object: %v", err)
	}
	defer result.Body.Close()

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("error creating file: %v", err)
	}
	defer file.Close()

	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		n, readErr := result.Body.Read(buffer)
		if n > 0 {
			if err := limiter.Wait(ctx, int64(n)); err != nil {
				return err
			}
			if _, err := file.Write(buffer[:n]); err != nil {
				return fmt.Errorf("error writing file: %v", err)
			}
			progressCh <- int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("error reading object: %v", readErr)
		}
	}
	return nil
}
