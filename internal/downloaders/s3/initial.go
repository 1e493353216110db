package s3

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/utils"
)

// S3Transfer fetches a single object through the parallel transfer manager,
// or a whole prefix with a worker pool streaming one object each.
type S3Transfer struct{}

func (d *S3Transfer) Validate(spec *utils.TransferSpec) error {
	bucket, key, err := parseS3URL(spec.URL)
	if err != nil {
		return err
	}
	if spec.Connections < 1 {
		return fmt.Errorf("connections must be at least 1")
	}
	if spec.Metadata == nil {
		spec.Metadata = make(map[string]any)
	}
	spec.Metadata["bucket"] = bucket
	spec.Metadata["key"] = key
	return nil
}

// Prepare resolves whether the URL names an object or a prefix, settles the
// output path, and rejects combinations that cannot work before any bytes
// move.
func (d *S3Transfer) Prepare(ctx context.Context, spec *utils.TransferSpec) error {
	log := output.GetLogger("s3")
	bucket := spec.Metadata["bucket"].(string)
	key := spec.Metadata["key"].(string)

	client, err := newS3Client(ctx, awsProfile(spec))
	if err != nil {
		return fmt.Errorf("error creating S3 client: %v", err)
	}
	kind, size, err := objectInfo(ctx, client, bucket, key)
	if err != nil {
		return fmt.Errorf("error getting S3 object info: %v", err)
	}
	spec.Metadata["fileType"] = kind
	spec.Metadata["size"] = size
	log.Debug().Str("kind", kind).Int64("size", size).Msgf("Resolved s3://%s/%s", bucket, key)

	if kind == "folder" && spec.SHA256 != "" {
		return fmt.Errorf("checksum verification is not supported for folder downloads")
	}

	if spec.OutputPath == "" {
		if kind == "folder" {
			parts := strings.Split(strings.TrimSuffix(key, "/"), "/")
			spec.OutputPath = parts[len(parts)-1]
			if spec.OutputPath == "" {
				spec.OutputPath = bucket
			}
		} else {
			parts := strings.Split(key, "/")
			spec.OutputPath = parts[len(parts)-1]
		}
	}
	if kind == "folder" {
		if info, err := os.Stat(spec.OutputPath); err == nil && info.IsDir() {
			spec.OutputPath = utils.RenewOutputPath(spec.OutputPath)
			log.Debug().Str("output", spec.OutputPath).Msg("Output directory exists, using renewed path")
		}
	} else if info, err := os.Stat(spec.OutputPath); err == nil && !info.IsDir() {
		spec.OutputPath = utils.RenewOutputPath(spec.OutputPath)
		log.Debug().Str("output", spec.OutputPath).Msg("Output exists, using renewed path")
	}
	return nil
}

func awsProfile(spec *utils.TransferSpec) string {
	if profile, ok := spec.Metadata["profile"].(string); ok && profile != "" {
		return profile
	}
	if profile := os.Getenv("AWS_PROFILE"); profile != "" {
		return profile
	}
	return "default"
}

func parseS3URL(rawURL string) (string, string, error) {
	trimmed := strings.TrimPrefix(rawURL, "s3://")
	if trimmed == rawURL {
		return "", "", fmt.Errorf("not an S3 URL: %s", rawURL)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	return parts[0], key, nil
}
