package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(rawURL string) (string, string, error) {
	if !strings.HasPrefix(rawURL, "s3://") {
		return "", "", fmt.Errorf("not an s3:// URL: %s", rawURL)
	}
	parts := strings.SplitN(strings.TrimPrefix(rawURL, "s3://"), "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("missing bucket in %s", rawURL)
	}
	if len(parts) < 2 || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("missing object key in %s", rawURL)
	}
	return parts[0], parts[1], nil
}

// S3Sync copies history files to and from a bucket so the same history can
// follow a library across machines.
type S3Sync struct {
	client *s3.Client
	log    zerolog.Logger
}

// NewS3Sync loads the shared AWS config for profile ("" means AWS_PROFILE or
// "default").
func NewS3Sync(ctx context.Context, profile string, log zerolog.Logger) (*S3Sync, error) {
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile == "" {
		profile = "default"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile), config.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.DisableLogOutputChecksumValidationSkipped = true
	})
	return &S3Sync{
		client: client,
		log:    log.With().Str("op", "history/s3").Logger(),
	}, nil
}

func (s *S3Sync) Push(ctx context.Context, localPath, s3URL string) error {
	bucket, key, err := ParseS3URL(s3URL)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("error opening history file: %w", err)
	}
	defer f.Close()
	uploader := manager.NewUploader(s.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("error uploading history: %w", err)
	}
	s.log.Info().Str("bucket", bucket).Str("key", key).Msg("history pushed")
	return nil
}

// Pull downloads the object to a temp file beside localPath and renames it
// into place, so a failed transfer never truncates the existing history.
func (s *S3Sync) Pull(ctx context.Context, s3URL, localPath string) error {
	bucket, key, err := ParseS3URL(s3URL)
	if err != nil {
		return err
	}
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-pull-*")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	downloader := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		d.Concurrency = 1
	})
	n, err := downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("error downloading history: %w", err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return fmt.Errorf("error replacing history file: %w", err)
	}
	s.log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("history pulled")
	return nil
}
