package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader uploads exported files to an S3 bucket under their base names.
type S3Uploader struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Uploader builds an uploader using the ambient AWS credential chain.
func NewS3Uploader(ctx context.Context, bucket, region string, logger *slog.Logger) (*S3Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger,
	}, nil
}

// UploadFile puts one local file into the bucket and returns its s3:// URL.
func (u *S3Uploader) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	key := filepath.Base(path)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &u.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	url := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info("uploaded to S3", "url", url)
	return url, nil
}
