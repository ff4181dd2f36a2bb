// Package objectstore uploads rendered images to an S3-compatible bucket
// (Cloudflare R2 in production) and returns their public URLs.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/storage"
)

// ErrNotConfigured is returned when the bucket settings are incomplete.
var ErrNotConfigured = errors.New("object storage is not configured")

// Uploader implements storage.Uploader with the S3 upload manager.
type Uploader struct {
	api          s3manageriface.UploaderAPI
	bucket       string
	publicDomain string
	logger       *slog.Logger
}

var _ storage.Uploader = (*Uploader)(nil)

// NewUploader builds an uploader from configuration. The SDK retryer handles
// transient failures with up to cfg.UploadAttempts attempts.
func NewUploader(cfg config.StorageConfig, logger *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" || cfg.PublicDomain == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg := aws.NewConfig().
		WithRegion(region).
		WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")).
		WithMaxRetries(cfg.UploadAttempts - 1).
		WithS3ForcePathStyle(true)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage session: %w", err)
	}
	return newUploader(s3manager.NewUploader(sess), cfg.Bucket, cfg.PublicDomain, logger), nil
}

func newUploader(api s3manageriface.UploaderAPI, bucket, publicDomain string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		api:          api,
		bucket:       bucket,
		publicDomain: strings.TrimRight(publicDomain, "/"),
		logger:       logger.With(slog.String("component", "object_store")),
	}
}

// Upload implements storage.Uploader.
func (u *Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := u.api.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url := u.publicDomain + "/" + key
	u.logger.InfoContext(ctx, "object uploaded",
		slog.String("key", key),
		slog.Int("bytes", len(body)),
		slog.String("url", url))
	return url, nil
}
