package objectstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploaderAPI struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploaderAPI) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploaderAPI) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3manager.UploadOutput{Location: "internal"}, nil
}

func TestUpload(t *testing.T) {
	api := &fakeUploaderAPI{}
	u := newUploader(api, "ai-img", "https://img.example.com/", logger.Discard())

	url, err := u.Upload(context.Background(), "summaries/abc.svg", []byte("<svg/>"), "image/svg+xml")
	require.NoError(t, err)

	assert.Equal(t, "https://img.example.com/summaries/abc.svg", url)
	assert.Equal(t, "ai-img", aws.StringValue(api.input.Bucket))
	assert.Equal(t, "summaries/abc.svg", aws.StringValue(api.input.Key))
	assert.Equal(t, "image/svg+xml", aws.StringValue(api.input.ContentType))
	assert.Equal(t, "public-read", aws.StringValue(api.input.ACL))
	assert.Equal(t, []byte("<svg/>"), api.body)
}

func TestUploadError(t *testing.T) {
	boom := errors.New("connection reset")
	u := newUploader(&fakeUploaderAPI{err: boom}, "b", "https://x", logger.Discard())

	_, err := u.Upload(context.Background(), "k", nil, "image/png")
	assert.ErrorIs(t, err, boom)
}

func TestNewUploaderRequiresConfig(t *testing.T) {
	_, err := NewUploader(config.StorageConfig{Bucket: "b"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNotConfigured)

	u, err := NewUploader(config.StorageConfig{
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Bucket:          "ai-img",
		PublicDomain:    "https://img.example.com",
		UploadAttempts:  3,
	}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "ai-img", u.bucket)
}
