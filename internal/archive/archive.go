// Package archive uploads finalized evidence clips to S3-compatible
// object storage for long-term retention.
package archive

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/curbsight/curbsight/internal/monitoring"
)

// Options configures the object-storage connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Uploader copies local clip files into one bucket.
type Uploader struct {
	client *minio.Client
	bucket string
}

// NewUploader connects to the endpoint and ensures the bucket exists.
func NewUploader(ctx context.Context, opts Options) (*Uploader, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: create client: %w", err)
	}

	u := &Uploader{client: client, bucket: opts.Bucket}
	if err := u.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("archive: check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("archive: create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// UploadClip copies the clip file at path into the bucket under its base
// name and returns the object URL.
func (u *Uploader) UploadClip(ctx context.Context, path string) (string, error) {
	object := filepath.Base(path)
	info, err := u.client.FPutObject(ctx, u.bucket, object, path,
		minio.PutObjectOptions{ContentType: "video/mp4"})
	if err != nil {
		return "", fmt.Errorf("archive: upload %s: %w", object, err)
	}

	url := fmt.Sprintf("http://%s/%s/%s", u.client.EndpointURL().Host, u.bucket, object)
	monitoring.Logf("archive: uploaded %s (%d bytes)", object, info.Size)
	return url, nil
}
