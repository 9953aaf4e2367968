package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// XLSXContentType is the MIME type of uploaded snapshots.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Uploader stores an object and returns its location.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// S3Uploader implements Uploader with minio-go.
type S3Uploader struct {
	client *minio.Client
	bucket string
	region string
}

// NewS3Uploader creates an uploader for cfg.Bucket.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, eris.New("export: s3 endpoint and bucket are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: create s3 client")
	}
	return &S3Uploader{client: client, bucket: cfg.Bucket, region: region}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (u *S3Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return eris.Wrapf(err, "export: check bucket %s", u.bucket)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
		return eris.Wrapf(err, "export: make bucket %s", u.bucket)
	}
	zap.L().Info("export: created bucket", zap.String("bucket", u.bucket))
	return nil
}

// Upload puts data at key, overwriting any previous snapshot.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", eris.Wrapf(err, "export: put %s/%s", u.bucket, key)
	}
	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	zap.L().Info("export: uploaded snapshot",
		zap.String("location", location),
		zap.Int64("bytes", info.Size),
		zap.String("etag", info.ETag),
	)
	return location, nil
}
