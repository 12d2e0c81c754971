package export

import (
	"bytes"
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination uploads an export payload to an S3-compatible bucket,
// the optional bulk-export sink named in the export format section: a
// deployment with many traces can point exports at object storage instead
// of returning the whole envelope over HTTP.
type S3Destination struct {
	uploader *manager.Uploader
	bucket   string
}

// NewS3Destination loads AWS config from the environment/instance profile
// the way the SDK's default credential chain does.
func NewS3Destination(ctx context.Context, bucket string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Destination{uploader: manager.NewUploader(client), bucket: bucket}, nil
}

// Put uploads an exported payload under the given key and returns the
// object's s3:// URI.
func (d *S3Destination) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &d.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3://%s: %w", key, d.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", d.bucket, key), nil
}
