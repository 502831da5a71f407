package artifacts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror uploads bundles to an S3 bucket under
// bundles/<fingerprint>/<name>.
type S3Mirror struct {
	client *s3.Client
	bucket string
}

// S3Config holds S3Mirror settings. Endpoint supports MinIO and LocalStack.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// NewS3Mirror creates the S3-backed mirror using the ambient AWS credential
// chain.
func NewS3Mirror(ctx context.Context, cfg S3Config) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Mirror{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads one bundle file. Uploads are idempotent per fingerprint: the
// same run overwrites its own objects.
func (m *S3Mirror) Put(ctx context.Context, fingerprint, name string, data []byte) error {
	key := "bundles/" + sanitize(fingerprint) + "/" + name
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}
