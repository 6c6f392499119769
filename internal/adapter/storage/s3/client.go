// Package s3 uploads operator archives to S3 or an S3-compatible endpoint.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/strogmv/mailrelay/internal/port"
)

type S3Client struct {
	client *s3.Client
	bucket string
}

func New(ctx context.Context, region, bucket, endpoint string) (*S3Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Client{
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		}),
		bucket: bucket,
	}, nil
}

// Upload stores the object and returns its s3:// location.
func (s *S3Client) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

var _ port.ObjectStorage = (*S3Client)(nil)
