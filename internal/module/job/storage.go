package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/aditus/server/internal/shared/config"
)

// ScreenshotStore persists uploaded screenshots so extraction inputs
// can be re-examined later.
type ScreenshotStore interface {
	// Store writes screenshot bytes and returns the object key.
	Store(ctx context.Context, userID uuid.UUID, data []byte, contentType string) (string, error)
}

// S3ScreenshotStore stores screenshots in an S3-compatible bucket.
type S3ScreenshotStore struct {
	client *s3.Client
	bucket string
}

// NewS3ScreenshotStore creates a new screenshot store.
func NewS3ScreenshotStore(cfg *config.StorageConfig) (*S3ScreenshotStore, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, errors.New("incomplete storage configuration")
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3ScreenshotStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Store writes screenshot bytes under screenshots/{user}/{date}/{id}.
func (s *S3ScreenshotStore) Store(ctx context.Context, userID uuid.UUID, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("screenshots/%s/%s/%s",
		userID,
		time.Now().UTC().Format("2006-01-02"),
		uuid.New(),
	)
	if contentType == "" {
		contentType = "image/png"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put screenshot: %w", err)
	}
	return key, nil
}
