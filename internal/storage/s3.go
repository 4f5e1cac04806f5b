package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectConfig holds S3-compatible object storage settings. A custom
// Endpoint targets non-AWS providers (R2, MinIO); leave it empty for AWS
// proper.
type ObjectConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string
}

// ObjectStore wraps an S3 client for report artifact objects.
type ObjectStore struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewObjectStore creates an ObjectStore from static credentials.
func NewObjectStore(cfg ObjectConfig, logger *slog.Logger) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	awsCfg := aws.Config{
		Region:      region,
		Credentials: creds,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("initialized object storage",
		"bucket", cfg.Bucket,
		"region", region,
		"endpoint", cfg.Endpoint,
	)

	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Put uploads an artifact under the given key.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := validateObjectKey(key); err != nil {
		return &StorageError{Op: "Put", Key: key, Err: err}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: wrapS3Error(err)}
	}

	s.logger.Debug("stored report artifact",
		"key", key,
		"size_bytes", len(data),
		"content_type", contentType,
	)
	return nil
}

// Get downloads the artifact at the given key.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateObjectKey(key); err != nil {
		return nil, &StorageError{Op: "Get", Key: key, Err: err}
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &StorageError{Op: "Get", Key: key, Err: wrapS3Error(err)}
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &StorageError{Op: "Get", Key: key, Err: err}
	}
	return data, nil
}

// Delete removes the artifact at the given key. S3 deletes are idempotent,
// so a missing key is not an error.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := validateObjectKey(key); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: wrapS3Error(err)}
	}

	s.logger.Debug("deleted report artifact", "key", key)
	return nil
}

func validateObjectKey(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

// wrapS3Error maps SDK errors to storage sentinels.
func wrapS3Error(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return ErrNotFound
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		}
		if httpErr, ok := err.(interface{ HTTPStatusCode() int }); ok {
			if httpErr.HTTPStatusCode() == http.StatusNotFound {
				return ErrNotFound
			}
		}
	}

	return fmt.Errorf("object storage operation failed: %w", err)
}
