// Package objectstore wraps the S3-compatible bucket the Telegram ingress
// adapter uploads media attachments to, grounded on the minio-go client
// named in the retrieval pack's WAN-Ninjas-AmityVox manifest (no complete
// example repo in the pack ships object storage of its own).
package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store uploads attachment blobs under a fixed bucket and names each by an
// unsigned s3://bucket/key URL.
type Store struct {
	client *minio.Client
	bucket string
}

// New constructs a Store from connection parameters.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct object storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Put uploads data under key (conventionally "{chat_id}/{message_id}/{filename}"
// for Telegram attachments per the specification) and returns a URL the
// delivery path can persist as the attachment's s3_url.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// EnsureBucket creates the configured bucket if it does not already exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check object storage bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create object storage bucket: %w", err)
	}
	return nil
}
