package pipeflow

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LogStore receives the captured output of finished attempts. Implementations
// must tolerate concurrent calls; the pool ships output from worker
// goroutines, outside the scheduler's control loop.
type LogStore interface {
	PutAttemptLog(ctx context.Context, runID, jobID string, attempt uint, stdout, stderr []byte) error
}

// ObjectLogStoreConfig configures an S3-compatible attempt log sink.
type ObjectLogStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// ObjectLogStore uploads attempt output to an S3-compatible object store,
// one object per stream under <runID>/<jobID>/attempt-<n>.<stream>.log.
type ObjectLogStore struct {
	client *minio.Client
	bucket string
}

// NewObjectLogStore connects to the object store and ensures the bucket
// exists.
func NewObjectLogStore(ctx context.Context, cfg ObjectLogStoreConfig) (*ObjectLogStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &ObjectLogStore{client: client, bucket: cfg.Bucket}, nil
}

// PutAttemptLog stores both output streams. Empty streams are skipped.
func (s *ObjectLogStore) PutAttemptLog(ctx context.Context, runID, jobID string, attempt uint, stdout, stderr []byte) error {
	if err := s.put(ctx, runID, jobID, attempt, "stdout", stdout); err != nil {
		return err
	}
	return s.put(ctx, runID, jobID, attempt, "stderr", stderr)
}

func (s *ObjectLogStore) put(ctx context.Context, runID, jobID string, attempt uint, stream string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	key := fmt.Sprintf("%s/%s/attempt-%d.%s.log", runID, jobID, attempt, stream)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
