// Package storage keeps raw ICS snapshots for debugging failed syncs.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ICSStore saves one raw ICS document under key.
type ICSStore interface {
	Save(ctx context.Context, key, ics string, metadata map[string]string) error
}

// snapshotTimeLayout is fixed width so keys of one profile sort by time.
const snapshotTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SnapshotKey names a snapshot "{profileID}_{timestamp}.ics", with the
// timestamp in nanoseconds.
func SnapshotKey(profileID string, at time.Time) string {
	if profileID == "" {
		profileID = "unknown"
	}
	return fmt.Sprintf("%s_%s.ics", profileID, at.UTC().Format(snapshotTimeLayout))
}

// Noop discards snapshots.
type Noop struct{}

func (Noop) Save(context.Context, string, string, map[string]string) error { return nil }

// LocalStore writes snapshots into a directory, with metadata in a JSON
// sidecar file.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(ctx context.Context, key, ics string, metadata map[string]string) error {
	name := filepath.Base(key)
	if name != key || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid snapshot key %q", key)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(ics), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if len(metadata) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot metadata: %w", err)
	}
	if err := os.WriteFile(path+".json", data, 0o644); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}
	return nil
}

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Store uploads snapshots to an S3-compatible bucket.
type S3Store struct {
	client s3Client
	bucket string
}

func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{client: newS3Client(cfg), bucket: cfg.Bucket}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: true,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *S3Store) Save(ctx context.Context, key, ics string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(ics),
		ContentType: aws.String("text/calendar; charset=utf-8"),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return nil
}
