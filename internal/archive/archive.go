package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/terminal-bench/flightsurety/shared/events"
)

// Config holds object storage settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	Prefix    string
}

// Store writes committed event batches to an S3-compatible bucket as
// newline-delimited JSON. Object names are derived from the seq range, so
// a redelivered batch overwrites its own object.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates an archive store
func NewStore(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "events/"
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// EnsureBucket creates the bucket if it does not exist
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) Name() string {
	return "archive"
}

// Deliver uploads batch as one object
func (s *Store) Deliver(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	body, err := Encode(batch)
	if err != nil {
		return err
	}

	key := ObjectKey(s.prefix, batch)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
		UserMetadata: map[string]string{
			"first-seq": fmt.Sprint(batch[0].Seq),
			"last-seq":  fmt.Sprint(batch[len(batch)-1].Seq),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return nil
}

// ObjectKey names the object holding batch. Zero padding keeps a bucket
// listing in seq order.
func ObjectKey(prefix string, batch []events.Event) string {
	return fmt.Sprintf("%s%020d-%020d.ndjson", prefix, batch[0].Seq, batch[len(batch)-1].Seq)
}

// Encode renders batch as newline-delimited JSON
func Encode(batch []events.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batch {
		if err := enc.Encode(&batch[i]); err != nil {
			return nil, fmt.Errorf("encode event %d: %w", batch[i].Seq, err)
		}
	}
	return buf.Bytes(), nil
}
