package avatars

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/idvault/authserver/config"
	"google.golang.org/api/option"
)

// GCSStore keeps avatar objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// NewGCSStore constructs a GCS-backed store from config.
func NewGCSStore(ctx context.Context, cfg config.GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSStore{
		client:    client,
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

// EnsureBucket creates the avatar bucket when it does not exist yet.
func (s *GCSStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if strings.TrimSpace(s.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	return s.client.Bucket(s.bucket).Create(ctx, s.projectID, nil)
}

// Put uploads an avatar object.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if strings.TrimSpace(contentType) != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
