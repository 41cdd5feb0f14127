package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SpacesStore stores objects in an S3-compatible bucket (DigitalOcean
// Spaces, MinIO, S3 proper) and derives public URLs from bucket + endpoint.
type SpacesStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	logger   *slog.Logger
}

// NewSpacesStore connects to the S3-compatible endpoint.
func NewSpacesStore(log *slog.Logger, endpoint, region, bucket, accessKey, secretKey string) (*SpacesStore, error) {
	if log == nil {
		log = slog.Default()
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(endpoint), "https://"), "http://")
	if endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &SpacesStore{
		client:   client,
		bucket:   bucket,
		endpoint: endpoint,
		logger:   log.With(slog.String("component", "object_store")),
	}, nil
}

// Put uploads one object and returns its public URL.
func (s *SpacesStore) Put(ctx context.Context, in PutInput) (string, error) {
	if in.Reader == nil {
		return "", fmt.Errorf("reader is required")
	}
	key := strings.TrimLeft(in.Key, "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	meta := map[string]string{}
	for k, v := range in.Tags {
		if v != "" {
			meta[k] = v
		}
	}
	if in.PublicRead {
		// S3-compatible stores honor the canned ACL via this header.
		meta["x-amz-acl"] = "public-read"
	}

	opts := minio.PutObjectOptions{
		ContentType:  in.ContentType,
		UserMetadata: meta,
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, in.Reader, in.Size, opts)
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	s.logger.Info("object stored",
		slog.String("key", key),
		slog.Int64("size", info.Size))
	return s.PublicURL(key), nil
}

// PublicURL renders the virtual-hosted public URL for a key.
func (s *SpacesStore) PublicURL(key string) string {
	return "https://" + s.bucket + "." + s.endpoint + "/" + strings.TrimLeft(key, "/")
}
