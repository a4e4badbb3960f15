// Package backend builds the storage client selected by the configuration.
package backend

import (
	"context"
	"fmt"

	"S3Stream/internal/config"
	"S3Stream/internal/minio"
	"S3Stream/internal/objstore"
	"S3Stream/internal/s3"
)

// Client is an objstore.Backend with the bucket-level checks used by doctor
// and the integration tests.
type Client interface {
	objstore.Backend
	Ping(ctx context.Context, bucket string) error
	CreateBucket(ctx context.Context, bucket string) error
}

var (
	_ Client = (*s3.Client)(nil)
	_ Client = (*minio.Client)(nil)
)

func Open(ctx context.Context, cfg *config.Config) (Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	s3cfg := cfg.S3
	if s3cfg == nil {
		s3cfg = &config.S3Config{}
	}
	insecure := s3cfg.TLS != nil && s3cfg.TLS.InsecureSkipVerify

	switch cfg.Backend {
	case config.BackendMinIO:
		c, err := minio.New(minio.Options{
			Endpoint:           s3cfg.Endpoint,
			Region:             s3cfg.Region,
			AccessKey:          s3cfg.AccessKey,
			SecretKey:          s3cfg.SecretKey,
			PathStyle:          s3cfg.PathStyle,
			InsecureSkipVerify: insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("open minio backend: %w", err)
		}
		return c, nil
	default:
		c, err := s3.New(ctx, s3.Options{
			Endpoint:           s3cfg.Endpoint,
			Region:             s3cfg.Region,
			AccessKey:          s3cfg.AccessKey,
			SecretKey:          s3cfg.SecretKey,
			PathStyle:          s3cfg.PathStyle,
			InsecureSkipVerify: insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 backend: %w", err)
		}
		return c, nil
	}
}
