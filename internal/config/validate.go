package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidBackend = errors.New("invalid backend: must be exactly 's3' or 'minio'")

func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Backend {
	case BackendS3, BackendMinIO:
	case "":
		return fmt.Errorf("%w (backend is required)", ErrInvalidBackend)
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidBackend, cfg.Backend)
	}
	if cfg.Backend == BackendMinIO && (cfg.S3 == nil || cfg.S3.Endpoint == "") {
		return fmt.Errorf("s3.endpoint is required for the minio backend")
	}
	if cfg.S3 != nil {
		cfg.S3.Endpoint = strings.TrimSuffix(strings.TrimSpace(cfg.S3.Endpoint), "/")
		if (cfg.S3.AccessKey == "") != (cfg.S3.SecretKey == "") {
			return fmt.Errorf("s3.access_key and s3.secret_key must be set together")
		}
	}
	if cfg.Archive != nil {
		if cfg.Archive.PipeSizeKB < 0 {
			return fmt.Errorf("archive.pipe_size_kb must not be negative")
		}
		switch cfg.Archive.Compression {
		case "", "none", "gz", "zst":
		default:
			return fmt.Errorf("archive.compression: unknown format %q", cfg.Archive.Compression)
		}
	}
	if cfg.Lock != nil && cfg.Lock.TTL != "" {
		if _, err := time.ParseDuration(cfg.Lock.TTL); err != nil {
			return fmt.Errorf("lock.ttl: %w", err)
		}
	}
	return nil
}

// LockTTL returns the parsed lock TTL, or zero when none is configured. It
// applies to locks requested per command even when lock.enabled is false.
func LockTTL(cfg *Config) time.Duration {
	if cfg == nil || cfg.Lock == nil || cfg.Lock.TTL == "" {
		return 0
	}
	d, _ := time.ParseDuration(cfg.Lock.TTL)
	return d
}
