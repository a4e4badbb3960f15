// Package doctor runs environment checks for `s3stream doctor`.
package doctor

import (
	"context"
	"fmt"
	"os"
	"time"

	"S3Stream/internal/backend"
	"S3Stream/internal/config"
	"S3Stream/internal/lock"
)

type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// Opener builds the backend client; tests substitute a fake.
type Opener func(ctx context.Context, cfg *config.Config) (backend.Client, error)

// Run checks the configuration and, when bucket is set, that the bucket is
// reachable and writable.
func Run(ctx context.Context, cfg *config.Config, bucket string, open Opener) []CheckResult {
	var results []CheckResult

	if err := config.Validate(cfg); err != nil {
		results = append(results, CheckResult{Name: "config", OK: false, Detail: err.Error()})
		return results
	}
	results = append(results, CheckResult{Name: "config", OK: true, Detail: fmt.Sprintf("backend=%s", cfg.Backend)})

	if open == nil {
		open = backend.Open
	}
	client, err := open(ctx, cfg)
	if err != nil {
		return append(results, CheckResult{Name: "backend", OK: false, Detail: fmt.Sprintf("client init failed: %v", err)})
	}
	results = append(results, CheckResult{Name: "backend", OK: true, Detail: endpointDetail(cfg)})

	if bucket == "" {
		results = append(results, CheckResult{Name: "bucket", OK: true, Detail: "skipped (no bucket given)"})
	} else {
		ok, detail := checkBucket(ctx, client, bucket)
		results = append(results, CheckResult{Name: "bucket", OK: ok, Detail: detail})
		if ok {
			ok, detail = checkLock(ctx, client, bucket)
			results = append(results, CheckResult{Name: "lock", OK: ok, Detail: detail})
		}
	}

	ok, detail := checkDisk()
	results = append(results, CheckResult{Name: "disk", OK: ok, Detail: detail})
	return results
}

// Healthy reports whether every check passed.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}

func endpointDetail(cfg *config.Config) string {
	if cfg.S3 == nil || cfg.S3.Endpoint == "" {
		return "default AWS endpoint"
	}
	return cfg.S3.Endpoint
}

func checkBucket(ctx context.Context, client backend.Client, bucket string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, bucket); err != nil {
		return false, fmt.Sprintf("bucket check failed: %v", err)
	}
	return true, fmt.Sprintf("bucket %s reachable", bucket)
}

func checkLock(ctx context.Context, client backend.Client, bucket string) (bool, string) {
	l, err := lock.NewS3(lock.S3Options{Store: client, Bucket: bucket, Key: "doctor", TTL: time.Minute})
	if err != nil {
		return false, fmt.Sprintf("lock init failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := l.Acquire(ctx); err != nil {
		return false, fmt.Sprintf("lock acquire failed: %v", err)
	}
	if err := l.Release(ctx); err != nil {
		return false, fmt.Sprintf("lock release failed: %v", err)
	}
	return true, fmt.Sprintf("lock object writable (%s)", l.Key())
}

func checkDisk() (bool, string) {
	dir := os.TempDir()
	f, err := os.CreateTemp(dir, "s3stream-doctor-*")
	if err != nil {
		return false, fmt.Sprintf("create temp file failed in %s: %v", dir, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString("test"); err != nil {
		_ = f.Close()
		return false, fmt.Sprintf("write temp file failed: %v", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Sprintf("close temp file failed: %v", err)
	}
	return true, fmt.Sprintf("temp dir writable (%s)", dir)
}
