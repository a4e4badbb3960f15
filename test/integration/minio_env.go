//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioImage    = "minio/minio:RELEASE.2024-01-16T16-07-38Z"
	minioUsername = "minioadmin"
	minioPassword = "minioadmin"
)

// getMinIOEnv returns the endpoint and credentials of the MinIO under test.
// S3STREAM_IT_ENDPOINT points at an existing server; otherwise a container
// is started for the test.
func getMinIOEnv(t *testing.T, ctx context.Context) (endpoint, accessKey, secretKey string) {
	t.Helper()
	if endpoint = os.Getenv("S3STREAM_IT_ENDPOINT"); endpoint != "" {
		accessKey = envOr("S3STREAM_IT_ACCESS_KEY", minioUsername)
		secretKey = envOr("S3STREAM_IT_SECRET_KEY", minioPassword)
		return strings.TrimSuffix(endpoint, "/"), accessKey, secretKey
	}

	ctr, err := minio.Run(ctx, minioImage,
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start MinIO container")

	connStr, err := ctr.ConnectionString(ctx)
	require.NoError(t, err, "MinIO connection string")
	return "http://" + connStr, minioUsername, minioPassword
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
