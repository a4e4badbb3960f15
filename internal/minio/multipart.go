package minio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"

	"S3Stream/internal/objstore"
)

func putOptions(meta objstore.Metadata) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:        meta.ContentType,
		ContentEncoding:    meta.ContentEncoding,
		ContentDisposition: meta.ContentDisposition,
		CacheControl:       meta.CacheControl,
		UserMetadata:       meta.UserMetadata,
	}
}

func (c *Client) Initiate(ctx context.Context, dst objstore.Destination, meta objstore.Metadata) (string, error) {
	uploadID, err := c.api.NewMultipartUpload(ctx, dst.Bucket, dst.Key, putOptions(meta))
	if err != nil {
		return "", fmt.Errorf("new multipart upload: %w", err)
	}
	if uploadID == "" {
		return "", fmt.Errorf("new multipart upload: empty upload id")
	}
	return uploadID, nil
}

func (c *Client) UploadPart(ctx context.Context, dst objstore.Destination, uploadID string, partNumber int32, body []byte) (string, error) {
	part, err := c.api.PutObjectPart(ctx, dst.Bucket, dst.Key, uploadID, int(partNumber),
		bytes.NewReader(body), int64(len(body)), minio.PutObjectPartOptions{})
	if err != nil {
		return "", fmt.Errorf("put object part %d: %w", partNumber, err)
	}
	return part.ETag, nil
}

func (c *Client) Complete(ctx context.Context, dst objstore.Destination, uploadID string, parts []objstore.Part) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{PartNumber: int(p.Number), ETag: p.ETag})
	}
	_, err := c.api.CompleteMultipartUpload(ctx, dst.Bucket, dst.Key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

func (c *Client) Abort(ctx context.Context, dst objstore.Destination, uploadID string) error {
	if err := c.api.AbortMultipartUpload(ctx, dst.Bucket, dst.Key, uploadID); err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}
