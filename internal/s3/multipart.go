package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"S3Stream/internal/objstore"
)

func (c *Client) Initiate(ctx context.Context, dst objstore.Destination, meta objstore.Metadata) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(dst.Key),
	}
	if meta.ContentType != "" {
		input.ContentType = aws.String(meta.ContentType)
	}
	if meta.ContentEncoding != "" {
		input.ContentEncoding = aws.String(meta.ContentEncoding)
	}
	if meta.ContentDisposition != "" {
		input.ContentDisposition = aws.String(meta.ContentDisposition)
	}
	if meta.CacheControl != "" {
		input.CacheControl = aws.String(meta.CacheControl)
	}
	if len(meta.UserMetadata) > 0 {
		input.Metadata = meta.UserMetadata
	}

	out, err := c.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return "", fmt.Errorf("create multipart upload: empty upload id")
	}
	return uploadID, nil
}

// UploadPart sends body as part partNumber. body is not retained after the call.
func (c *Client) UploadPart(ctx context.Context, dst objstore.Destination, uploadID string, partNumber int32, body []byte) (string, error) {
	out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(dst.Bucket),
		Key:           aws.String(dst.Key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w", partNumber, err)
	}
	return aws.ToString(out.ETag), nil
}

func (c *Client) Complete(ctx context.Context, dst objstore.Destination, uploadID string, parts []objstore.Part) error {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		})
	}
	_, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(dst.Bucket),
		Key:      aws.String(dst.Key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

func (c *Client) Abort(ctx context.Context, dst objstore.Destination, uploadID string) error {
	_, err := c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(dst.Bucket),
		Key:      aws.String(dst.Key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}
