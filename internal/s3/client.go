package s3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"S3Stream/internal/objstore"
)

// DefaultPageSize is the S3 maximum for ListObjectsV2.
const DefaultPageSize = 1000

// API is the subset of *s3.Client used by Client.
type API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

var _ API = (*s3.Client)(nil)

type Options struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	PathStyle          bool
	InsecureSkipVerify bool
	PageSize           int32
}

type Client struct {
	api      API
	pageSize int32
}

var _ objstore.Backend = (*Client)(nil)

// New builds a client for AWS S3 or an S3-compatible endpoint. Without static
// keys the default AWS credential chain is used.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	httpClient := &http.Client{}
	if opts.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var endpoint string
	if strings.TrimSpace(opts.Endpoint) != "" {
		endpointURL, err := url.Parse(strings.TrimSpace(opts.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("s3 endpoint: %w", err)
		}
		if endpointURL.Scheme == "" {
			endpointURL, err = url.Parse("https://" + strings.TrimSpace(opts.Endpoint))
			if err != nil {
				return nil, fmt.Errorf("s3 endpoint: %w", err)
			}
		}
		endpoint = endpointURL.String()
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		o.UsePathStyle = opts.PathStyle
	})

	return NewWithAPI(client, opts.PageSize), nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, pageSize int32) *Client {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	return &Client{api: api, pageSize: pageSize}
}

func (c *Client) Put(ctx context.Context, dst objstore.Destination, body io.Reader, contentLength int64) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(dst.Bucket),
		Key:           aws.String(dst.Key),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", dst, err)
	}
	return nil
}

func (c *Client) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("get object %s/%s: %w", bucket, key, objstore.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (c *Client) Head(ctx context.Context, dst objstore.Destination) (time.Time, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(dst.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, objstore.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("head object %s: %w", dst, err)
	}
	return aws.ToTime(out.LastModified), nil
}

func (c *Client) Delete(ctx context.Context, dst objstore.Destination) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(dst.Key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", dst, err)
	}
	return nil
}

// ListPage fetches a single ListObjectsV2 page. cursor is the continuation
// token returned by the previous page, empty for the first one.
func (c *Client) ListPage(ctx context.Context, bucket, prefix, cursor string) (objstore.Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(c.pageSize),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}
	out, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return objstore.Page{}, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, err)
	}

	page := objstore.Page{Objects: make([]objstore.Object, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		page.Objects = append(page.Objects, objstore.Object{
			Key:  *obj.Key,
			Size: aws.ToInt64(obj.Size),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextCursor = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context, bucket string) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}

func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	_, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var existErr *types.BucketAlreadyExists
		var ownedErr *types.BucketAlreadyOwnedByYou
		if errors.As(err, &existErr) || errors.As(err, &ownedErr) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
