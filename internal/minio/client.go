// Package minio implements objstore.Backend on the minio-go Core client, for
// MinIO and other S3-compatible servers.
package minio

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"S3Stream/internal/objstore"
)

const DefaultPageSize = 1000

// API is the subset of *minio.Core used by Client.
type API interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	ListObjectsV2(bucketName, objectPrefix, startAfter, continuationToken, delimiter string, maxkeys int) (minio.ListBucketV2Result, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

var _ API = (*minio.Core)(nil)

type Options struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	PathStyle          bool
	InsecureSkipVerify bool
	PageSize           int
}

type Client struct {
	api      API
	pageSize int
}

var _ objstore.Backend = (*Client)(nil)

func New(opts Options) (*Client, error) {
	host, secure, err := ParseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	mopts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	}
	if opts.PathStyle {
		mopts.BucketLookup = minio.BucketLookupPath
	}
	if secure && opts.InsecureSkipVerify {
		tr, err := minio.DefaultTransport(secure)
		if err != nil {
			return nil, fmt.Errorf("minio transport: %w", err)
		}
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		mopts.Transport = tr
	}
	core, err := minio.NewCore(host, mopts)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return NewWithAPI(core, opts.PageSize), nil
}

func NewWithAPI(api API, pageSize int) *Client {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	return &Client{api: api, pageSize: pageSize}
}

// ParseEndpoint splits a configured endpoint into the host[:port] minio-go
// expects and whether TLS is used. A bare host defaults to TLS.
func ParseEndpoint(endpoint string) (host string, secure bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, fmt.Errorf("minio endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("minio endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		secure = false
	case "https":
		secure = true
	default:
		return "", false, fmt.Errorf("minio endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("minio endpoint: missing host in %q", endpoint)
	}
	if u.Path != "" && u.Path != "/" {
		return "", false, fmt.Errorf("minio endpoint: path not supported in %q", endpoint)
	}
	return u.Host, secure, nil
}

func (c *Client) Put(ctx context.Context, dst objstore.Destination, body io.Reader, length int64) error {
	_, err := c.api.PutObject(ctx, dst.Bucket, dst.Key, body, length, "", "", minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("put object %s: %w", dst, err)
	}
	return nil
}

func (c *Client) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	body, info, _, err := c.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("get object %s/%s: %w", bucket, key, objstore.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	return body, info.Size, nil
}

func (c *Client) Head(ctx context.Context, dst objstore.Destination) (time.Time, error) {
	info, err := c.api.StatObject(ctx, dst.Bucket, dst.Key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, objstore.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("stat object %s: %w", dst, err)
	}
	return info.LastModified, nil
}

func (c *Client) Delete(ctx context.Context, dst objstore.Destination) error {
	if err := c.api.RemoveObject(ctx, dst.Bucket, dst.Key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", dst, err)
	}
	return nil
}

// ListPage fetches one ListObjectsV2 page. minio-go's Core call takes no
// context, so ctx is only checked before the request.
func (c *Client) ListPage(ctx context.Context, bucket, prefix, cursor string) (objstore.Page, error) {
	if err := ctx.Err(); err != nil {
		return objstore.Page{}, err
	}
	res, err := c.api.ListObjectsV2(bucket, prefix, "", cursor, "", c.pageSize)
	if err != nil {
		return objstore.Page{}, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, err)
	}
	page := objstore.Page{Objects: make([]objstore.Object, 0, len(res.Contents))}
	for _, obj := range res.Contents {
		if obj.Err != nil {
			return objstore.Page{}, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, obj.Err)
		}
		page.Objects = append(page.Objects, objstore.Object{Key: obj.Key, Size: obj.Size})
	}
	if res.IsTruncated {
		page.NextCursor = res.NextContinuationToken
	}
	return page, nil
}

func (c *Client) Ping(ctx context.Context, bucket string) error {
	ok, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

func (c *Client) CreateBucket(ctx context.Context, bucket string) error {
	ok, err := c.api.BucketExists(ctx, bucket)
	if err == nil && ok {
		return nil
	}
	if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
}
