package objstore

import (
	"context"
	"io"
	"time"
)

// Destination addresses a single object.
type Destination struct {
	Bucket string
	Key    string
}

func (d Destination) String() string {
	return d.Bucket + "/" + d.Key
}

// Metadata is attached to the object when a multipart upload is initiated.
// It is passed to the backend verbatim.
type Metadata struct {
	ContentType        string
	ContentEncoding    string
	ContentDisposition string
	CacheControl       string
	UserMetadata       map[string]string
}

type Part struct {
	Number int32
	ETag   string
}

type Object struct {
	Key  string
	Size int64
}

// Page is one page of a listing. An empty NextCursor means the listing is exhausted.
type Page struct {
	Objects    []Object
	NextCursor string
}

type MultipartUploader interface {
	Initiate(ctx context.Context, dst Destination, meta Metadata) (uploadID string, err error)
	UploadPart(ctx context.Context, dst Destination, uploadID string, partNumber int32, body []byte) (etag string, err error)
	Complete(ctx context.Context, dst Destination, uploadID string, parts []Part) error
	Abort(ctx context.Context, dst Destination, uploadID string) error
}

type Lister interface {
	ListPage(ctx context.Context, bucket, prefix, cursor string) (Page, error)
}

// Fetcher opens an object's content. The returned length is the object's
// Content-Length as reported by the backend.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) (body io.ReadCloser, length int64, err error)
}

// ObjectStore covers the small single-request operations used by locks and manifests.
type ObjectStore interface {
	Put(ctx context.Context, dst Destination, body io.Reader, length int64) error
	// Head returns the last-modified time of the object, or ErrNotFound.
	Head(ctx context.Context, dst Destination) (time.Time, error)
	Delete(ctx context.Context, dst Destination) error
}

// Backend is implemented by every storage client (internal/s3, internal/minio).
type Backend interface {
	MultipartUploader
	Lister
	Fetcher
	ObjectStore
}
