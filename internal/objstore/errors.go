package objstore

import (
	"errors"
	"fmt"
)

// Kind classifies why a streaming operation failed.
type Kind int

const (
	KindBackend Kind = iota + 1
	KindEncoding
	KindTruncated
)

func (k Kind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindEncoding:
		return "encoding"
	case KindTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the corresponding Kind.
var (
	ErrBackend   = errors.New("objstore: backend failure")
	ErrEncoding  = errors.New("objstore: archive encoding failure")
	ErrTruncated = errors.New("objstore: premature end of object content")
)

var (
	ErrClosed      = errors.New("objstore: stream closed")
	ErrEmptyUpload = errors.New("objstore: no bytes written before close")
	ErrNotFound    = errors.New("objstore: object not found")
)

// Error carries the failed operation and the object it concerned.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("%s %s %s/%s: %v", e.Kind, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s bucket %s: %v", e.Kind, e.Op, e.Bucket, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Key, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrBackend:
		return e.Kind == KindBackend
	case ErrEncoding:
		return e.Kind == KindEncoding
	case ErrTruncated:
		return e.Kind == KindTruncated
	}
	return false
}

func BackendError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Kind: KindBackend, Err: err}
}

func EncodingError(op, key string, err error) *Error {
	return &Error{Op: op, Key: key, Kind: KindEncoding, Err: err}
}

func TruncatedError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Kind: KindTruncated, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
