// Package upload turns a byte stream into an S3 multipart upload. Bytes are
// buffered into fixed-size parts which are sent sequentially, in order, as
// the buffer fills; Close sends the remainder and completes the object.
package upload

import (
	"context"
	"time"

	"S3Stream/internal/logger"
	"S3Stream/internal/objstore"
)

// PartSize is the size of every part except the last.
const PartSize = 5 * 1024 * 1024

type state int

const (
	stateUnopened state = iota
	stateOpen
	stateClosed
)

type Option func(*Sink)

// WithEmptyObject decides what Close does when nothing was written. When
// true (the default) a zero-length object is created from a single empty
// part; when false Close fails with objstore.ErrEmptyUpload and no request is
// made.
func WithEmptyObject(create bool) Option {
	return func(s *Sink) {
		s.emptyObject = create
	}
}

// Sink is an io.WriteCloser backed by a multipart upload. The upload is
// initiated lazily on the first byte. Sink is not safe for concurrent use.
//
// A failed backend call is not retried; it is returned from the Write or
// Close that triggered it and from every call after that. The incomplete
// upload is left in place unless the caller invokes Abort.
type Sink struct {
	ctx         context.Context
	backend     objstore.MultipartUploader
	dst         objstore.Destination
	meta        objstore.Metadata
	emptyObject bool

	state    state
	uploadID string
	buf      []byte
	fill     int
	parts    []objstore.Part
	written  int64
	err      error
	aborted  bool
}

func NewSink(ctx context.Context, backend objstore.MultipartUploader, dst objstore.Destination, meta objstore.Metadata, opts ...Option) *Sink {
	s := &Sink{
		ctx:         ctx,
		backend:     backend,
		dst:         dst,
		meta:        meta,
		emptyObject: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteByte buffers b, first flushing the buffer as a part if it is full.
func (s *Sink) WriteByte(b byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.fill == len(s.buf) {
		if err := s.flush(); err != nil {
			return err
		}
	}
	s.buf[s.fill] = b
	s.fill++
	s.written++
	return nil
}

// Write is the bulk form of WriteByte. A full buffer is only flushed once more
// data arrives, so an input that is an exact multiple of PartSize never
// produces a trailing empty part.
func (s *Sink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, s.usable()
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		if s.fill == len(s.buf) {
			if err := s.flush(); err != nil {
				return n, err
			}
		}
		c := copy(s.buf[s.fill:], p[n:])
		s.fill += c
		s.written += int64(c)
		n += c
	}
	return n, nil
}

// Close uploads any buffered bytes as the final part and completes the
// upload. Calling Close again returns the first call's result.
func (s *Sink) Close() error {
	if s.state == stateClosed {
		return s.err
	}
	defer func() {
		s.state = stateClosed
	}()
	if s.err != nil {
		return s.err
	}

	if s.state == stateUnopened {
		if !s.emptyObject {
			s.err = objstore.ErrEmptyUpload
			return s.err
		}
		if err := s.open(); err != nil {
			return err
		}
	}
	// An upload with no parts yet gets a single (possibly empty) part so the
	// completion request is never sent with an empty part list.
	if s.fill > 0 || len(s.parts) == 0 {
		if err := s.flush(); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := s.backend.Complete(s.ctx, s.dst, s.uploadID, s.parts); err != nil {
		return s.fail("complete", err)
	}
	uploadsCompleted.Inc()
	logger.Ctx(s.ctx).Info().
		Str("bucket", s.dst.Bucket).
		Str("key", s.dst.Key).
		Int("parts", len(s.parts)).
		Int64("bytes", s.written).
		Dur("complete_duration", time.Since(start)).
		Msg("multipart upload completed")
	s.buf = nil
	return nil
}

// Abort discards the backend's incomplete upload, if one was initiated, and
// closes the sink. It is meant for cleanup after a failed Write or Close; a
// completed or already aborted upload is left alone.
func (s *Sink) Abort(ctx context.Context) error {
	if s.state == stateClosed && (s.err == nil || s.aborted) {
		return nil
	}
	s.state = stateClosed
	s.buf = nil
	if s.err == nil {
		s.err = objstore.ErrClosed
	}
	if s.uploadID == "" {
		return nil
	}
	if err := s.backend.Abort(ctx, s.dst, s.uploadID); err != nil {
		return objstore.BackendError("abort", s.dst.Bucket, s.dst.Key, err)
	}
	s.aborted = true
	logger.Ctx(ctx).Warn().
		Str("bucket", s.dst.Bucket).
		Str("key", s.dst.Key).
		Str("upload_id", s.uploadID).
		Msg("multipart upload aborted")
	return nil
}

// Parts returns the parts uploaded so far, in part-number order.
func (s *Sink) Parts() []objstore.Part {
	out := make([]objstore.Part, len(s.parts))
	copy(out, s.parts)
	return out
}

// Written is the number of bytes accepted by Write and WriteByte.
func (s *Sink) Written() int64 {
	return s.written
}

func (s *Sink) UploadID() string {
	return s.uploadID
}

func (s *Sink) usable() error {
	if s.state == stateClosed {
		return objstore.ErrClosed
	}
	return s.err
}

func (s *Sink) ready() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.state == stateUnopened {
		return s.open()
	}
	return nil
}

func (s *Sink) open() error {
	uploadID, err := s.backend.Initiate(s.ctx, s.dst, s.meta)
	if err != nil {
		return s.fail("initiate", err)
	}
	s.uploadID = uploadID
	s.buf = make([]byte, PartSize)
	s.state = stateOpen
	logger.Ctx(s.ctx).Debug().
		Str("bucket", s.dst.Bucket).
		Str("key", s.dst.Key).
		Str("upload_id", uploadID).
		Msg("multipart upload initiated")
	return nil
}

// flush uploads buf[:fill] as the next part. Only the filled prefix of the
// buffer is ever sent.
func (s *Sink) flush() error {
	number := int32(len(s.parts) + 1)
	start := time.Now()
	etag, err := s.backend.UploadPart(s.ctx, s.dst, s.uploadID, number, s.buf[:s.fill])
	partDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return s.fail("upload-part", err)
	}
	s.parts = append(s.parts, objstore.Part{Number: number, ETag: etag})
	partsUploaded.Inc()
	bytesUploaded.Add(float64(s.fill))
	logger.Ctx(s.ctx).Debug().
		Str("key", s.dst.Key).
		Int32("part", number).
		Int("size", s.fill).
		Msg("uploaded part")
	s.fill = 0
	return nil
}

func (s *Sink) fail(op string, err error) error {
	s.err = objstore.BackendError(op, s.dst.Bucket, s.dst.Key, err)
	uploadFailures.WithLabelValues(op).Inc()
	return s.err
}
