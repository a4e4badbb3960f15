// Package archive streams every object under a prefix as a single tar
// archive. Objects are listed page by page and fetched one at a time by a
// producer goroutine that writes into a bounded pipe; the caller reads the
// other end.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"S3Stream/internal/logger"
	"S3Stream/internal/objstore"
)

// DefaultPipeSize is the producer-side buffer between the encoder and the pipe.
const DefaultPipeSize = 64 * 1024

// Backend is what a Source needs from a storage client.
type Backend interface {
	objstore.Lister
	objstore.Fetcher
}

// Entry describes one archive entry after it has been written.
type Entry struct {
	Name string
	Key  string
	Size int64
	Dir  bool
}

type state int

const (
	stateNotStarted state = iota
	stateProducing
	stateDraining
	stateClosed
)

type Option func(*Source)

// WithPipeSize sets the producer-side buffer size. Non-positive values keep
// the default.
func WithPipeSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.pipeSize = n
		}
	}
}

func WithEncoder(newEncoder func(io.Writer) Encoder) Option {
	return func(s *Source) {
		s.newEncoder = newEncoder
	}
}

// WithEntryHook registers fn to be called on the producer goroutine after
// each entry is complete.
func WithEntryHook(fn func(Entry)) Option {
	return func(s *Source) {
		s.hook = fn
	}
}

// Source is an io.ReadCloser yielding the archive of all objects under a
// prefix. Nothing happens until the first Read. A failure while listing,
// fetching or encoding is returned by Read in place of io.EOF, so an
// incomplete archive is never reported as complete.
//
// Source is not safe for concurrent use. Cancel the context passed to
// NewSource to abort a running producer.
type Source struct {
	ctx        context.Context
	backend    Backend
	bucket     string
	prefix     string
	pipeSize   int
	newEncoder func(io.Writer) Encoder
	hook       func(Entry)

	state state
	pr    *io.PipeReader
	group *errgroup.Group
	err   error
	one   [1]byte
}

func NewSource(ctx context.Context, backend Backend, bucket, prefix string, opts ...Option) *Source {
	s := &Source{
		ctx:        ctx,
		backend:    backend,
		bucket:     bucket,
		prefix:     prefix,
		pipeSize:   DefaultPipeSize,
		newEncoder: NewTarEncoder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Read(p []byte) (int, error) {
	switch s.state {
	case stateClosed:
		return 0, objstore.ErrClosed
	case stateNotStarted:
		s.start()
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.pr.Read(p)
	if err != nil {
		s.state = stateDraining
	}
	return n, err
}

func (s *Source) ReadByte() (byte, error) {
	for {
		n, err := s.Read(s.one[:])
		if n == 1 {
			return s.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Close discards whatever the producer has not yet delivered, waits for it
// to return and reports its error. Close before the first Read is a no-op.
func (s *Source) Close() error {
	switch s.state {
	case stateClosed:
		return s.err
	case stateNotStarted:
		s.state = stateClosed
		return nil
	}
	_, _ = io.Copy(io.Discard, s.pr)
	s.err = s.group.Wait()
	_ = s.pr.Close()
	s.state = stateClosed
	return s.err
}

func (s *Source) start() {
	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		return s.produce(ctx, pw)
	})
	s.pr = pr
	s.group = g
	s.state = stateProducing
}

func (s *Source) produce(ctx context.Context, pw *io.PipeWriter) error {
	start := time.Now()
	bw := bufio.NewWriterSize(pw, s.pipeSize)
	enc := s.newEncoder(bw)

	entries, err := s.writeEntries(ctx, enc)
	if err == nil {
		if ferr := enc.Finish(); ferr != nil {
			err = objstore.EncodingError("finish", "", ferr)
		}
	} else {
		// Best effort: the trailer lets the consumer see everything written
		// so far before the error arrives.
		_ = enc.Finish()
	}
	if ferr := bw.Flush(); ferr != nil && err == nil {
		err = objstore.EncodingError("flush", "", ferr)
	}

	log := logger.Ctx(ctx)
	if err != nil {
		archiveFailures.WithLabelValues(objstore.KindOf(err).String()).Inc()
		log.Error().Err(err).
			Str("bucket", s.bucket).
			Str("prefix", s.prefix).
			Int("entries", entries).
			Msg("archive stream failed")
		_ = pw.CloseWithError(err)
		return err
	}
	log.Info().
		Str("bucket", s.bucket).
		Str("prefix", s.prefix).
		Int("entries", entries).
		Dur("duration", time.Since(start)).
		Msg("archive stream complete")
	return pw.Close()
}

// writeEntries drives the listing to exhaustion, writing one entry per object.
func (s *Source) writeEntries(ctx context.Context, enc Encoder) (int, error) {
	var (
		cursor  string
		entries int
		pages   int
	)
	for {
		page, err := s.backend.ListPage(ctx, s.bucket, s.prefix, cursor)
		if err != nil {
			return entries, objstore.BackendError("list", s.bucket, s.prefix, err)
		}
		pages++
		for _, obj := range page.Objects {
			if err := ctx.Err(); err != nil {
				return entries, objstore.BackendError("fetch", s.bucket, obj.Key, err)
			}
			written, err := s.writeEntry(ctx, enc, obj)
			if err != nil {
				return entries, err
			}
			if written {
				entries++
			}
		}
		if page.NextCursor == "" {
			logger.Ctx(ctx).Debug().Int("pages", pages).Msg("listing exhausted")
			return entries, nil
		}
		cursor = page.NextCursor
	}
}

func (s *Source) writeEntry(ctx context.Context, enc Encoder, obj objstore.Object) (bool, error) {
	name := EntryName(s.prefix, obj.Key)
	if name == "" {
		return false, nil
	}
	if strings.HasSuffix(name, "/") && obj.Size == 0 {
		if err := enc.OpenEntry(name, 0); err != nil {
			return false, objstore.EncodingError("open-entry", name, err)
		}
		if err := enc.CloseEntry(); err != nil {
			return false, objstore.EncodingError("close-entry", name, err)
		}
		s.entryDone(ctx, Entry{Name: name, Key: obj.Key, Dir: true})
		return true, nil
	}

	body, length, err := s.backend.Fetch(ctx, s.bucket, obj.Key)
	if err != nil {
		return false, objstore.BackendError("fetch", s.bucket, obj.Key, err)
	}
	defer body.Close()

	if err := enc.OpenEntry(name, length); err != nil {
		return false, objstore.EncodingError("open-entry", name, err)
	}
	w := &entryWriter{enc: enc}
	n, err := io.Copy(w, body)
	switch {
	case w.err != nil:
		return false, objstore.EncodingError("write", name, w.err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return false, objstore.TruncatedError("read", s.bucket, obj.Key, err)
	case err != nil:
		return false, objstore.BackendError("read", s.bucket, obj.Key, err)
	case n < length:
		return false, objstore.TruncatedError("read", s.bucket, obj.Key,
			fmt.Errorf("got %d of %d bytes", n, length))
	}
	if err := enc.CloseEntry(); err != nil {
		return false, objstore.EncodingError("close-entry", name, err)
	}
	bytesArchived.Add(float64(n))
	s.entryDone(ctx, Entry{Name: name, Key: obj.Key, Size: n})
	return true, nil
}

func (s *Source) entryDone(ctx context.Context, e Entry) {
	entriesWritten.Inc()
	logger.Ctx(ctx).Debug().Str("entry", e.Name).Int64("size", e.Size).Msg("archived object")
	if s.hook != nil {
		s.hook(e)
	}
}

// EntryName is key relative to prefix, without a leading slash.
func EntryName(prefix, key string) string {
	return strings.TrimLeft(strings.TrimPrefix(key, prefix), "/")
}

// entryWriter remembers the encoder's write error so it can be told apart
// from a read error on the object body.
type entryWriter struct {
	enc Encoder
	err error
}

func (w *entryWriter) Write(p []byte) (int, error) {
	n, err := w.enc.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}
