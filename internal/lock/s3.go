package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"S3Stream/internal/logger"
	"S3Stream/internal/objstore"
)

// Store is what the locker needs from a backend.
type Store interface {
	objstore.ObjectStore
	objstore.Fetcher
}

// Record is the JSON body of a lock object.
type Record struct {
	Owner    string `json:"owner"`
	Host     string `json:"host,omitempty"`
	PID      int    `json:"pid"`
	Acquired string `json:"acquired"`
}

// S3Locker holds objstore.LockKey(key) in the destination bucket. A lock
// older than TTL is considered stale and replaced; with TTL zero a lock is
// never treated as stale.
//
// The lock is best-effort: the existence check and the write are separate
// requests. Acquire reads the record back after writing it and gives up
// with ErrLocked if another owner's write landed last, which narrows the
// window but cannot close it on stores without conditional writes.
type S3Locker struct {
	store Store
	dst   objstore.Destination
	ttl   time.Duration
	owner string
	now   func() time.Time

	mu   sync.Mutex
	held bool
}

type S3Options struct {
	Store  Store
	Bucket string
	Key    string
	TTL    time.Duration
}

func NewS3(opts S3Options) (*S3Locker, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("s3 lock: store is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 lock: bucket is required")
	}
	return &S3Locker{
		store: opts.Store,
		dst:   objstore.Destination{Bucket: opts.Bucket, Key: objstore.LockKey(opts.Key)},
		ttl:   opts.TTL,
		owner: uuid.NewString(),
		now:   time.Now,
	}, nil
}

func (l *S3Locker) Key() string {
	return l.dst.Key
}

func (l *S3Locker) Owner() string {
	return l.owner
}

func (l *S3Locker) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("s3 lock already held by this process")
	}

	lastMod, err := l.store.Head(ctx, l.dst)
	switch {
	case errors.Is(err, objstore.ErrNotFound):
	case err != nil:
		return fmt.Errorf("s3 lock head: %w", err)
	default:
		if l.ttl <= 0 || l.now().Sub(lastMod) < l.ttl {
			return fmt.Errorf("%w: %s (since %s)", ErrLocked, l.dst, lastMod.UTC().Format(time.RFC3339))
		}
		logger.Ctx(ctx).Warn().Str("lock", l.dst.String()).Time("last_modified", lastMod).Msg("replacing stale lock")
		if err := l.store.Delete(ctx, l.dst); err != nil {
			return fmt.Errorf("s3 lock stale but delete failed: %w", err)
		}
	}

	host, _ := os.Hostname()
	body, err := json.Marshal(Record{
		Owner:    l.owner,
		Host:     host,
		PID:      os.Getpid(),
		Acquired: l.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("s3 lock marshal: %w", err)
	}
	if err := l.store.Put(ctx, l.dst, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("s3 lock put: %w", err)
	}
	rec, err := l.read(ctx)
	if err != nil {
		return fmt.Errorf("s3 lock verify: %w", err)
	}
	if rec.Owner != l.owner {
		return fmt.Errorf("%w: %s (taken by %s on %s)", ErrLocked, l.dst, rec.Owner, rec.Host)
	}
	l.held = true
	logger.Ctx(ctx).Debug().Str("lock", l.dst.String()).Str("owner", l.owner).Msg("lock acquired")
	return nil
}

// Release deletes the lock object if it still carries this locker's owner
// token. A lock taken over by someone else is left alone.
func (l *S3Locker) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false

	rec, err := l.read(ctx)
	if errors.Is(err, objstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("s3 lock release: %w", err)
	}
	if rec.Owner != l.owner {
		logger.Ctx(ctx).Warn().Str("lock", l.dst.String()).Str("owner", rec.Owner).Msg("lock taken over, not releasing")
		return nil
	}
	if err := l.store.Delete(ctx, l.dst); err != nil {
		return fmt.Errorf("s3 lock release: %w", err)
	}
	return nil
}

func (l *S3Locker) read(ctx context.Context) (*Record, error) {
	rc, _, err := l.store.Fetch(ctx, l.dst.Bucket, l.dst.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, 64*1024))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode lock record: %w", err)
	}
	return &rec, nil
}
