package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"S3Stream/internal/objstore"
)

// fakeBackend serves pages keyed by cursor ("" is the first page) and object
// bodies keyed by object key.
type fakeBackend struct {
	mu sync.Mutex

	pages    map[string]objstore.Page
	bodies   map[string]string
	listErr  map[string]error
	fetchErr map[string]error
	// declared overrides the length reported by Fetch.
	declared map[string]int64
	// readErr makes the body fail after its content is read.
	readErr map[string]error

	listed  []string
	fetched []string
	closed  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:    map[string]objstore.Page{},
		bodies:   map[string]string{},
		listErr:  map[string]error{},
		fetchErr: map[string]error{},
		declared: map[string]int64{},
		readErr:  map[string]error{},
	}
}

// addPages splits keys into pages of size n, chaining cursors "c1", "c2", ...
func (f *fakeBackend) addPages(n int, objects ...objstore.Object) {
	cursor := ""
	for i := 0; i < len(objects); i += n {
		end := min(i+n, len(objects))
		page := objstore.Page{Objects: objects[i:end]}
		if end < len(objects) {
			page.NextCursor = fmt.Sprintf("c%d", i/n+1)
		}
		f.pages[cursor] = page
		cursor = page.NextCursor
	}
	if len(objects) == 0 {
		f.pages[""] = objstore.Page{}
	}
}

func (f *fakeBackend) put(key, body string) objstore.Object {
	f.bodies[key] = body
	return objstore.Object{Key: key, Size: int64(len(body))}
}

func (f *fakeBackend) ListPage(ctx context.Context, bucket, prefix, cursor string) (objstore.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, cursor)
	if err := ctx.Err(); err != nil {
		return objstore.Page{}, err
	}
	if err := f.listErr[cursor]; err != nil {
		return objstore.Page{}, err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return objstore.Page{}, fmt.Errorf("unknown cursor %q", cursor)
	}
	return page, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, key)
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := f.fetchErr[key]; err != nil {
		return nil, 0, err
	}
	body, ok := f.bodies[key]
	if !ok {
		return nil, 0, objstore.ErrNotFound
	}
	length := int64(len(body))
	if d, ok := f.declared[key]; ok {
		length = d
	}
	var r io.Reader = strings.NewReader(body)
	if err := f.readErr[key]; err != nil {
		r = io.MultiReader(r, errReader{err})
	}
	return &trackedBody{Reader: r, f: f}, length, nil
}

func (f *fakeBackend) closedBodies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type trackedBody struct {
	io.Reader
	f *fakeBackend
}

func (b *trackedBody) Close() error {
	b.f.mu.Lock()
	b.f.closed++
	b.f.mu.Unlock()
	return nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// failingEncoder wraps the tar encoder and fails the first Write after
// failAfter bytes.
type failingEncoder struct {
	Encoder
	failAfter int
	written   int
	finished  bool
}

func (e *failingEncoder) Write(p []byte) (int, error) {
	if e.written+len(p) > e.failAfter {
		return 0, fmt.Errorf("encoder out of space")
	}
	e.written += len(p)
	return e.Encoder.Write(p)
}

func (e *failingEncoder) Finish() error {
	e.finished = true
	return e.Encoder.Finish()
}

// memStore is an in-memory objstore.ObjectStore plus Fetcher for manifests.
type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, dst objstore.Destination, body io.Reader, length int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != length {
		return fmt.Errorf("length mismatch: %d != %d", len(b), length)
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[dst.String()] = b
	return nil
}

func (m *memStore) Head(_ context.Context, dst objstore.Destination) (time.Time, error) {
	if _, ok := m.objects[dst.String()]; !ok {
		return time.Time{}, objstore.ErrNotFound
	}
	return time.Now(), nil
}

func (m *memStore) Delete(_ context.Context, dst objstore.Destination) error {
	delete(m.objects, dst.String())
	return nil
}

func (m *memStore) Fetch(_ context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, 0, objstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}
