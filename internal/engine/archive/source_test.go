package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"S3Stream/internal/objstore"
)

type tarEntry struct {
	name     string
	typeflag byte
	body     string
}

func readTar(t *testing.T, data []byte) []tarEntry {
	t.Helper()
	var out []tarEntry
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		assert.Equal(t, hdr.Size, int64(len(body)))
		out = append(out, tarEntry{name: hdr.Name, typeflag: hdr.Typeflag, body: string(body)})
	}
}

func TestSource_TwoObjects(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/a.txt", "abc"), fb.put("pfx/b.txt", ""))

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	data, err := io.ReadAll(src)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	assert.Equal(t, []tarEntry{
		{name: "a.txt", typeflag: tar.TypeReg, body: "abc"},
		{name: "b.txt", typeflag: tar.TypeReg, body: ""},
	}, readTar(t, data))
	assert.Equal(t, 2, fb.closedBodies())
}

func TestSource_PrefixWithoutSlash(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx", "placeholder"), fb.put("pfx/a.txt", "abc"))

	src := NewSource(context.Background(), fb, "bkt", "pfx")
	data, err := io.ReadAll(src)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	entries := readTar(t, data)
	require.Len(t, entries, 1, "the prefix object itself has no name and is skipped")
	assert.Equal(t, "a.txt", entries[0].name)
	assert.NotContains(t, fb.fetched, "pfx")
}

func TestSource_MultiplePagesExhausted(t *testing.T) {
	fb := newFakeBackend()
	var objs []objstore.Object
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		objs = append(objs, fb.put("logs/"+k, strings.Repeat(k, 10)))
	}
	fb.addPages(3, objs...)

	src := NewSource(context.Background(), fb, "bkt", "logs/")
	data, err := io.ReadAll(src)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	assert.Equal(t, []string{"", "c1", "c2"}, fb.listed, "all three pages are requested in order")
	entries := readTar(t, data)
	require.Len(t, entries, 7)
	for i, e := range entries {
		assert.Equal(t, objs[i].Key[len("logs/"):], e.name)
	}
}

func TestSource_EmptyListing(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10)

	src := NewSource(context.Background(), fb, "bkt", "nothing/")
	data, err := io.ReadAll(src)
	require.NoError(t, err)
	require.NoError(t, src.Close())
	assert.Empty(t, readTar(t, data))
	assert.Len(t, data, 1024, "a bare end-of-archive marker")
}

func TestSource_DirectoryPlaceholder(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10,
		objstore.Object{Key: "pfx/dir/", Size: 0},
		fb.put("pfx/dir/file", "x"),
	)

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	data, err := io.ReadAll(src)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	assert.Equal(t, []tarEntry{
		{name: "dir/", typeflag: tar.TypeDir},
		{name: "dir/file", typeflag: tar.TypeReg, body: "x"},
	}, readTar(t, data))
	assert.Equal(t, []string{"pfx/dir/file"}, fb.fetched, "directories are not fetched")
}

func TestSource_FetchFailureSurfacesOnRead(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/a.txt", "abc"), fb.put("pfx/b.txt", "def"), fb.put("pfx/c.txt", "ghi"))
	fb.fetchErr["pfx/b.txt"] = errors.New("connection reset")

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	_, err := io.ReadAll(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrBackend)
	assert.ErrorContains(t, err, "connection reset")

	closeErr := src.Close()
	assert.ErrorIs(t, closeErr, objstore.ErrBackend)
	assert.NotContains(t, fb.fetched, "pfx/c.txt", "production stops at the first failure")
	assert.Equal(t, 1, fb.closedBodies())
}

func TestSource_ListFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(1, fb.put("p/a", "1"), fb.put("p/b", "2"))
	fb.listErr["c1"] = errors.New("throttled")

	src := NewSource(context.Background(), fb, "bkt", "p/")
	data, err := io.ReadAll(src)
	assert.ErrorIs(t, err, objstore.ErrBackend)
	assert.Equal(t, objstore.KindBackend, objstore.KindOf(err))
	assert.NotEmpty(t, data, "entries before the failure were delivered")
	assert.ErrorIs(t, src.Close(), objstore.ErrBackend)
}

func TestSource_TruncatedBody(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/short", "abc"))
	fb.declared["pfx/short"] = 10

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	_, err := io.ReadAll(src)
	assert.ErrorIs(t, err, objstore.ErrTruncated)
	assert.Equal(t, objstore.KindTruncated, objstore.KindOf(err))
	assert.ErrorIs(t, src.Close(), objstore.ErrTruncated)
	assert.Equal(t, 1, fb.closedBodies())
}

func TestSource_UnexpectedEOFIsTruncation(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/cut", "abc"))
	fb.readErr["pfx/cut"] = io.ErrUnexpectedEOF

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	_, err := io.ReadAll(src)
	assert.ErrorIs(t, err, objstore.ErrTruncated)
	assert.ErrorIs(t, src.Close(), objstore.ErrTruncated)
}

func TestSource_BodyReadFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/x", "abc"))
	fb.readErr["pfx/x"] = errors.New("stream reset")

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	_, err := io.ReadAll(src)
	assert.ErrorIs(t, err, objstore.ErrBackend)
	assert.ErrorIs(t, src.Close(), objstore.ErrBackend)
}

func TestSource_BodyLongerThanDeclared(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/long", "abcdef"))
	fb.declared["pfx/long"] = 2

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	_, err := io.ReadAll(src)
	assert.ErrorIs(t, err, objstore.ErrEncoding)
	assert.ErrorIs(t, src.Close(), objstore.ErrEncoding)
}

func TestSource_EncoderFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/a", "0123456789"), fb.put("pfx/b", "more"))

	var enc *failingEncoder
	src := NewSource(context.Background(), fb, "bkt", "pfx/",
		WithEncoder(func(w io.Writer) Encoder {
			enc = &failingEncoder{Encoder: NewTarEncoder(w), failAfter: 4}
			return enc
		}))
	_, err := io.ReadAll(src)
	assert.ErrorIs(t, err, objstore.ErrEncoding)
	assert.ErrorContains(t, err, "encoder out of space")
	assert.ErrorIs(t, src.Close(), objstore.ErrEncoding)
	assert.True(t, enc.finished, "finish is attempted on failure")
	assert.Equal(t, []string{"pfx/a"}, fb.fetched)
}

func TestSource_ReadByte(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/a.txt", "abc"))

	src := NewSource(context.Background(), fb, "bkt", "pfx/", WithPipeSize(512))
	var buf bytes.Buffer
	for {
		b, err := src.ReadByte()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		buf.WriteByte(b)
	}
	require.NoError(t, src.Close())
	assert.Equal(t, []tarEntry{{name: "a.txt", typeflag: tar.TypeReg, body: "abc"}}, readTar(t, buf.Bytes()))
}

func TestSource_CloseBeforeRead(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, fb.put("pfx/a", "a"))

	src := NewSource(context.Background(), fb, "bkt", "pfx/")
	require.NoError(t, src.Close())
	assert.Empty(t, fb.listed, "nothing is started")

	_, err := src.Read(make([]byte, 8))
	assert.ErrorIs(t, err, objstore.ErrClosed)
}

func TestSource_CloseDrainsUnreadOutput(t *testing.T) {
	fb := newFakeBackend()
	var objs []objstore.Object
	for i := 0; i < 20; i++ {
		objs = append(objs, fb.put("big/"+string(rune('a'+i)), strings.Repeat("z", 32*1024)))
	}
	fb.addPages(5, objs...)

	src := NewSource(context.Background(), fb, "bkt", "big/", WithPipeSize(1024))
	_, err := src.Read(make([]byte, 10))
	require.NoError(t, err)

	require.NoError(t, src.Close())
	assert.Len(t, fb.fetched, 20, "the producer ran to completion")
	assert.NoError(t, src.Close(), "close is idempotent")

	_, err = src.ReadByte()
	assert.ErrorIs(t, err, objstore.ErrClosed)
}

func TestSource_CancelBeforeCloseStopsFetching(t *testing.T) {
	fb := newFakeBackend()
	var objs []objstore.Object
	for i := 0; i < 20; i++ {
		objs = append(objs, fb.put("big/"+string(rune('a'+i)), strings.Repeat("z", 32*1024)))
	}
	fb.addPages(5, objs...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := NewSource(ctx, fb, "bkt", "big/", WithPipeSize(1024))
	_, err := src.Read(make([]byte, 10))
	require.NoError(t, err)

	cancel()
	err = src.Close()
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, objstore.ErrBackend)
	assert.Less(t, len(fb.fetched), 3, "only the object in flight is finished")
	assert.Equal(t, len(fb.fetched), fb.closedBodies())
}

func TestSource_ContextCancelAborts(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(1, fb.put("p/a", "a"), fb.put("p/b", "b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewSource(ctx, fb, "bkt", "p/")
	_, err := io.ReadAll(src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, src.Close(), objstore.ErrBackend)
}

func TestSource_EntryHook(t *testing.T) {
	fb := newFakeBackend()
	fb.addPages(10, objstore.Object{Key: "p/d/"}, fb.put("p/d/x", "xyz"), fb.put("p/y", ""))

	var got []Entry
	src := NewSource(context.Background(), fb, "bkt", "p/", WithEntryHook(func(e Entry) {
		got = append(got, e)
	}))
	_, err := io.Copy(io.Discard, src)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	assert.Equal(t, []Entry{
		{Name: "d/", Key: "p/d/", Dir: true},
		{Name: "d/x", Key: "p/d/x", Size: 3},
		{Name: "y", Key: "p/y"},
	}, got)
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"pfx/", "pfx/a.txt", "a.txt"},
		{"pfx", "pfx/a.txt", "a.txt"},
		{"pfx", "pfx", ""},
		{"", "/abs/key", "abs/key"},
		{"", "plain", "plain"},
		{"pfx/", "pfx/sub/dir/", "sub/dir/"},
		{"pfx/", "pfx//double", "double"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, EntryName(tt.prefix, tt.key))
		})
	}
}
