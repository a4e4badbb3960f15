package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressionFormat wraps a finished archive stream; Source itself always
// emits plain tar.
type CompressionFormat string

const (
	FormatNone CompressionFormat = "none"
	FormatGzip CompressionFormat = "gz"
	FormatZstd CompressionFormat = "zst"
)

func ParseFormat(s string) (CompressionFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "tar":
		return FormatNone, nil
	case "gz", "gzip":
		return FormatGzip, nil
	case "zst", "zstd":
		return FormatZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, gz or zst)", s)
	}
}

func (f CompressionFormat) Extension() string {
	switch f {
	case FormatGzip:
		return ".tar.gz"
	case FormatZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

func (f CompressionFormat) ContentType() string {
	switch f {
	case FormatGzip:
		return "application/gzip"
	case FormatZstd:
		return "application/zstd"
	default:
		return "application/x-tar"
	}
}

// FormatFromKey guesses the compression of an archive object from its key.
func FormatFromKey(key string) CompressionFormat {
	k := strings.ToLower(key)
	switch {
	case strings.HasSuffix(k, ".gz"), strings.HasSuffix(k, ".tgz"):
		return FormatGzip
	case strings.HasSuffix(k, ".zst"), strings.HasSuffix(k, ".tzst"):
		return FormatZstd
	default:
		return FormatNone
	}
}

// NewCompressWriter returns a writer compressing into w. Closing it flushes
// the compressor but never closes w. A level below 1 selects the default.
func NewCompressWriter(w io.Writer, format CompressionFormat, level int) (io.WriteCloser, error) {
	switch format {
	case FormatNone, "":
		return nopWriteCloser{w}, nil
	case FormatGzip:
		if level < 1 {
			level = gzip.DefaultCompression
		}
		if level > gzip.BestCompression {
			level = gzip.BestCompression
		}
		return gzip.NewWriterLevel(w, level)
	case FormatZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)
	default:
		return nil, fmt.Errorf("unknown compression %q", format)
	}
}

// NewDecompressReader undoes NewCompressWriter.
func NewDecompressReader(r io.Reader, format CompressionFormat) (io.ReadCloser, error) {
	switch format {
	case FormatNone, "":
		return io.NopCloser(r), nil
	case FormatGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case FormatZstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", format)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
