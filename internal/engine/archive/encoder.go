package archive

import (
	"archive/tar"
	"io"
	"strings"
	"time"
)

// Encoder frames entries into an archive written to an underlying writer.
// Calls follow OpenEntry, Write..., CloseEntry for each entry and a single
// Finish at the end.
type Encoder interface {
	OpenEntry(name string, size int64) error
	Write(p []byte) (int, error)
	CloseEntry() error
	Finish() error
}

type tarEncoder struct {
	tw      *tar.Writer
	modTime time.Time
}

// NewTarEncoder returns an Encoder producing a standard tar stream. A name
// ending in "/" with size 0 is written as a directory.
func NewTarEncoder(w io.Writer) Encoder {
	return &tarEncoder{
		tw:      tar.NewWriter(w),
		modTime: time.Now().UTC().Truncate(time.Second),
	}
}

func (e *tarEncoder) OpenEntry(name string, size int64) error {
	hdr := &tar.Header{
		Name:     name,
		Size:     size,
		Mode:     0o644,
		ModTime:  e.modTime,
		Typeflag: tar.TypeReg,
	}
	if strings.HasSuffix(name, "/") && size == 0 {
		hdr.Typeflag = tar.TypeDir
		hdr.Mode = 0o755
	}
	return e.tw.WriteHeader(hdr)
}

func (e *tarEncoder) Write(p []byte) (int, error) {
	return e.tw.Write(p)
}

// CloseEntry pads the current entry; it fails if fewer bytes than declared
// were written.
func (e *tarEncoder) CloseEntry() error {
	return e.tw.Flush()
}

func (e *tarEncoder) Finish() error {
	return e.tw.Close()
}
