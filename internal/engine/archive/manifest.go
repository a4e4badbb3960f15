package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"S3Stream/internal/objstore"
)

type ManifestEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir,omitempty"`
}

// Manifest describes an object written by s3stream. It is stored next to the
// object under objstore.ManifestKey.
type Manifest struct {
	Bucket      string          `json:"bucket"`
	Key         string          `json:"key"`
	Size        int64           `json:"size"`
	BLAKE3      string          `json:"blake3"`
	ContentType string          `json:"content_type,omitempty"`
	Compression string          `json:"compression,omitempty"`
	Source      string          `json:"source,omitempty"`
	Host        string          `json:"host,omitempty"`
	Created     string          `json:"created"`
	Entries     []ManifestEntry `json:"entries,omitempty"`
}

func NewManifest(dst objstore.Destination) *Manifest {
	host, _ := os.Hostname()
	return &Manifest{
		Bucket:  dst.Bucket,
		Key:     dst.Key,
		Host:    host,
		Created: time.Now().UTC().Format(time.RFC3339),
	}
}

// Record appends e to the entry list. It has the signature of an entry hook.
func (m *Manifest) Record(e Entry) {
	m.Entries = append(m.Entries, ManifestEntry{Name: e.Name, Size: e.Size, Dir: e.Dir})
}

// Seal copies size and digest from d.
func (m *Manifest) Seal(d *Digest) {
	m.Size = d.Size()
	m.BLAKE3 = d.Sum()
}

// Digest counts and hashes everything written to it.
type Digest struct {
	h *blake3.Hasher
	n int64
}

func NewDigest() *Digest {
	return &Digest{h: blake3.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	d.n += int64(len(p))
	return d.h.Write(p)
}

func (d *Digest) Size() int64 {
	return d.n
}

// Sum is the hex BLAKE3-256 of the bytes written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

func WriteManifest(ctx context.Context, store objstore.ObjectStore, m *Manifest) error {
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest marshal: %w", err)
	}
	dst := objstore.Destination{Bucket: m.Bucket, Key: objstore.ManifestKey(m.Key)}
	if err := store.Put(ctx, dst, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("write manifest %s: %w", dst, err)
	}
	return nil
}

// ReadManifest loads the manifest stored for key. A missing manifest is
// reported as objstore.ErrNotFound.
func ReadManifest(ctx context.Context, f objstore.Fetcher, bucket, key string) (*Manifest, error) {
	rc, _, err := f.Fetch(ctx, bucket, objstore.ManifestKey(key))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest decode: %w", err)
	}
	return &m, nil
}
