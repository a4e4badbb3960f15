// Package restore unpacks a tar archive stored in object storage onto the
// local filesystem.
package restore

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"S3Stream/internal/engine/archive"
	"S3Stream/internal/logger"
	"S3Stream/internal/objstore"
)

// ErrDigestMismatch is returned when Verify is set and the archive does not
// match its manifest.
var ErrDigestMismatch = errors.New("archive digest does not match manifest")

type Options struct {
	DryRun bool
	// Verify checks the BLAKE3 digest against the manifest stored next to
	// the archive. A missing manifest is an error.
	Verify bool
	// Format overrides compression detection from the key suffix.
	Format archive.CompressionFormat
}

type Result struct {
	Files   int
	Dirs    int
	Skipped int
	Bytes   int64
	Entries []string
}

func Extract(ctx context.Context, f objstore.Fetcher, bucket, key, targetDir string, opts Options) (*Result, error) {
	var manifest *archive.Manifest
	if opts.Verify {
		m, err := archive.ReadManifest(ctx, f, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("read manifest for %s/%s: %w", bucket, key, err)
		}
		manifest = m
	}

	rc, _, err := f.Fetch(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get archive %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	digest := archive.NewDigest()
	raw := io.TeeReader(rc, digest)

	format := opts.Format
	if format == "" {
		format = archive.FormatFromKey(key)
	}
	r, err := archive.NewDecompressReader(raw, format)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	defer r.Close()

	res := &Result{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read tar %s: %w", key, err)
		}
		if err := restoreEntry(ctx, tr, hdr, targetDir, opts, res); err != nil {
			return res, fmt.Errorf("restore %s: %w", hdr.Name, err)
		}
	}

	if manifest != nil {
		if _, err := io.Copy(io.Discard, raw); err != nil {
			return res, fmt.Errorf("read archive %s: %w", key, err)
		}
		if digest.Sum() != manifest.BLAKE3 || digest.Size() != manifest.Size {
			return res, fmt.Errorf("%w: %s/%s", ErrDigestMismatch, bucket, key)
		}
	}
	logger.Ctx(ctx).Info().
		Str("key", key).
		Int("files", res.Files).
		Int("dirs", res.Dirs).
		Int("skipped", res.Skipped).
		Bool("dry_run", opts.DryRun).
		Msg("archive extracted")
	return res, nil
}

func restoreEntry(ctx context.Context, tr *tar.Reader, hdr *tar.Header, targetDir string, opts Options, res *Result) error {
	name := cleanTarName(hdr.Name)
	if name == "" {
		logger.Ctx(ctx).Warn().Str("entry", hdr.Name).Msg("skipping unsafe entry name")
		res.Skipped++
		return nil
	}
	dstPath := filepath.Join(targetDir, filepath.FromSlash(name))

	switch hdr.Typeflag {
	case tar.TypeDir:
		res.Dirs++
		res.Entries = append(res.Entries, name+"/")
		if opts.DryRun {
			return nil
		}
		return os.MkdirAll(dstPath, dirMode(hdr))
	case tar.TypeReg:
		res.Files++
		res.Entries = append(res.Entries, name)
		if opts.DryRun {
			n, err := io.Copy(io.Discard, tr)
			res.Bytes += n
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(hdr))
		if err != nil {
			return err
		}
		n, err := io.Copy(f, tr)
		res.Bytes += n
		if err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		logger.Ctx(ctx).Debug().Str("entry", name).Str("type", string(hdr.Typeflag)).Msg("skipping unsupported entry type")
		res.Skipped++
		return nil
	}
}

// cleanTarName returns a relative slash path inside the target directory, or
// "" when the name is empty or climbs out of it.
func cleanTarName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = strings.TrimLeft(path.Clean(name), "/")
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return ""
	}
	return name
}

func fileMode(hdr *tar.Header) os.FileMode {
	if m := os.FileMode(hdr.Mode).Perm(); m != 0 {
		return m
	}
	return 0o644
}

func dirMode(hdr *tar.Header) os.FileMode {
	if m := os.FileMode(hdr.Mode).Perm(); m != 0 {
		return m | 0o700
	}
	return 0o755
}
