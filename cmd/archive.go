package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"S3Stream/internal/config"
	"S3Stream/internal/engine/archive"
	"S3Stream/internal/engine/upload"
	"S3Stream/internal/objstore"
)

var (
	archiveTo         string
	archiveCompress   string
	archiveLevel      int
	archiveManifest   bool
	archiveLock       bool
	archivePipeSizeKB int
)

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVar(&archiveTo, "to", "", "Upload the archive to bucket/key instead of writing it to stdout")
	archiveCmd.Flags().StringVar(&archiveCompress, "compress", "", "Compression: none, gz or zst (default from config)")
	archiveCmd.Flags().IntVar(&archiveLevel, "level", 0, "Compression level (0 = library default)")
	archiveCmd.Flags().BoolVar(&archiveManifest, "manifest", false, "Write <key>.manifest.json with the entry list and BLAKE3 digest (requires --to)")
	archiveCmd.Flags().BoolVar(&archiveLock, "lock", false, "Hold a lock object for the --to destination")
	archiveCmd.Flags().IntVar(&archivePipeSizeKB, "pipe-size-kb", 0, "Producer buffer size in KiB (default from config)")
}

var archiveCmd = &cobra.Command{
	Use:   "archive <bucket>/<prefix>",
	Short: "Stream every object under a prefix as one tar archive",
	Long: "Stream every object under bucket/prefix as a tar archive. Entry names are the object keys relative to the prefix. " +
		"With --to the archive is uploaded as a multipart object while it is produced; a trailing / on the key appends a generated file name.",
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bucket, prefix, ok := objstore.ParseLocation(args[0])
	if !ok {
		return fmt.Errorf("invalid location %q (want bucket/prefix)", args[0])
	}
	prefix = objstore.NormalizePrefix(prefix)
	if archiveManifest && archiveTo == "" {
		return fmt.Errorf("--manifest requires --to")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	compress := archiveCompress
	pipeKB := archivePipeSizeKB
	if s.cfg.Archive != nil {
		if compress == "" {
			compress = s.cfg.Archive.Compression
		}
		if pipeKB == 0 {
			pipeKB = s.cfg.Archive.PipeSizeKB
		}
	}
	format, err := archive.ParseFormat(compress)
	if err != nil {
		return err
	}

	var manifest *archive.Manifest
	opts := []archive.Option{archive.WithPipeSize(pipeKB * 1024)}

	if archiveTo == "" {
		if _, err := streamArchive(ctx, s.client, bucket, prefix, cmd.OutOrStdout(), format, archiveLevel, opts...); err != nil {
			return archiveError(bucket, prefix, err)
		}
		return nil
	}

	dst, err := archiveDestination(archiveTo, prefix, format)
	if err != nil {
		return err
	}
	if err := checkArchiveDestination(bucket, prefix, dst); err != nil {
		return err
	}
	release, err := acquireLock(ctx, s, dst, archiveLock)
	if err != nil {
		return err
	}
	defer release()

	if archiveManifest {
		manifest = archive.NewManifest(dst)
		manifest.Compression = string(format)
		manifest.ContentType = format.ContentType()
		manifest.Source = bucket + "/" + prefix
		opts = append(opts, archive.WithEntryHook(manifest.Record))
	}

	sink := upload.NewSink(ctx, s.client, dst, objstore.Metadata{ContentType: format.ContentType()})
	digest, err := uploadArchive(ctx, s.cfg, s.client, bucket, prefix, sink, format, archiveLevel, opts...)
	if err != nil {
		return archiveError(bucket, prefix, err)
	}
	if manifest != nil {
		manifest.Seal(digest)
		if err := archive.WriteManifest(ctx, s.client, manifest); err != nil {
			return err
		}
	}
	cmd.PrintErrf("Archived %s/%s to %s (%s, %d parts)\n",
		bucket, prefix, dst, humanize.IBytes(uint64(digest.Size())), len(sink.Parts()))
	return nil
}

// streamArchive writes the archive of bucket/prefix, compressed as format,
// to out. When writing fails the producer is cancelled before Close drains
// it, so a failed consumer does not pull the rest of the prefix.
func streamArchive(ctx context.Context, backend archive.Backend, bucket, prefix string, out io.Writer,
	format archive.CompressionFormat, level int, opts ...archive.Option) (*archive.Digest, error) {
	srcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	digest := archive.NewDigest()
	cw, err := archive.NewCompressWriter(io.MultiWriter(out, digest), format, level)
	if err != nil {
		return nil, err
	}
	src := archive.NewSource(srcCtx, backend, bucket, prefix, opts...)

	if _, err := io.Copy(cw, src); err != nil {
		cancel()
		_ = src.Close()
		_ = cw.Close()
		return digest, err
	}
	if err := src.Close(); err != nil {
		_ = cw.Close()
		return digest, err
	}
	if err := cw.Close(); err != nil {
		return digest, err
	}
	return digest, nil
}

// uploadArchive streams the archive into sink and completes the upload,
// aborting it on any failure.
func uploadArchive(ctx context.Context, cfg *config.Config, backend archive.Backend, bucket, prefix string, sink *upload.Sink,
	format archive.CompressionFormat, level int, opts ...archive.Option) (*archive.Digest, error) {
	digest, err := streamArchive(ctx, backend, bucket, prefix, sink, format, level, opts...)
	if err == nil {
		err = sink.Close()
	}
	if err != nil {
		abortUpload(ctx, cfg, sink)
		return nil, err
	}
	return digest, nil
}

func archiveError(bucket, prefix string, err error) error {
	if errors.Is(err, objstore.ErrTruncated) {
		return fmt.Errorf("archive %s/%s is incomplete: %w", bucket, prefix, err)
	}
	return fmt.Errorf("archive %s/%s: %w", bucket, prefix, err)
}

// checkArchiveDestination refuses to write the archive where a later run
// would list it as part of its own input.
func checkArchiveDestination(bucket, prefix string, dst objstore.Destination) error {
	if dst.Bucket != bucket {
		return nil
	}
	if prefix == "" {
		return fmt.Errorf("destination %s is in bucket %s, which is archived in full; write to another bucket", dst, bucket)
	}
	if strings.HasPrefix(dst.Key, prefix) {
		return fmt.Errorf("destination %s is inside the archived prefix %s", dst, prefix)
	}
	return nil
}

// archiveDestination parses --to. A key ending in "/" (or none) gets a name
// derived from the prefix and the compression format.
func archiveDestination(loc, prefix string, format archive.CompressionFormat) (objstore.Destination, error) {
	bucket, key, ok := objstore.ParseLocation(loc)
	if !ok {
		return objstore.Destination{}, fmt.Errorf("invalid --to %q (want bucket/key)", loc)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		base := path.Base(strings.TrimSuffix(prefix, "/"))
		if base == "." || base == "/" || base == "" {
			base = "archive"
		}
		key += base + format.Extension()
	}
	return objstore.Destination{Bucket: bucket, Key: key}, nil
}
