package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"S3Stream/internal/config"
	"S3Stream/internal/engine/archive"
	"S3Stream/internal/engine/upload"
	"S3Stream/internal/lock"
	"S3Stream/internal/logger"
	"S3Stream/internal/objstore"
)

var (
	uploadFile        string
	uploadContentType string
	uploadMeta        []string
	uploadLock        bool
	uploadManifest    bool
	uploadEmptyObject bool
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVarP(&uploadFile, "file", "f", "", "Read from this file instead of stdin")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "auto", "Content-Type of the object; \"auto\" sniffs the first bytes")
	uploadCmd.Flags().StringArrayVar(&uploadMeta, "meta", nil, "User metadata as key=value (repeatable)")
	uploadCmd.Flags().BoolVar(&uploadLock, "lock", false, "Hold a lock object for the destination while uploading")
	uploadCmd.Flags().BoolVar(&uploadManifest, "manifest", false, "Write <key>.manifest.json with size and BLAKE3 digest")
	uploadCmd.Flags().BoolVar(&uploadEmptyObject, "empty-object", true, "Create a zero-length object when the input is empty")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <bucket>/<key>",
	Short: "Upload stdin or a file as a multipart object",
	Long:  "Upload stdin (or --file) to bucket/key as an S3 multipart upload sent in 5 MiB parts. The input is never staged on disk.",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dst, err := parseDestination(args[0])
	if err != nil {
		return err
	}
	meta, err := parseMetadata(uploadMeta)
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var in io.Reader = cmd.InOrStdin()
	if uploadFile != "" {
		f, err := os.Open(uploadFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	br := bufio.NewReaderSize(in, 64*1024)
	meta.ContentType = uploadContentType
	if uploadContentType == "auto" {
		meta.ContentType = upload.DetectContentType(br)
	}

	release, err := acquireLock(ctx, s, dst, uploadLock)
	if err != nil {
		return err
	}
	defer release()

	emptyObject := s.cfg.Upload == nil || s.cfg.Upload.EmptyObject
	if cmd.Flags().Changed("empty-object") {
		emptyObject = uploadEmptyObject
	}
	sink := upload.NewSink(ctx, s.client, dst, meta, upload.WithEmptyObject(emptyObject))
	digest := archive.NewDigest()

	_, err = io.Copy(sink, io.TeeReader(br, digest))
	if err == nil {
		err = sink.Close()
	}
	if err != nil {
		abortUpload(ctx, s.cfg, sink)
		return fmt.Errorf("upload %s: %w", dst, err)
	}

	if uploadManifest {
		m := archive.NewManifest(dst)
		m.ContentType = meta.ContentType
		m.Seal(digest)
		if err := archive.WriteManifest(ctx, s.client, m); err != nil {
			return err
		}
	}
	cmd.PrintErrf("Uploaded %s to %s in %d parts (%s)\n",
		humanize.IBytes(uint64(sink.Written())), dst, len(sink.Parts()), meta.ContentType)
	return nil
}

func parseDestination(loc string) (objstore.Destination, error) {
	bucket, key, ok := objstore.ParseLocation(loc)
	if !ok || key == "" {
		return objstore.Destination{}, fmt.Errorf("invalid destination %q (want bucket/key)", loc)
	}
	return objstore.Destination{Bucket: bucket, Key: key}, nil
}

func parseMetadata(pairs []string) (objstore.Metadata, error) {
	var meta objstore.Metadata
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return meta, fmt.Errorf("invalid --meta %q (want key=value)", p)
		}
		if meta.UserMetadata == nil {
			meta.UserMetadata = map[string]string{}
		}
		meta.UserMetadata[k] = v
	}
	return meta, nil
}

// acquireLock takes the destination lock when requested by flag or config.
// The returned func releases it.
func acquireLock(ctx context.Context, s *session, dst objstore.Destination, flag bool) (func(), error) {
	if !flag && (s.cfg.Lock == nil || !s.cfg.Lock.Enabled) {
		return func() {}, nil
	}
	l, err := lock.NewS3(lock.S3Options{Store: s.client, Bucket: dst.Bucket, Key: dst.Key, TTL: config.LockTTL(s.cfg)})
	if err != nil {
		return nil, err
	}
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("lock", l.Key()).Msg("lock release failed")
		}
	}, nil
}

// abortUpload discards the incomplete multipart upload unless the config
// asks to keep it for inspection.
func abortUpload(ctx context.Context, cfg *config.Config, sink *upload.Sink) {
	if cfg.Upload != nil && !cfg.Upload.AbortOnFail {
		logger.Ctx(ctx).Warn().Str("upload_id", sink.UploadID()).Msg("leaving incomplete multipart upload in place")
		return
	}
	if err := sink.Abort(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, objstore.ErrClosed) {
		logger.Ctx(ctx).Error().Err(err).Str("upload_id", sink.UploadID()).Msg("abort multipart upload failed")
	}
}
