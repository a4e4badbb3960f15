package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"S3Stream/internal/engine/archive"
	"S3Stream/internal/objstore"
	"S3Stream/internal/restore"
)

var (
	extractDryRun bool
	extractVerify bool
	extractFormat string
)

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractDryRun, "dry-run", false, "List entries without writing files")
	extractCmd.Flags().BoolVar(&extractVerify, "verify", false, "Check the archive against its manifest")
	extractCmd.Flags().StringVar(&extractFormat, "format", "", "Compression of the archive (default: from the key suffix)")
}

var extractCmd = &cobra.Command{
	Use:   "extract <bucket>/<key> <dir>",
	Short: "Extract a tar archive from object storage into a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, err := parseDestination(args[0])
	if err != nil {
		return err
	}
	opts := restore.Options{DryRun: extractDryRun, Verify: extractVerify}
	if extractFormat != "" {
		if opts.Format, err = archive.ParseFormat(extractFormat); err != nil {
			return err
		}
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := restore.Extract(ctx, s.client, src.Bucket, src.Key, args[1], opts)
	if err != nil {
		return err
	}
	if extractDryRun {
		for _, name := range res.Entries {
			cmd.Println(name)
		}
	}
	cmd.PrintErrf("%d files, %d directories, %s", res.Files, res.Dirs, humanize.IBytes(uint64(res.Bytes)))
	if res.Skipped > 0 {
		cmd.PrintErrf(", %d entries skipped", res.Skipped)
	}
	cmd.PrintErrln()
	if opts.Verify {
		cmd.PrintErrln("Digest matches manifest for", objstore.ManifestKey(src.Key))
	}
	return nil
}
