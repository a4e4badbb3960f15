package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"S3Stream/internal/objstore"
)

var (
	listLimit int
	listBytes bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Stop after this many objects (0 = all)")
	listCmd.Flags().BoolVar(&listBytes, "bytes", false, "Print exact sizes instead of human-readable ones")
}

var listCmd = &cobra.Command{
	Use:   "list <bucket>[/<prefix>]",
	Short: "List objects under a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bucket, prefix, ok := objstore.ParseLocation(args[0])
	if !ok {
		return fmt.Errorf("invalid location %q (want bucket/prefix)", args[0])
	}
	prefix = objstore.NormalizePrefix(prefix)

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		cursor string
		count  int
		total  int64
	)
	for {
		page, err := s.client.ListPage(ctx, bucket, prefix, cursor)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			cmd.Printf("%12s  %s\n", formatSize(obj.Size), obj.Key)
			count++
			total += obj.Size
			if listLimit > 0 && count >= listLimit {
				cmd.Printf("(stopped after %d objects)\n", count)
				return nil
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	cmd.Printf("%d objects, %s\n", count, formatSize(total))
	return nil
}

func formatSize(n int64) string {
	if listBytes || n < 0 {
		return fmt.Sprintf("%d", n)
	}
	return humanize.IBytes(uint64(n))
}
