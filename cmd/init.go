package cmd

import (
	"github.com/spf13/cobra"

	"S3Stream/internal/config"
)

var (
	initForce    bool
	initBackend  string
	initEndpoint string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendS3, "Storage backend (s3 or minio)")
	initCmd.Flags().StringVar(&initEndpoint, "endpoint", "", "S3 endpoint URL (empty for AWS)")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  "Write a default configuration file to --config, $S3STREAM_CONFIG or ~/.config/s3stream/config.yaml. Credentials are best supplied as S3STREAM_S3_ACCESS_KEY and S3STREAM_S3_SECRET_KEY.",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Backend = initBackend
	if cmd.Flags().Changed("endpoint") {
		cfg.S3.Endpoint = initEndpoint
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	path, _ := config.ResolveConfigPath(configPath)
	if err := config.Write(cfg, path, initForce); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)
	return nil
}
