package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"S3Stream/internal/config"
	"S3Stream/internal/doctor"
)

var doctorBucket string

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorBucket, "bucket", "", "Also check that this bucket is reachable and writable")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose config, storage connectivity, locks, and disk",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	v, err := config.Load(configPath, true)
	if err != nil {
		cmd.Printf("Config load: ERROR: %v\n", err)
		return err
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		cmd.Printf("Config unmarshal: ERROR: %v\n", err)
		return err
	}

	results := doctor.Run(cmd.Context(), cfg, doctorBucket, nil)
	for _, r := range results {
		status := "OK"
		if !r.OK {
			status = "ERROR"
		}
		cmd.Printf("%-12s %s: %s\n", r.Name, status, r.Detail)
	}
	if !doctor.Healthy(results) {
		return fmt.Errorf("one or more checks failed; see output above")
	}
	return nil
}
