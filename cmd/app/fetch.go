package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/local/assistgate/internal/storage"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <key>",
	Short: "Download an archived artifact, unsealing it when needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Archive.Enabled() {
			return fmt.Errorf("ARCHIVE_BUCKET is not set")
		}
		s3c, err := storage.NewS3Client(cmd.Context(), storage.Options{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			return err
		}
		data, meta, err := s3c.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if storage.IsSealed(data) {
			if cfg.Archive.Passphrase == "" {
				return fmt.Errorf("%s is sealed and ARCHIVE_PASSPHRASE is not set", args[0])
			}
			if data, err = storage.Open(data, cfg.Archive.Passphrase); err != nil {
				return err
			}
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes, %s %s)\n", out, len(data), meta["kind"], meta["name"])
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(fetchCmd)
}
