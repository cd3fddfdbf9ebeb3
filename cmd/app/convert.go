package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/assistgate/internal/pdftext"
	"github.com/local/assistgate/internal/resume"
)

var convertCmd = &cobra.Command{
	Use:   "convert <resume.pdf>",
	Short: "Convert a PDF resume to markdown",
	Long: `convert runs the same extraction chain as POST /api/convert-pdf and prints the
resulting markdown to stdout. Unreadable PDFs print the placeholder markdown and exit
non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		backends, _ := cmd.Flags().GetStringSlice("backend")
		if len(backends) == 0 {
			backends = cfg.Convert.Extractors
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = log.Logger.WithContext(ctx)

		conv := resume.Convert(ctx, pdftext.New(backends, cfg.Convert.MinTextChars), data, filepath.Base(args[0]))
		fmt.Fprint(cmd.OutOrStdout(), conv.Markdown)
		if conv.Fallback {
			return fmt.Errorf("%s: %w", args[0], conv.Err)
		}
		log.Info().Int("pages", conv.Pages).Str("backend", conv.Backend).Msg("converted")
		return nil
	},
}

func init() {
	convertCmd.Flags().StringSlice("backend", nil, "extraction backends in order: fitz, plain (default CONVERT_EXTRACTORS)")
	rootCmd.AddCommand(convertCmd)
}
