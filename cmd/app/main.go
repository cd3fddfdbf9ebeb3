// Package main is the assistgate entry point: the HTTP gateway plus a few operator commands.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/assistgate/internal/config"
	logpkg "github.com/local/assistgate/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var cfg cfgpkg.Config

var rootCmd = &cobra.Command{
	Use:     "assistgate",
	Short:   "Gateway in front of the hosted assistants",
	Version: version,
	Long: `assistgate serves the assistant pages' API: chat turns forwarded to the ask
endpoint, resume conversion, cover letter and quote documents, and the optional
S3 archive of generated artifacts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		cfg = cfgpkg.FromEnv()
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		var out io.Writer
		if cmd.Name() != serveCmd.Name() {
			out = os.Stderr
		}
		return logpkg.Init(logpkg.Options{
			Level:        cfg.Logging.Level,
			Pretty:       cfg.Logging.Pretty,
			File:         cfg.Logging.File,
			MaxSizeMB:    cfg.Logging.MaxSizeMB,
			MaxBackups:   cfg.Logging.MaxBackups,
			MaxAgeDays:   cfg.Logging.MaxAgeDays,
			Compress:     cfg.Logging.Compress,
			Out:          out,
			SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
			AxiomAPIKey:  cfg.Axiom.APIKey,
			AxiomOrgID:   cfg.Axiom.OrgID,
			AxiomDataset: cfg.Axiom.Dataset,
			AxiomFlush:   cfg.Axiom.FlushInterval,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logpkg.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "", "override LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logpkg.Close()
		os.Exit(1)
	}
}
