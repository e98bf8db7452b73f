// Package main implements searchd, the message search service: it ingests the
// remote message source, indexes it in memory and serves keyword search.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/logger"
)

var (
	configPath string
	envFile    string
	version    = "dev"

	// cfg is populated by the root command before any subcommand runs.
	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "searchd",
	Short: "Keyword search over the remote message source",
	Long: `searchd pulls every record from the paginated message source, builds an
inverted index over the message field and answers AND keyword queries.

Configuration comes from an optional YAML file plus MS_* environment
variables. A .env file in the working directory is loaded first if present.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (defaults plus MS_* env when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before config")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
}
