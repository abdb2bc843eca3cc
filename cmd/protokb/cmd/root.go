package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfenderov/protokb/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	cfgErr  error

	logLevel = new(slog.LevelVar)
)

// GetConfig returns the loaded configuration.
func GetConfig() (config.Config, error) {
	return cfg, cfgErr
}

var rootCmd = &cobra.Command{
	Use:   "protokb",
	Short: "protokb: a wellness protocol knowledge base",
	Long: `protokb indexes protocol documents from a Google Drive folder, serves
the protocol, substance and symptom catalog from Airtable, answers questions
grounded on both through an LLM, and keeps a personal diary.

Commands:
  serve   Start the HTTP API
  mcp     Start the MCP server on stdio
  ingest  Extract and cache every document of the folder
  search  Search documents from the command line
  drive   Check the Drive folder connection`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogger, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	logLevel.Set(slog.LevelWarn)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// atLeastInfo lowers the log level to info for long-running commands.
func atLeastInfo() {
	if logLevel.Level() > slog.LevelInfo {
		logLevel.Set(slog.LevelInfo)
	}
}

func initConfig() {
	cfg, cfgErr = config.Load(viper.GetViper(), cfgFile)
	if cfgErr != nil {
		cfgErr = fmt.Errorf("load config: %w", cfgErr)
	}
}
