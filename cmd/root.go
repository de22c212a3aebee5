// =============================================================================
// Accounting Export Converter - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (converter)
//   ├── serveCmd    (converter serve)
//   ├── convertCmd  (converter convert)
//   ├── typesCmd    (converter types)
//   ├── validateCmd (converter validate)
//   └── versionCmd  (converter version)
//
// The root command owns the global flags and the helpers that load the
// configuration, the document type table and the logger.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/pkg/utils"
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "converter",
	Short: "Accounting Export Converter - Turn legacy accounting exports into import-ready CSV",
	Long: `Accounting Export Converter converts exports from one accounting package
(chart of accounts, invoices, bills, journals, payments, contacts, items, ...)
into the CSV import format of another.

Every document type follows the same contract: upload a file, process it,
download the converted CSV. The HTTP API exposes that contract per route;
the convert command runs it on local files.

Example Usage:
  converter serve                                         # Run the HTTP API
  converter convert --type coa --route au-myob-xero a.csv  # Convert a local file
  converter types                                         # List document types
  converter validate --config ./my.yaml                   # Check configuration`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig reads the main configuration. The default config.yaml may be
// absent; a path given explicitly must exist.
func loadConfig() (*config.MainConfig, error) {
	required := rootCmd.PersistentFlags().Changed("config")
	cfg, err := config.LoadMainConfig(cfgFile, required)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// loadRegistry returns the embedded document type table, or the file the
// configuration names.
func loadRegistry(cfg *config.MainConfig) (*doctype.Registry, error) {
	if cfg.DocumentTypesFile == "" {
		return doctype.Load()
	}
	if !utils.FileExists(cfg.DocumentTypesFile) {
		return nil, fmt.Errorf("document_types_file %q does not exist", cfg.DocumentTypesFile)
	}
	return doctype.LoadFile(cfg.DocumentTypesFile)
}

// newLogger builds the application logger. The returned func closes the log
// file, if any.
func newLogger(cfg *config.MainConfig) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closeFn = func() { f.Close() }
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "converter",
	})
	return logger, closeFn, nil
}
