// =============================================================================
// Accounting Export Converter - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   converter validate [--config config.yaml]
//
// Loads the main configuration and the document type table and reports
// every problem found, without converting anything.
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/spf13/cobra"
)

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and document types",
	Long: `Check the main configuration file and the document type table
(embedded, or document_types_file) and report any problems.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate() error {
	cfg, err := loadConfig()
	if err != nil {
		red.Println("✗ configuration")
		return err
	}
	green.Printf("✓ configuration (%s)\n", cfgFile)

	source := "embedded"
	if cfg.DocumentTypesFile != "" {
		source = cfg.DocumentTypesFile
	}
	registry, err := loadRegistry(cfg)
	if err != nil {
		red.Printf("✗ document types (%s)\n", source)
		return err
	}

	specs := registry.All()
	for _, spec := range specs {
		if problems := doctype.Validate(spec); len(problems) > 0 {
			red.Printf("  ✗ %s\n", spec.Slug)
			for _, p := range problems {
				fmt.Printf("      %s\n", p)
			}
			return fmt.Errorf("document type %q is invalid", spec.Slug)
		}
	}
	green.Printf("✓ document types (%s): %d type(s)\n", source, len(specs))

	if cfg.History.DBPath == "" {
		yellow.Println("! download history disabled (history.db_path is empty)")
	}
	return nil
}
