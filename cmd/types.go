package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// typesCmd lists the document type table.
var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the supported document types and their routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := loadRegistry(cfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME\tMODE\tFILES\tROUTES")
		for _, spec := range registry.All() {
			files := "1"
			if spec.IsDualFile() {
				files = "2"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", spec.Slug, spec.Name, spec.Mode, files, strings.Join(spec.Routes, ", "))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
