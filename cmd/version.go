package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X .../cmd.Version=... -X .../cmd.BuildDate=...".
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build and the document types it converts",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := doctype.Load()
		if err != nil {
			return err
		}
		writeVersion(cmd.OutOrStdout(), reg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// writeVersion prints one build line, then how many embedded document types
// run in each mode.
func writeVersion(w io.Writer, reg *doctype.Registry) {
	fmt.Fprintf(w, "converter %s (built %s, %s %s/%s)\n", Version, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	var strict, permissive int
	for _, spec := range reg.All() {
		if spec.Strict() {
			strict++
		} else {
			permissive++
		}
	}
	fmt.Fprintf(w, "document types: %d embedded (%d strict, %d permissive)\n", strict+permissive, strict, permissive)
}
