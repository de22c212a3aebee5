// =============================================================================
// Accounting Export Converter - Main Entry Point
// =============================================================================
//
// USAGE:
//   converter serve       - Run the HTTP API (upload / process / download)
//   converter convert     - Convert local export files
//   converter types       - List the supported document types
//   converter validate    - Validate configuration and document types
//   converter version     - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Conversion pipeline, HTTP API, job and history stores
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/accounting-export-converter/cmd"
)

func main() {
	cmd.Execute()
}
