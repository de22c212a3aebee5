// =============================================================================
// Accounting Export Converter - Convert Command
// =============================================================================
//
// This file defines the 'convert' command, which runs local export files
// through the same upload / process / download contract as the HTTP API.
//
// COMMAND USAGE:
//   converter convert --type <slug> --route <country-source-dest> [flags] files...
//
// FLAGS:
//   --type           : Document type slug (see 'converter types')
//   --route          : Software pair, e.g. au-myob-xero
//   --currency-mode  : single (default) or multi
//   --currency       : Currency code for multi-currency conversions
//   --key-file       : Key sheet file (dual-file types)
//   --value-file     : Value sheet file (dual-file types)
//   --out            : Output directory (default: output_dir)
//
// PROCESSING PIPELINE:
//   1. Load configuration and document types
//   2. Resolve the route
//   3. For each file (concurrently, at most max_concurrency at once):
//      a. Upload the file into a conversion job
//      b. Process the job
//      c. Write the converted CSV to the output directory
//   4. Print a summary
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/converter"
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/ingest"
	"github.com/ginjaninja78/accounting-export-converter/internal/output"
	"github.com/ginjaninja78/accounting-export-converter/internal/session"
	"github.com/ginjaninja78/accounting-export-converter/pkg/utils"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	docType      string
	routePair    string
	currencyMode string
	currency     string
	keyFile      string
	valueFile    string
	outDir       string
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

// =============================================================================
// CONVERT COMMAND DEFINITION
// =============================================================================

// convertCmd represents the 'convert' command.
var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert local export files",
	Long: `The convert command converts one or more export files of a single
document type. Each file becomes its own conversion job; files are processed
concurrently and a failure in one file does not stop the others unless
continue_on_error is false.

Dual-file types (authorised-invoice, authorised-bill) take either a workbook
holding both sheets, or --key-file and --value-file.`,
	Example: `  converter convert --type coa --route au-myob-xero "Accounts.csv"
  converter convert --type invoice --route au-myob-xero --currency-mode multi --currency AUD sales.xlsx
  converter convert --type authorised-invoice --route au-myob-xero --key-file keys.csv --value-file lines.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVar(&docType, "type", "", "Document type slug")
	convertCmd.Flags().StringVar(&routePair, "route", "", "Software pair {country}-{source}-{dest}")
	convertCmd.Flags().StringVar(&currencyMode, "currency-mode", string(doctype.CurrencySingle), "single or multi")
	convertCmd.Flags().StringVar(&currency, "currency", "", "Currency code (multi-currency conversions)")
	convertCmd.Flags().StringVar(&keyFile, "key-file", "", "Key sheet file for dual-file types")
	convertCmd.Flags().StringVar(&valueFile, "value-file", "", "Value sheet file for dual-file types")
	convertCmd.Flags().StringVar(&outDir, "out", "", "Output directory (default: output_dir)")

	convertCmd.MarkFlagRequired("type")
	convertCmd.MarkFlagRequired("route")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// fileResult is the outcome of one file.
type fileResult struct {
	Name    string
	Output  string
	Rows    int
	Dropped int
	Err     error
	Elapsed time.Duration
}

// conversion is one unit of work: a single file, or a key / value pair.
type conversion struct {
	Name  string
	Paths []string
}

func runConvert(parent context.Context, args []string) error {
	if parent == nil {
		parent = context.Background()
	}
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	route, err := doctype.ParseRoute(routePair, currencyMode, docType)
	if err != nil {
		return err
	}
	spec, err := registry.Resolve(route)
	if err != nil {
		return err
	}

	work, err := planConversions(spec, args)
	if err != nil {
		return err
	}

	dest := outDir
	if dest == "" {
		dest = cfg.OutputDir
	}
	if err := utils.EnsureDirectories(cfg.WorkDir, dest); err != nil {
		return err
	}

	bold.Println("=== Accounting Export Converter ===")
	fmt.Printf("Route:   %s (%s)\n", route.String(), spec.Name)
	fmt.Printf("Files:   %d\n\n", len(work))

	// =========================================================================
	// STEP 2: PROCESS FILES CONCURRENTLY
	// =========================================================================

	// Outputs go to dest, never to the service's own output_dir copy.
	svcCfg := *cfg
	svcCfg.WriteOutputFiles = false
	svc := converter.NewService(&svcCfg, registry, session.NewStore(cfg.Jobs.TTL, len(work)+1), logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results := make(chan fileResult, len(work))
	sem := make(chan struct{}, cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for _, w := range work {
		wg.Add(1)
		go func(w conversion) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- fileResult{Name: w.Name, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			res := convertOne(ctx, svc, route, w, dest)
			if res.Err != nil && !continueOnError(cfg) {
				cancel()
			}
			results <- res
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// =========================================================================
	// STEP 3: COLLECT RESULTS AND PRINT SUMMARY
	// =========================================================================

	var successCount, errorCount, rowsWritten int
	for res := range results {
		if res.Err == nil {
			successCount++
			rowsWritten += res.Rows
			green.Printf("  ✓ %s -> %s (%d rows", res.Name, res.Output, res.Rows)
			if res.Dropped > 0 {
				green.Printf(", %d dropped", res.Dropped)
			}
			green.Println(")")
			continue
		}
		errorCount++
		red.Printf("  ✗ %s: %v\n", res.Name, res.Err)
		logger.Error("Conversion failed", "file", res.Name, "kind", converter.KindOf(res.Err), "err", res.Err)
	}

	fmt.Println()
	bold.Println("=== Processing Complete ===")
	fmt.Printf("Total files:     %d\n", len(work))
	green.Printf("Successful:      %d\n", successCount)
	if errorCount > 0 {
		red.Printf("Errors:          %d\n", errorCount)
	} else {
		fmt.Printf("Errors:          %d\n", errorCount)
	}
	fmt.Printf("Rows written:    %d\n", rowsWritten)
	fmt.Printf("Time elapsed:    %s\n", time.Since(startTime).Round(time.Millisecond))

	if errorCount > 0 {
		yellow.Println("\nSome files failed; see the log for details.")
		return fmt.Errorf("%d of %d file(s) failed", errorCount, len(work))
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// planConversions turns the command line into units of work.
func planConversions(spec *doctype.Spec, args []string) ([]conversion, error) {
	if keyFile != "" || valueFile != "" {
		if !spec.IsDualFile() {
			return nil, fmt.Errorf("--key-file and --value-file only apply to dual-file types, not %q", spec.Slug)
		}
		if keyFile == "" || valueFile == "" {
			return nil, errors.New("--key-file and --value-file must be given together")
		}
		if len(args) > 0 {
			return nil, errors.New("positional files cannot be combined with --key-file / --value-file")
		}
		return []conversion{{Name: filepath.Base(keyFile), Paths: []string{keyFile, valueFile}}}, nil
	}

	if len(args) == 0 {
		return nil, errors.New("no input files given")
	}
	work := make([]conversion, 0, len(args))
	for _, path := range args {
		work = append(work, conversion{Name: filepath.Base(path), Paths: []string{path}})
	}
	return work, nil
}

// convertOne runs one unit of work through upload, process and download.
func convertOne(ctx context.Context, svc *converter.Service, route doctype.Route, w conversion, dest string) fileResult {
	start := time.Now()
	res := fileResult{Name: w.Name}

	files := make([]ingest.Upload, 0, len(w.Paths))
	for _, path := range w.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			res.Err = fmt.Errorf("failed to read %s: %w", path, err)
			return res
		}
		files = append(files, ingest.Upload{Name: filepath.Base(path), Data: data})
	}

	up, err := svc.Upload(ctx, converter.UploadRequest{Route: route, Files: files, Currency: currency})
	if err != nil {
		res.Err = err
		return res
	}
	defer svc.Jobs().Delete(up.JobID)

	converted, err := svc.Convert(ctx, converter.ConvertRequest{JobID: up.JobID, Route: route})
	if err != nil {
		res.Err = err
		return res
	}
	out, err := svc.Download(ctx, up.JobID, route)
	if err != nil {
		res.Err = err
		return res
	}

	res.Output = filepath.Join(dest, out.FileName)
	if err := output.WriteFile(res.Output, out.Data); err != nil {
		res.Err = err
		return res
	}

	res.Rows = converted.Stats.RowsWritten
	res.Dropped = converted.Stats.RowsDropped
	res.Elapsed = time.Since(start)
	return res
}

func continueOnError(cfg *config.MainConfig) bool {
	return cfg.ContinueOnError == nil || *cfg.ContinueOnError
}
