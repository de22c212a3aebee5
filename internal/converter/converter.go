// =============================================================================
// Accounting Export Converter - Conversion Service
// =============================================================================
//
// This module contains the core conversion logic. It orchestrates the
// three-call contract of every document type route:
//
//   UPLOAD   (upload-<slug>)
//     1. Resolve the document type for the route
//     2. Decode the uploaded file(s) into datasets (temp artifact removed)
//     3. Store the datasets on a conversion job (new or replaced)
//
//   CONVERT  (process-<slug>)
//     1. Load the job's datasets
//     2. Rename headers to canonical fields (SchemaMapper)
//     3. Join key and value sheets (dual-file types only)
//     4. Apply the document type's rules and project the columns
//     5. Validate the output rows
//     6. Render CSV and store it on the job (optionally on disk)
//
//   DOWNLOAD (download-<slug>)
//     Return the job's stored artifact with its generated file name.
//
// CONCURRENCY:
//   The service holds no per-call state; everything a call needs lives on
//   its job in the session store, which is safe for concurrent use.
//
// =============================================================================

package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ginjaninja78/accounting-export-converter/internal/config"
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/ingest"
	"github.com/ginjaninja78/accounting-export-converter/internal/output"
	"github.com/ginjaninja78/accounting-export-converter/internal/reconcile"
	"github.com/ginjaninja78/accounting-export-converter/internal/rules"
	"github.com/ginjaninja78/accounting-export-converter/internal/schema"
	"github.com/ginjaninja78/accounting-export-converter/internal/session"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
	"github.com/ginjaninja78/accounting-export-converter/internal/validation"
	"github.com/ginjaninja78/accounting-export-converter/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of one Convert call.
type Result struct {
	// JobID is the conversion job.
	JobID string

	// FileName is the generated download name.
	FileName string

	// OutputFile is the on-disk copy, when output files are written.
	OutputFile string

	// ReportFile lists validation findings, when output files are written
	// and the output has any.
	ReportFile string

	// Columns is the final output column set.
	Columns []string

	// Success indicates whether the conversion produced output.
	Success bool

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RowsRead is the number of rows entering the rule engine.
	RowsRead int

	// RowsWritten is the number of output rows.
	RowsWritten int

	// RowsDropped is the number of rows the rules removed.
	RowsDropped int

	// DroppedBy breaks RowsDropped down per rule.
	DroppedBy map[string]int

	// IdentifiersSynthesized and IdentifiersRewritten count reconciliation
	// changes (dual-file types only).
	IdentifiersSynthesized int
	IdentifiersRewritten   int

	// ValidationWarnings is the number of output warnings (values passed
	// through unchanged).
	ValidationWarnings int

	// ProcessingTime is the time taken by the conversion.
	ProcessingTime time.Duration
}

// UploadRequest is the input of Upload.
type UploadRequest struct {
	// JobID replaces an existing job's input; empty creates a job.
	JobID string

	// Route identifies the document type and software pair.
	Route doctype.Route

	// Files holds one file, or for dual-file types the key file then the
	// value file. A single workbook serves both sheets of a dual-file type.
	Files []ingest.Upload

	// Currency is the caller's currency code.
	Currency string
}

// UploadResult is the outcome of Upload.
type UploadResult struct {
	JobID string

	// Rows is the number of data rows read (value rows for dual types).
	Rows int

	// KeyRows is the number of key-sheet rows (dual types only).
	KeyRows int
}

// ConvertRequest is the input of Convert.
type ConvertRequest struct {
	JobID string
	Route doctype.Route

	// Currency overrides the code given at upload.
	Currency string
}

// =============================================================================
// SERVICE STRUCTURE
// =============================================================================

// Logger is the logging surface the service needs. *log.Logger from
// charmbracelet/log satisfies it.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// Service runs conversions.
type Service struct {
	cfg      *config.MainConfig
	registry *doctype.Registry
	parser   *ingest.Parser
	jobs     *session.Store
	logger   Logger
	now      func() time.Time
}

// NewService wires a service. A nil logger uses the default logger.
func NewService(cfg *config.MainConfig, registry *doctype.Registry, jobs *session.Store, logger Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		parser:   ingest.NewParser(cfg.WorkDir, cfg.CSVSettings),
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry returns the document type table.
func (s *Service) Registry() *doctype.Registry { return s.registry }

// Jobs returns the job store.
func (s *Service) Jobs() *session.Store { return s.jobs }

// =============================================================================
// UPLOAD
// =============================================================================

// Upload decodes the request's files and stores them on a job.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (res *UploadResult, err error) {
	defer recoverPanic(OpUpload, s.logger, &err)

	spec, err := s.registry.Resolve(req.Route)
	if err != nil {
		return nil, classify(OpUpload, err)
	}
	if len(req.Files) == 0 {
		return nil, classify(OpUpload, ingest.ErrNoFile)
	}

	in := session.Input{FileName: req.Files[0].Name, Currency: req.Currency}
	res = &UploadResult{}

	if spec.IsDualFile() {
		keyFile, valueFile := req.Files[0], req.Files[0]
		if len(req.Files) > 1 {
			valueFile = req.Files[1]
		}
		if in.Key, err = s.parser.Parse(ctx, keyFile, spec.Reconcile.KeySheet); err != nil {
			return nil, classify(OpUpload, fmt.Errorf("key sheet: %w", err))
		}
		if in.Value, err = s.parser.Parse(ctx, valueFile, spec.Reconcile.ValueSheet); err != nil {
			return nil, classify(OpUpload, fmt.Errorf("value sheet: %w", err))
		}
		res.Rows, res.KeyRows = in.Value.Len(), in.Key.Len()
	} else {
		if in.Dataset, err = s.parser.Parse(ctx, req.Files[0], spec.Sheet); err != nil {
			return nil, classify(OpUpload, err)
		}
		res.Rows = in.Dataset.Len()
	}

	job, err := s.jobs.Upload(req.JobID, req.Route, in)
	if err != nil {
		return nil, classify(OpUpload, err)
	}
	res.JobID = job.ID

	s.logger.Info("Upload stored",
		"job", job.ID,
		"route", req.Route.String(),
		"file", in.FileName,
		"rows", res.Rows,
	)
	return res, nil
}

// =============================================================================
// CONVERT
// =============================================================================

// Convert runs the job's input through the document type and stores the
// rendered CSV on the job.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (result *Result, err error) {
	defer recoverPanic(OpConvert, s.logger, &err)

	startTime := s.now()

	spec, err := s.registry.Resolve(req.Route)
	if err != nil {
		return nil, classify(OpConvert, err)
	}
	job, err := s.jobs.Get(req.JobID, req.Route)
	if err != nil {
		return nil, classify(OpConvert, err)
	}
	if !job.HasInput() {
		return nil, classify(OpConvert, session.ErrNoDataset)
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(OpConvert, err)
	}

	result = &Result{JobID: job.ID}

	// =========================================================================
	// STEP 1: MAP HEADERS (AND JOIN DUAL-FILE INPUTS)
	// =========================================================================

	mapper := schema.NewMapper(spec)
	var ds *types.Dataset
	if spec.IsDualFile() {
		if job.Input.Key == nil || job.Input.Value == nil {
			return nil, classify(OpConvert, session.ErrNoDataset)
		}
		joined, st, err := reconcile.Join(mapper.Map(job.Input.Key), mapper.Map(job.Input.Value), *spec.Reconcile)
		if err != nil {
			return nil, classify(OpConvert, err)
		}
		ds = joined
		result.Stats.IdentifiersSynthesized = st.Synthesized
		result.Stats.IdentifiersRewritten = st.Rewritten
		s.logger.Debug("Reconciled identifiers",
			"job", job.ID,
			"ambiguous", st.Ambiguous,
			"synthesized", st.Synthesized,
			"rewritten", st.Rewritten,
		)
	} else {
		ds = mapper.Map(job.Input.Dataset)
	}

	// =========================================================================
	// STEP 2: APPLY RULES
	// =========================================================================

	currency := req.Currency
	if currency == "" {
		currency = job.Input.Currency
	}
	applied, err := rules.New(spec).Apply(ds, rules.Options{
		Currency:     currency,
		CurrencyMode: req.Route.CurrencyMode,
	})
	if applied != nil {
		result.Stats.RowsRead = applied.Read
		result.Stats.RowsDropped = applied.TotalDropped()
		result.Stats.DroppedBy = applied.Dropped
	}
	if err != nil {
		s.logger.Warn("Conversion produced no rows", "job", job.ID, "read", result.Stats.RowsRead, "dropped", result.Stats.DroppedBy)
		return nil, classify(OpConvert, err)
	}

	// =========================================================================
	// STEP 3: VALIDATE OUTPUT
	// =========================================================================

	report := validation.ValidateOutput(spec, applied.Columns, applied.Dataset.Rows)
	result.Stats.ValidationWarnings = report.WarningCount
	for _, w := range report.Warnings() {
		s.logger.Warn("Value passed through unchanged", "job", job.ID, "row", w.RowNumber, "field", w.Field, "value", w.Value)
	}
	if len(report.Errors) > 0 && s.cfg.WriteOutputFiles {
		result.ReportFile = filepath.Join(s.cfg.OutputDir, job.ID+".validation.log")
		if err := validation.WriteErrorLog(report.Errors, result.ReportFile); err != nil {
			s.logger.Warn("Failed to write validation report", "job", job.ID, "err", err)
			result.ReportFile = ""
		}
	}
	if !report.IsValid {
		s.logger.Error("Output validation failed", "job", job.ID, "report", validation.FormatErrors(report.Errors))
		return nil, &Error{
			Kind: KindUnexpected,
			Op:   OpConvert,
			Err:  fmt.Errorf("output validation failed with %d error(s)", report.ErrorCount),
		}
	}

	// =========================================================================
	// STEP 4: RENDER AND STORE
	// =========================================================================

	writer := &output.CSVWriter{Columns: applied.Columns}
	data, err := writer.Render(applied.Dataset.Rows)
	if err != nil {
		return nil, classify(OpConvert, err)
	}

	now := s.now()
	result.FileName = s.generateOutputFileName(job, now)
	result.Columns = applied.Dataset.Headers

	if s.cfg.WriteOutputFiles {
		path := filepath.Join(s.cfg.OutputDir, job.ID+".csv")
		if err := output.WriteFile(path, data); err != nil {
			return nil, classify(OpConvert, err)
		}
		result.OutputFile = path
	}

	err = s.jobs.SetOutput(job.ID, req.Route, job.Generation, &session.Output{
		Data:     data,
		FileName: result.FileName,
		Rows:     len(applied.Dataset.Rows),
		Columns:  result.Columns,
		Created:  now,
	})
	if err != nil {
		return nil, classify(OpConvert, err)
	}

	// =========================================================================
	// COMPLETE
	// =========================================================================

	result.Success = true
	result.Stats.RowsWritten = len(applied.Dataset.Rows)
	result.Stats.ProcessingTime = s.now().Sub(startTime)

	s.logger.Info("Conversion complete",
		"job", job.ID,
		"route", req.Route.String(),
		"read", result.Stats.RowsRead,
		"written", result.Stats.RowsWritten,
		"dropped", result.Stats.RowsDropped,
		"elapsed", result.Stats.ProcessingTime,
	)
	return result, nil
}

// =============================================================================
// DOWNLOAD
// =============================================================================

// Download returns the job's converted artifact.
func (s *Service) Download(ctx context.Context, jobID string, route doctype.Route) (out *session.Output, err error) {
	defer recoverPanic(OpDownload, s.logger, &err)

	if _, err := s.registry.Resolve(route); err != nil {
		return nil, classify(OpDownload, err)
	}
	out, err = s.jobs.Output(jobID, route)
	if err != nil {
		return nil, classify(OpDownload, err)
	}
	s.logger.Debug("Serving download", "job", jobID, "file", out.FileName, "rows", out.Rows)
	return out, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateOutputFileName renders the configured name template from the
// job's metadata.
func (s *Service) generateOutputFileName(job session.Job, now time.Time) string {
	original := utils.BaseName(job.Input.FileName)
	if original == "" {
		original = job.Route.Slug
	}
	params := map[string]string{
		"original":      original,
		"source":        job.Route.Source,
		"dest":          job.Route.Dest,
		"country":       job.Route.Country,
		"function":      job.Route.Slug,
		"currency_mode": string(job.Route.CurrencyMode),
		"job":           job.ID,
	}
	return utils.GenerateOutputFileName(s.cfg.OutputNameFormat, params, now)
}
