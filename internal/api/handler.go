// =============================================================================
// Accounting Export Converter - HTTP API
// =============================================================================
//
// Every document type is served on three routes:
//
//   POST /{country}-{source}-{dest}/{currency}/upload-{slug}
//   POST /{country}-{source}-{dest}/{currency}/process-{slug}
//   GET  /{country}-{source}-{dest}/{currency}/download-{slug}?job_id=...
//
// plus a few service endpoints under /api. Handlers translate requests into
// converter.Service calls and map the service's error kinds onto statuses:
//
//   input            400
//   conversion       422
//   output_not_found 404
//   unexpected       500
//   unknown route    404
//
// =============================================================================

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ginjaninja78/accounting-export-converter/internal/converter"
	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/history"
	"github.com/ginjaninja78/accounting-export-converter/internal/ingest"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Operation names used in the last route segment.
const (
	opUpload   = "upload"
	opProcess  = "process"
	opDownload = "download"
)

// JobHeader carries the job id when it is not in the form or query.
const JobHeader = "X-Job-ID"

// =============================================================================
// RESPONSES
// =============================================================================

// UploadResponse is the JSON response of upload-{slug}.
type UploadResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Rows    int    `json:"rows"`
	KeyRows int    `json:"key_rows,omitempty"`
}

// ProcessResponse is the JSON response of process-{slug}.
type ProcessResponse struct {
	Success  bool           `json:"success"`
	JobID    string         `json:"job_id"`
	Rows     int            `json:"rows"`
	Columns  []string       `json:"columns"`
	Dropped  map[string]int `json:"dropped"`
	FileName string         `json:"file_name"`
	Warnings int            `json:"warnings"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

// DocumentType describes one entry of the document type table.
type DocumentType struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Mode     string   `json:"mode"`
	DualFile bool     `json:"dual_file"`
	Routes   []string `json:"routes"`
	Columns  []string `json:"columns"`
}

type processRequest struct {
	JobID    string `json:"job_id" form:"job_id"`
	Currency string `json:"currency" form:"currency"`
}

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Service *converter.Service

	// History records downloads. Nil disables the history endpoints.
	History history.Store

	Logger  converter.Logger
	Version string
}

// NewApp builds the fiber application with every route registered.
func NewApp(h *Handler, bodyLimitMB int) *fiber.App {
	if h.Logger == nil {
		h.Logger = log.Default()
	}
	cfg := fiber.Config{
		AppName:               "accounting-export-converter",
		DisableStartupMessage: true,
		// Params and form values are kept on jobs after the request ends.
		Immutable:    true,
		ErrorHandler: h.handleError,
	}
	if bodyLimitMB > 0 {
		cfg.BodyLimit = bodyLimitMB * 1024 * 1024
	}

	app := fiber.New(cfg)
	app.Use(recover.New())
	app.Use(h.logRequests)
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the routes. Service endpoints come first so the
// generic document type route never shadows them.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/health", h.HandleHealth)
	app.Get("/api/document-types", h.HandleDocumentTypes)
	app.Get("/api/history/:job", h.HandleHistory)
	app.Delete("/api/history/:job/:index", h.HandleDeleteHistory)

	app.Post("/:pair/:currency/:op", h.HandleOperation)
	app.Get("/:pair/:currency/:op", h.HandleOperation)
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.Version,
		"jobs":    h.Service.Jobs().Len(),
	})
}

// HandleDocumentTypes lists the document type table.
func (h *Handler) HandleDocumentTypes(c *fiber.Ctx) error {
	specs := h.Service.Registry().All()
	out := make([]DocumentType, 0, len(specs))
	for _, spec := range specs {
		out = append(out, DocumentType{
			Slug:     spec.Slug,
			Name:     spec.Name,
			Mode:     string(spec.Mode),
			DualFile: spec.IsDualFile(),
			Routes:   spec.Routes,
			Columns:  append(append([]string{}, spec.Columns...), spec.OptionalColumns...),
		})
	}
	return c.JSON(out)
}

// HandleOperation dispatches upload-, process- and download- segments.
func (h *Handler) HandleOperation(c *fiber.Ctx) error {
	op, slug, err := doctype.SplitOperation(c.Params("op"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	route, err := doctype.ParseRoute(c.Params("pair"), c.Params("currency"), slug)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	want := fiber.MethodPost
	if op == opDownload {
		want = fiber.MethodGet
	}
	switch op {
	case opUpload, opProcess, opDownload:
	default:
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown operation %q", op))
	}
	if c.Method() != want {
		return fiber.NewError(fiber.StatusMethodNotAllowed, fmt.Sprintf("%s-%s requires %s", op, slug, want))
	}

	switch op {
	case opUpload:
		return h.upload(c, route)
	case opProcess:
		return h.process(c, route)
	}
	return h.download(c, route)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func (h *Handler) upload(c *fiber.Ctx, route doctype.Route) error {
	files, err := formFiles(c)
	if err != nil {
		return err
	}

	res, err := h.Service.Upload(c.UserContext(), converter.UploadRequest{
		JobID:    jobID(c),
		Route:    route,
		Files:    files,
		Currency: strings.TrimSpace(c.FormValue("currency")),
	})
	if err != nil {
		return err
	}
	return c.JSON(UploadResponse{Success: true, JobID: res.JobID, Rows: res.Rows, KeyRows: res.KeyRows})
}

func (h *Handler) process(c *fiber.Ctx, route doctype.Route) error {
	var req processRequest
	if c.Is("json") && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
	}
	if req.JobID == "" {
		req.JobID = jobID(c)
	}
	if req.Currency == "" {
		req.Currency = strings.TrimSpace(c.FormValue("currency"))
	}

	res, err := h.Service.Convert(c.UserContext(), converter.ConvertRequest{
		JobID:    req.JobID,
		Route:    route,
		Currency: req.Currency,
	})
	if err != nil {
		return err
	}

	dropped := res.Stats.DroppedBy
	if dropped == nil {
		dropped = map[string]int{}
	}
	return c.JSON(ProcessResponse{
		Success:  true,
		JobID:    res.JobID,
		Rows:     res.Stats.RowsWritten,
		Columns:  res.Columns,
		Dropped:  dropped,
		FileName: res.FileName,
		Warnings: res.Stats.ValidationWarnings,
	})
}

func (h *Handler) download(c *fiber.Ctx, route doctype.Route) error {
	id := jobID(c)
	out, err := h.Service.Download(c.UserContext(), id, route)
	if err != nil {
		return err
	}

	if h.History != nil {
		_, err := h.History.Save(c.UserContext(), id, history.Record{
			FileName:     out.FileName,
			Route:        route.String(),
			DocumentType: route.Slug,
			Rows:         out.Rows,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			h.Logger.Warn("Failed to record download", "job", id, "err", err)
		}
	}

	c.Attachment(out.FileName)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(out.Data)
}

// =============================================================================
// HISTORY
// =============================================================================

// HandleHistory lists a job's downloads.
func (h *Handler) HandleHistory(c *fiber.Ctx) error {
	if h.History == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "download history is disabled")
	}
	records, err := h.History.List(c.UserContext(), c.Params("job"))
	if err != nil {
		return err
	}
	if records == nil {
		records = []history.Record{}
	}
	return c.JSON(records)
}

// HandleDeleteHistory removes one download record.
func (h *Handler) HandleDeleteHistory(c *fiber.Ctx) error {
	if h.History == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "download history is disabled")
	}
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "index must be a non-negative integer")
	}
	if err := h.History.Delete(c.UserContext(), c.Params("job"), index); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// =============================================================================
// ERRORS AND MIDDLEWARE
// =============================================================================

// handleError is the app's error handler; every failure leaves as
// ErrorResponse JSON.
func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	status, resp := errorResponse(err)
	if status >= fiber.StatusInternalServerError {
		h.Logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "err", err)
	} else {
		h.Logger.Debug("Request rejected", "method", c.Method(), "path", c.Path(), "status", status, "err", err)
	}
	return c.Status(status).JSON(resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, ErrorResponse{Error: fe.Message}
	}

	if errors.Is(err, doctype.ErrUnknownDocumentType) || errors.Is(err, doctype.ErrInvalidRoute) {
		return fiber.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: string(converter.KindInput)}
	}
	if errors.Is(err, history.ErrRecordNotFound) {
		return fiber.StatusNotFound, ErrorResponse{Error: err.Error()}
	}

	var ce *converter.Error
	if !errors.As(err, &ce) {
		return fiber.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}

	resp := ErrorResponse{Error: ce.Error(), Kind: string(ce.Kind)}
	switch ce.Kind {
	case converter.KindInput:
		return fiber.StatusBadRequest, resp
	case converter.KindConversion:
		return fiber.StatusUnprocessableEntity, resp
	case converter.KindOutputNotFound:
		return fiber.StatusNotFound, resp
	}
	resp.Error = ce.Op + " failed: internal error"
	return fiber.StatusInternalServerError, resp
}

func (h *Handler) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	h.Logger.Debug("Request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"elapsed", time.Since(start),
		"err", err,
	)
	return err
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// jobID reads the job id from the form, the query string or the header.
func jobID(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.FormValue("job_id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("job_id")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Get(JobHeader))
}

// formFiles reads "file", or "key_file" then "value_file". A request with
// none yields an empty slice and the service reports the missing file.
func formFiles(c *fiber.Ctx) ([]ingest.Upload, error) {
	var files []ingest.Upload
	for _, field := range []string{"file", "key_file", "value_file"} {
		fh, err := c.FormFile(field)
		if err != nil {
			continue
		}
		up, err := readFormFile(fh)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("failed to read %s: %v", field, err))
		}
		files = append(files, up)
		if field == "file" {
			break
		}
	}
	return files, nil
}

func readFormFile(fh *multipart.FileHeader) (ingest.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return ingest.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Upload{}, err
	}
	return ingest.Upload{Name: fh.Filename, Data: data}, nil
}
