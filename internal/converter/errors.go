package converter

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ginjaninja78/accounting-export-converter/internal/doctype"
	"github.com/ginjaninja78/accounting-export-converter/internal/ingest"
	"github.com/ginjaninja78/accounting-export-converter/internal/rules"
	"github.com/ginjaninja78/accounting-export-converter/internal/session"
	"github.com/ginjaninja78/accounting-export-converter/internal/types"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Kind classifies a pipeline failure for the caller.
type Kind string

const (
	// KindInput: no file, empty dataset, missing sheet, undecodable bytes,
	// unknown job or route.
	KindInput Kind = "input"

	// KindConversion: nothing uploaded, no row survived the rules, or the
	// upload was replaced while converting.
	KindConversion Kind = "conversion"

	// KindOutputNotFound: download before a successful convert.
	KindOutputNotFound Kind = "output_not_found"

	// KindUnexpected: anything else, panics included.
	KindUnexpected Kind = "unexpected"
)

// Pipeline operations.
const (
	OpUpload   = "upload"
	OpConvert  = "convert"
	OpDownload = "download"
)

// Error is returned by every Service method.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnexpected when err does not come
// from the pipeline.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsInputError reports whether err is an input error.
func IsInputError(err error) bool { return err != nil && KindOf(err) == KindInput }

// IsConversionError reports whether err is a conversion error.
func IsConversionError(err error) bool { return err != nil && KindOf(err) == KindConversion }

// IsOutputNotFound reports whether err is an output-not-found error.
func IsOutputNotFound(err error) bool { return err != nil && KindOf(err) == KindOutputNotFound }

// IsUnexpected reports whether err is an unexpected error.
func IsUnexpected(err error) bool { return err != nil && KindOf(err) == KindUnexpected }

// classify wraps err with the kind its cause implies for op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kindFor(op, err), Op: op, Err: err}
}

func kindFor(op string, err error) Kind {
	switch {
	case errors.Is(err, session.ErrNoOutput):
		return KindOutputNotFound
	case errors.Is(err, session.ErrJobNotFound), errors.Is(err, session.ErrRouteMismatch):
		switch op {
		case OpDownload:
			return KindOutputNotFound
		case OpConvert:
			return KindConversion
		}
		return KindInput
	case errors.Is(err, session.ErrNoDataset),
		errors.Is(err, session.ErrInputReplaced),
		errors.Is(err, rules.ErrNoRowsSurvived):
		return KindConversion
	case errors.Is(err, ingest.ErrNoFile),
		errors.Is(err, ingest.ErrUnreadableFile),
		errors.Is(err, ingest.ErrSheetNotFound),
		errors.Is(err, types.ErrEmptyDataset),
		errors.Is(err, doctype.ErrUnknownDocumentType),
		errors.Is(err, doctype.ErrInvalidRoute):
		return KindInput
	}
	return KindUnexpected
}

// recoverPanic turns a panic in op into an unexpected error. Use as
// `defer recoverPanic(op, logger, &err)`.
func recoverPanic(op string, logger Logger, err *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("recovered from panic", "op", op, "panic", r, "stack", string(debug.Stack()))
	*err = &Error{Kind: KindUnexpected, Op: op, Err: fmt.Errorf("internal error: %v", r)}
}
