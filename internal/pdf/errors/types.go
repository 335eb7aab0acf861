package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"
)

// ProcessingError is a categorized failure raised somewhere in the form
// detection pipeline. Every recoverable error carries the field id or the
// detector it belongs to so a run can be diagnosed from its report alone.
type ProcessingError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	FieldID     string    `json:"field_id,omitempty"`
	Detector    string    `json:"detector,omitempty"`
	PageIndex   int       `json:"page_index"`
	FilePath    string    `json:"file_path,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`

	cause error
}

// ErrorType represents the categories of pipeline failures
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeFormat means the input could not be opened or parsed.
	ErrorTypeFormat
	// ErrorTypeDetector means one detection strategy failed for a page.
	ErrorTypeDetector
	// ErrorTypeClassificationFallback records that the rule-based
	// classifier answered instead of the statistical model.
	ErrorTypeClassificationFallback
	// ErrorTypeReconciliation means a candidate rectangle was unusable
	// after the transform into page space.
	ErrorTypeReconciliation
	// ErrorTypeWrite means a value could not be applied to one field.
	ErrorTypeWrite
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Error implements the error interface
func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	switch {
	case e.FieldID != "":
		msg += fmt.Sprintf(" (field %s)", e.FieldID)
	case e.Detector != "":
		msg += fmt.Sprintf(" (detector %s, page %d)", e.Detector, e.PageIndex)
	}
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *ProcessingError) Unwrap() error {
	return e.cause
}

// Is matches any ProcessingError of the same type, so callers can write
// errors.Is(err, errors.ErrFormat).
func (e *ProcessingError) Is(target error) bool {
	var t *ProcessingError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrFormat         = &ProcessingError{Type: ErrorTypeFormat}
	ErrDetector       = &ProcessingError{Type: ErrorTypeDetector}
	ErrReconciliation = &ProcessingError{Type: ErrorTypeReconciliation}
	ErrWrite          = &ProcessingError{Type: ErrorTypeWrite}
)

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeFormat:
		return "FORMAT_ERROR"
	case ErrorTypeDetector:
		return "DETECTOR_ERROR"
	case ErrorTypeClassificationFallback:
		return "CLASSIFICATION_FALLBACK_USED"
	case ErrorTypeReconciliation:
		return "RECONCILIATION_ERROR"
	case ErrorTypeWrite:
		return "WRITE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the type by name in reports
func (et ErrorType) MarshalText() ([]byte, error) {
	return []byte(et.String()), nil
}

// UnmarshalText is the inverse of MarshalText; unknown names decode to
// ErrorTypeUnknown.
func (et *ErrorType) UnmarshalText(text []byte) error {
	*et = ErrorTypeUnknown
	for t := ErrorTypeFormat; t <= ErrorTypeWrite; t++ {
		if t.String() == string(text) {
			*et = t
			break
		}
	}
	return nil
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypeFormat:
		return SeverityFatal
	case ErrorTypeDetector, ErrorTypeWrite:
		return SeverityError
	case ErrorTypeReconciliation:
		return SeverityWarning
	case ErrorTypeClassificationFallback:
		return SeverityInfo
	default:
		return SeverityError
	}
}

// IsRecoverable reports whether processing continues after this error type.
// Only format errors abort a run.
func (et ErrorType) IsRecoverable() bool {
	return et != ErrorTypeFormat && et != ErrorTypeUnknown
}

// NewProcessingError creates a new error of the given type
func NewProcessingError(errorType ErrorType, message string) *ProcessingError {
	return &ProcessingError{
		Type:        errorType,
		Message:     message,
		PageIndex:   -1,
		Recoverable: errorType.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// WrapError wraps a standard error, keeping it reachable through Unwrap
func WrapError(errorType ErrorType, message string, err error) *ProcessingError {
	e := NewProcessingError(errorType, message)
	e.cause = err
	return e
}

// NewFormatError reports an input that cannot be opened or parsed.
func NewFormatError(path string, err error) *ProcessingError {
	return WrapError(ErrorTypeFormat, "cannot open document", err).WithFile(path)
}

// NewDetectorError reports the failure of one strategy on one page.
func NewDetectorError(detector string, pageIndex int, err error) *ProcessingError {
	return WrapError(ErrorTypeDetector, "detector failed", err).
		WithDetector(detector).
		WithPage(pageIndex)
}

// NewReconciliationError reports a candidate dropped during reconciliation.
func NewReconciliationError(fieldID string, pageIndex int, reason string) *ProcessingError {
	return NewProcessingError(ErrorTypeReconciliation, "candidate dropped").
		WithField(fieldID).
		WithPage(pageIndex).
		WithContext(reason)
}

// NewWriteError reports a value that could not be applied to a field.
func NewWriteError(fieldID string, err error) *ProcessingError {
	return WrapError(ErrorTypeWrite, "value not applied", err).WithField(fieldID)
}

// NewFallbackNotice records that document classification used the keyword
// fallback. It is informational and never returned as an error.
func NewFallbackNotice(reason string) *ProcessingError {
	return NewProcessingError(ErrorTypeClassificationFallback, "keyword fallback used").
		WithDetector("document_classifier").
		WithContext(reason)
}

// WithContext adds context to an existing error
func (e *ProcessingError) WithContext(context string) *ProcessingError {
	e.Context = context
	return e
}

// WithField attributes the error to a field id
func (e *ProcessingError) WithField(fieldID string) *ProcessingError {
	e.FieldID = fieldID
	return e
}

// WithDetector attributes the error to a detection strategy
func (e *ProcessingError) WithDetector(name string) *ProcessingError {
	e.Detector = name
	return e
}

// WithFile adds file path information to an existing error
func (e *ProcessingError) WithFile(filePath string) *ProcessingError {
	e.FilePath = filePath
	return e
}

// WithPage adds the zero-based page index
func (e *ProcessingError) WithPage(pageIndex int) *ProcessingError {
	e.PageIndex = pageIndex
	return e
}

// GetSeverity returns the severity of this specific error
func (e *ProcessingError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// IsFormatError reports whether err is, or wraps, a FormatError
func IsFormatError(err error) bool {
	return stderrors.Is(err, ErrFormat)
}

// IsDetectorError reports whether err is, or wraps, a DetectorError
func IsDetectorError(err error) bool {
	return stderrors.Is(err, ErrDetector)
}

// IsWriteError reports whether err is, or wraps, a WriteError
func IsWriteError(err error) bool {
	return stderrors.Is(err, ErrWrite)
}

// Report collects the recoverable errors and notices of one processing
// run. It is safe for concurrent use by per-page workers.
type Report struct {
	mu       sync.Mutex
	Errors   []*ProcessingError `json:"errors"`
	Notices  []*ProcessingError `json:"notices"`
	FilePath string             `json:"file_path,omitempty"`
}

// NewReport creates an empty report for one document
func NewReport(filePath string) *Report {
	return &Report{
		Errors:   make([]*ProcessingError, 0),
		Notices:  make([]*ProcessingError, 0),
		FilePath: filePath,
	}
}

// Add files an error as an error or a notice based on its severity
func (r *Report) Add(err *ProcessingError) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err.FilePath == "" && r.FilePath != "" {
		err.FilePath = r.FilePath
	}
	if err.GetSeverity() == SeverityInfo {
		r.Notices = append(r.Notices, err)
		return
	}
	r.Errors = append(r.Errors, err)
}

// AddAll files each error; non-ProcessingErrors are wrapped as unknown
func (r *Report) AddAll(errs []error) {
	for _, err := range errs {
		var pe *ProcessingError
		if stderrors.As(err, &pe) {
			r.Add(pe)
			continue
		}
		r.Add(WrapError(ErrorTypeUnknown, "unexpected error", err))
	}
}

// ByType returns the collected errors and notices of one type
func (r *Report) ByType(t ErrorType) []*ProcessingError {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ProcessingError, 0)
	for _, e := range r.Errors {
		if e.Type == t {
			out = append(out, e)
		}
	}
	for _, e := range r.Notices {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// FallbackUsed reports whether document classification fell back to rules
func (r *Report) FallbackUsed() bool {
	return len(r.ByType(ErrorTypeClassificationFallback)) > 0
}

// Count returns the number of errors and notices
func (r *Report) Count() (errors, notices int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors), len(r.Notices)
}

// Summary returns a text summary of the report
func (r *Report) Summary() string {
	errorCount, noticeCount := r.Count()
	if errorCount == 0 && noticeCount == 0 {
		return "No errors or notices"
	}
	return fmt.Sprintf("Found %d error(s) and %d notice(s)", errorCount, noticeCount)
}
