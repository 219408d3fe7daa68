package errors

import (
	"encoding/json"
	"errors"

	"github.com/schemecore/schemecore/internal/ast"
)

// schemaTag is the fixed schema identifier stamped onto every Report so
// downstream tooling that reads a Report's JSON can recognize the shape
// without sniffing fields.
const schemaTag = "schemecore.error/v1"

// Fix is an optional suggested remediation attached to a Report. Builders
// populate it only when the phase that raised the error can propose a
// concrete textual fix (e.g. "did you mean %s?" from the macro expander).
type Fix struct {
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Report is the canonical structured error type for the compiler pipeline.
// Every phase (A-I) that can fail returns a *Report, which call sites wrap
// with WrapReport so it survives errors.As unwrapping.
type Report struct {
	Schema  string         `json:"schema"`          // always schemaTag
	Code    string         `json:"code"`             // error code (MOD001, EXP003, ...)
	Kind    Kind           `json:"kind"`              // taxonomy kind from spec section 7
	Phase   string         `json:"phase"`            // phase: "module", "expand", "analysis", ...
	Message string         `json:"message"`          // human-readable message
	Span    *ast.Span      `json:"span,omitempty"`   // source location, if any
	Trace   []ast.Span     `json:"trace,omitempty"`  // back-trace of enclosing spans
	Data    map[string]any `json:"data,omitempty"`   // structured data (sorted keys on marshal)
	Fix     *Fix           `json:"fix,omitempty"`    // suggested fix, if any
}

// ReportError wraps a Report as an error so it can travel through ordinary
// Go error-returning signatures and still be recovered with AsReport.
type ReportError struct {
	Rep *Report
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	if e.Rep == nil {
		return "unknown error"
	}
	return e.Rep.Code + ": " + e.Rep.Message
}

// AsReport attempts to extract a Report from an error chain.
func AsReport(err error) (*Report, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Rep, true
	}
	return nil, false
}

// WrapReport wraps a Report as a ReportError. Call sites should return
// errors.WrapReport(report) to preserve the structured form.
func WrapReport(r *Report) error {
	if r == nil {
		return nil
	}
	return &ReportError{Rep: r}
}

// ToJSON converts a Report to JSON, sorted keys per encoding/json's default
// struct-field ordering (declaration order, which we keep stable above).
func (r *Report) ToJSON(compact bool) (string, error) {
	var data []byte
	var err error

	if compact {
		data, err = json.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New builds a Report from a registered error code, looking up its phase
// and taxonomy kind from Registry.
func New(code, message string, span *ast.Span) *Report {
	info, ok := Info(code)
	r := &Report{
		Schema:  schemaTag,
		Code:    code,
		Message: message,
		Span:    span,
	}
	if ok {
		r.Phase = info.Phase
		r.Kind = info.Kind
	} else {
		r.Kind = KindGeneric
	}
	return r
}

// NewGeneric creates an unclassified error report, used when a phase hits an
// invariant violation with no dedicated code (GEN999).
func NewGeneric(phase string, err error) *Report {
	return &Report{
		Schema:  schemaTag,
		Code:    GEN999,
		Kind:    KindGeneric,
		Phase:   phase,
		Message: err.Error(),
		Data:    map[string]any{},
	}
}
