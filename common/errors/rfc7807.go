package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ProblemDetails represents RFC 7807 compliant error response
// RFC 7807: Problem Details for HTTP APIs
// swagger:model
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Kind is the ledger error kind
	Kind string `json:"kind"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is a URI reference that identifies the specific occurrence of the problem
	Instance string `json:"instance,omitempty"`
	// Timestamp when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// TraceID for request tracing and debugging
	TraceID string `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents field-specific validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const typeBase = "https://api.tokenledger.io/errors/"

type problemType struct {
	slug   string
	title  string
	status int
}

var problemTypes = map[string]problemType{
	KindInvalidArgument:           {"invalid-argument", "Invalid Argument", http.StatusBadRequest},
	KindInsufficientSupply:        {"insufficient-supply", "Insufficient Supply", http.StatusConflict},
	KindInsufficientFunds:         {"insufficient-funds", "Insufficient Funds", http.StatusPaymentRequired},
	KindInsufficientBalance:       {"insufficient-balance", "Insufficient Balance", http.StatusPaymentRequired},
	KindTokensLocked:              {"tokens-locked", "Tokens Locked", http.StatusForbidden},
	KindSaleInactive:              {"sale-inactive", "Sale Inactive", http.StatusServiceUnavailable},
	KindNotFound:                  {"not-found", "Not Found", http.StatusNotFound},
	KindAlreadyFinalized:          {"already-finalized", "Already Finalized", http.StatusConflict},
	KindExternalLedgerUnavailable: {"external-ledger-unavailable", "External Ledger Unavailable", http.StatusBadGateway},
	KindConflict:                  {"conflict", "Conflict", http.StatusConflict},
	KindUnauthorized:              {"unauthorized", "Unauthorized", http.StatusUnauthorized},
	KindForbidden:                 {"forbidden", "Forbidden", http.StatusForbidden},
	KindRateLimited:               {"rate-limited", "Too Many Requests", http.StatusTooManyRequests},
	KindInternal:                  {"internal-error", "Internal Server Error", http.StatusInternalServerError},
}

// NewProblemDetails creates a new RFC 7807 compliant error for the given kind
func NewProblemDetails(kind, detail, instance string) *ProblemDetails {
	pt, ok := problemTypes[kind]
	if !ok {
		kind = KindInternal
		pt = problemTypes[KindInternal]
	}
	return &ProblemDetails{
		Type:      typeBase + pt.slug,
		Title:     pt.title,
		Status:    pt.status,
		Kind:      kind,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// AddValidationError adds a single validation error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// StatusOf returns the HTTP status a kind maps to.
func StatusOf(kind string) int {
	if pt, ok := problemTypes[kind]; ok {
		return pt.status
	}
	return http.StatusInternalServerError
}

// ToProblemDetails converts Error to RFC 7807 ProblemDetails
func (e *Error) ToProblemDetails(instance string) *ProblemDetails {
	detail := e.Message
	if detail == "" {
		detail = e.Kind
	}
	// internal causes are not leaked to clients
	pd := NewProblemDetails(e.Kind, detail, instance)
	for _, field := range e.Fields {
		pd.AddValidationError(field.Field, field.Message, field.Kind)
	}
	return pd
}
