// Package responses provides the success envelope used by every API handler.
// Failures are written as RFC 7807 problems by common/errors.
package responses

import (
	"net/http"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// StandardResponse represents a standard API response format
type StandardResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// ListResponse wraps a slice with its length.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

// Success sends a 200 response
func Success(c *gin.Context, data any) {
	write(c, http.StatusOK, data)
}

// Created sends a 201 Created response
func Created(c *gin.Context, data any) {
	write(c, http.StatusCreated, data)
}

// List sends a 200 response with items and their count. A nil slice is
// rendered as an empty list.
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	write(c, http.StatusOK, ListResponse{Items: items, Count: len(items)})
}

// Error writes err as a problem document.
func Error(c *gin.Context, err error) {
	errors.HandleError(c, err)
}

func write(c *gin.Context, status int, data any) {
	c.JSON(status, StandardResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   TraceID(c),
	})
}

// TraceID returns the id of the active request span, if any.
func TraceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return c.GetString("trace_id")
}
