package errors

import (
	"github.com/gin-gonic/gin"
)

// HandleError converts any error into an RFC 7807 response.
func HandleError(c *gin.Context, err error) {
	instance := c.Request.URL.Path
	var problemDetails *ProblemDetails

	var pd *ProblemDetails
	var e *Error
	switch {
	case As(err, &pd):
		problemDetails = pd
	case As(err, &e):
		problemDetails = e.ToProblemDetails(instance)
	default:
		problemDetails = NewProblemDetails(KindInternal, "internal server error", instance)
	}

	if traceID := getTraceID(c); traceID != "" {
		problemDetails.WithTraceID(traceID)
	}
	if problemDetails.Status >= 500 {
		_ = c.Error(err)
	}

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problemDetails.Status, problemDetails)
}

// AbortBadRequest writes an InvalidArgument problem
func AbortBadRequest(c *gin.Context, detail string, fieldErrors ...FieldError) {
	HandleError(c, InvalidArgument.Explain("%s", detail).WithFields(fieldErrors))
}

// AbortUnauthorized writes an Unauthorized problem
func AbortUnauthorized(c *gin.Context, detail string) {
	HandleError(c, Unauthorized.Explain("%s", detail))
}

// AbortForbidden writes a Forbidden problem
func AbortForbidden(c *gin.Context, detail string) {
	HandleError(c, Forbidden.Explain("%s", detail))
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}
