// Package apiutil holds the gin plumbing shared by the HTTP handlers.
package apiutil

import (
	"strconv"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/pkg/validation"
	"github.com/gin-gonic/gin"
)

// BindJSON decodes the request body into req and validates it. On failure it
// writes an InvalidArgument problem and returns false.
func BindJSON(c *gin.Context, v *validation.Validator, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		errors.AbortBadRequest(c, "malformed request body")
		return false
	}
	if err := v.ValidateStruct(req); err != nil {
		var verrs validation.ValidationErrors
		if !errors.As(err, &verrs) {
			errors.AbortBadRequest(c, err.Error())
			return false
		}
		fields := make([]errors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, errors.NewFieldError(fe.Tag, fe.Field, fe.Message))
		}
		errors.AbortBadRequest(c, verrs.Error(), fields...)
		return false
	}
	return true
}

// QueryInt reads an integer query parameter, falling back to def when it is
// absent. A malformed value aborts with InvalidArgument.
func QueryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errors.AbortBadRequest(c, name+" must be an integer",
			errors.NewFieldError("integer", name, "not an integer"))
		return 0, false
	}
	return n, true
}
