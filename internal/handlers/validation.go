package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/twentyfive/authgate/pkg/errors"
	"github.com/twentyfive/authgate/pkg/response"
	appValidator "github.com/twentyfive/authgate/pkg/validator"
)

// fieldMessages overrides the generic validator message for a field, keyed
// by json field name. Used where clients already depend on a wording.
type fieldMessages map[string]string

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T, overrides fieldMessages) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationError(err, overrides))
		return false
	}

	return true
}

func validationError(err error, overrides fieldMessages) *appErrors.AppError {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return appErrors.NewBadRequest("invalid request payload")
	}

	fields := ve.Fields()
	for field, msg := range overrides {
		if _, failed := fields[field]; failed {
			fields[field] = []string{msg}
		}
	}
	return appErrors.NewValidation(fields)
}

// sanitizeRedirect keeps same-origin relative targets only.
func sanitizeRedirect(input, fallback string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fallback
	}

	if strings.ContainsAny(trimmed, "\r\n\\") {
		return fallback
	}

	if strings.HasPrefix(trimmed, "/") && !strings.HasPrefix(trimmed, "//") {
		return trimmed
	}

	return fallback
}
