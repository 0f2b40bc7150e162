package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/twentyfive/authgate/pkg/errors"
)

// Response defines the base API payload.
type Response struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Success writes a JSON success response with the payload nested under data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// Flat writes a success response whose fields sit next to the success flag,
// e.g. {"success":true,"maskedPhone":"••••••4567"}.
func Flat(c *gin.Context, statusCode int, fields gin.H) {
	body := gin.H{}
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	c.JSON(statusCode, body)
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := Response{
		Success: false,
		Code:    appErr.Code,
		Errors:  appErr.Fields,
	}
	if len(appErr.Fields) == 0 {
		resp.Message = appErr.Message
	}

	c.JSON(status, resp)
}
