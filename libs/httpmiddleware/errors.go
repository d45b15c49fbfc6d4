package httpmiddleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the structured error response every service returns.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// Error writes the standard error body and aborts the request.
func Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Error:     code,
		Message:   message,
		RequestID: RequestIDFromContext(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Path:      c.Request.URL.Path,
	})
}
