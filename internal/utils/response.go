// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"device-console/internal/console"
	"device-console/internal/discovery"
	"device-console/internal/exchange"
	"device-console/internal/protocol"
	"device-console/internal/protocol/frame"
	"device-console/internal/sampling"
	"device-console/internal/scheduler"
	"device-console/internal/series"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// errorStatuses maps domain errors to HTTP status codes; first match wins
var errorStatuses = []struct {
	err    error
	status int
}{
	{series.ErrUnknownChannel, http.StatusNotFound},
	{discovery.ErrUnknownScanner, http.StatusNotFound},
	{exchange.ErrNoneAvailable, http.StatusConflict},
	{scheduler.ErrOpen, http.StatusBadGateway},
	{scheduler.ErrStopped, http.StatusServiceUnavailable},
	{scheduler.ErrRunning, http.StatusConflict},
	{protocol.ErrPortRequired, http.StatusBadRequest},
	{protocol.ErrInvalidBaudRate, http.StatusBadRequest},
	{protocol.ErrNotOpen, http.StatusConflict},
	{protocol.ErrWriteQueueFull, http.StatusServiceUnavailable},
	{series.ErrWindowOutOfRange, http.StatusBadRequest},
	{series.ErrNonMonotonic, http.StatusBadRequest},
	{frame.ErrPayloadTooLarge, http.StatusBadRequest},
	{console.ErrEmptyLine, http.StatusBadRequest},
	{console.ErrBadHeader, http.StatusBadRequest},
	{console.ErrByteRange, http.StatusBadRequest},
	{console.ErrScriptLine, http.StatusBadRequest},
	{sampling.ErrUnknownSource, http.StatusBadRequest},
}

// StatusForError returns the HTTP status for err, 500 when it is not a known domain error
func StatusForError(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}
	if err != nil {
		apiError.Details = err.Error()
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// DomainErrorResponse sends err with the status StatusForError picks
func DomainErrorResponse(c *gin.Context, message string, err error) {
	ErrorResponse(c, StatusForError(err), message, err)
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// getErrorCode returns error code based on HTTP status
func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusBadGateway:
		return "DEVICE_UNAVAILABLE"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
