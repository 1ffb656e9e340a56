package virtfusion

import (
	"errors"
	"fmt"
)

var (
	// ErrServerNotFound is returned when a server ID does not exist in the
	// control plane. FetchServer, FetchVNC, FetchTraffic, and ResetPassword
	// wrap this sentinel.
	ErrServerNotFound = errors.New("server not found")

	// ErrTemplateNotFound is returned by FetchTemplate when the template ID
	// cannot be located.
	ErrTemplateNotFound = errors.New("os template not found")
)

// APIError carries the HTTP status and extracted message of a non-2xx
// control plane response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// ErrorStatus returns the HTTP status embedded in err, or 0 when err does
// not wrap an APIError.
func ErrorStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
