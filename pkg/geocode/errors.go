package geocode

import (
	"fmt"
	"net/http"
)

// APIError is a failed reply from the geocoding service: either a non-200
// HTTP status or a non-OK status field in the body.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Status == "":
		return fmt.Sprintf("geocode: google returned status %d", e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("geocode: google status %s: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("geocode: google status %s", e.Status)
	}
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return true
	case "":
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}
