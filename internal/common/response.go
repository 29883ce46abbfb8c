package common

import (
	"net/http"

	"github.com/goccy/go-json"
)

// ErrorBody is the coded error payload used by infrastructure routes (rate limiting, unknown routes).
// Payment endpoints keep the flat {"error": "..."} shape that Razorpay integrations expect.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the coded error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// NotFound renders a JSON 404 for unmatched routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	JSONError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
}

// MethodNotAllowed renders a JSON 405 for known routes called with the wrong verb.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
}
