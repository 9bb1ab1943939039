package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ticketly/internal/apperror"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps the error's kind to an HTTP status and emits a
// structured body with a stable kind string. Internal and upstream
// failures are masked behind a generic retryable message.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)

	message := err.Error()
	if kind == apperror.KindInternal {
		message = "internal error, please retry"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success:   false,
		Message:   message,
		Error:     message,
		ErrorKind: kind.String(),
		Timestamp: time.Now(),
	})
}
