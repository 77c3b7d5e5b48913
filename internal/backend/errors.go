package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is returned when the backend rejects the bearer token.
var ErrUnauthorized = errors.New("backend: authentication rejected")

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status of err if it is an *APIError, 0 otherwise.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func newAPIError(status int, body []byte) *APIError {
	msg := fmt.Sprintf("HTTP error! status: %d", status)

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 && !strings.HasPrefix(text, "<") {
		msg = text
	}

	return &APIError{Status: status, Message: msg}
}
