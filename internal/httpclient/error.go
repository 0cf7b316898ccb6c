package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrResponseTooLarge = errors.New("response body too large")

// NetworkError is a transport-level failure: the request never produced
// an HTTP response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteRejection is a non-2xx response. Body is the remote payload, unmodified.
type RemoteRejection struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *RemoteRejection) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("remote rejected request (%d): %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("remote rejected request (%d): %s", e.StatusCode, string(e.Body))
}

// Message extracts the human readable reason from {"error": ...} or
// {"detail": ...} payloads. It returns "" for anything else.
func (e *RemoteRejection) Message() string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Detail
}
