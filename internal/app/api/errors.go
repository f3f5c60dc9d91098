package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"logview/internal/app/errors"
)

const maxErrorBody = 64 * 1024

// HTTPError is returned for any non-success response of the platform API
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}

	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// errorBody covers the error shapes returned by both API generations
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Type    string `json:"type"`
}

// NewHTTPError reads the response body and extracts a message from JSON or plain text
func NewHTTPError(resp *http.Response) *HTTPError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    parseErrorMessage(resp.Header.Get("Content-Type"), data),
	}
}

func parseErrorMessage(contentType string, data []byte) string {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return ""
	}

	if strings.Contains(contentType, "json") || strings.HasPrefix(text, "{") {
		var body errorBody
		if err := json.Unmarshal(data, &body); err == nil {
			switch {
			case body.Message != "":
				return body.Message
			case body.Error != "":
				return body.Error
			case body.Type != "":
				return body.Type
			}
		}
	}

	return text
}

// StatusCode extracts the HTTP status of an API error, or 0
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}

// IsNotFound reports whether err is an HTTP 404 from the API
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
