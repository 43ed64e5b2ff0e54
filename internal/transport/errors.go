package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"paykit/pkg/platform/sentinel"
)

// apiError is the error body shape the backend returns for non-2xx responses.
type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (a apiError) text() string {
	switch {
	case a.Message != "":
		return a.Message
	case a.Error != "":
		return a.Error
	case len(a.Errors) > 0 && a.Errors[0].Detail != "":
		return a.Errors[0].Detail
	}
	return ""
}

func statusError(status int, body []byte) *Error {
	detail := http.StatusText(status)
	var parsed apiError
	if json.Unmarshal(body, &parsed) == nil && parsed.text() != "" {
		detail = parsed.text()
	} else if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		detail = s
	}

	cause := fmt.Errorf("http status %d", status)
	if status >= 500 || status == http.StatusTooManyRequests {
		cause = fmt.Errorf("%w: http status %d", sentinel.ErrUnavailable, status)
	}
	return newError(fmt.Sprintf("backend returned %d: %s", status, detail), status, cause)
}
