package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBackendFailure is the cause of an *Error for a 2xx response whose
// envelope carries "ok": false.
var ErrBackendFailure = errors.New("backend reported failure")

// envelope is the backend's response wrapper. OK is optional; when present
// and false the response is a failure regardless of its status code.
type envelope[T any] struct {
	OK      *bool  `json:"ok"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

func (e envelope[T]) failed(status int) *Error {
	if e.OK == nil || *e.OK {
		return nil
	}
	cause := ErrBackendFailure
	if e.Message != "" {
		cause = fmt.Errorf("%w: %s", ErrBackendFailure, e.Message)
	}
	return newError("backend reported failure", status, cause)
}

// DecodeData extracts the "data" member of a response body into T.
func DecodeData[T any](resp *Response) (T, error) {
	var zero T
	if resp == nil {
		return zero, newError("decode response", 0, errors.New("nil response"))
	}
	var env envelope[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return zero, newError("decode response", resp.StatusCode, err)
	}
	if err := env.failed(resp.StatusCode); err != nil {
		return zero, err
	}
	if env.Data == nil {
		return zero, newError("decode response", resp.StatusCode, errors.New("missing data"))
	}
	return *env.Data, nil
}

// CheckOK validates a response whose data is not needed. A body that is not a
// JSON object is success; an object is checked for "ok": false.
func CheckOK(resp *Response) error {
	if resp == nil {
		return newError("decode response", 0, errors.New("nil response"))
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || body[0] != '{' {
		return nil
	}
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		return newError("decode response", resp.StatusCode, err)
	}
	if err := env.failed(resp.StatusCode); err != nil {
		return err
	}
	return nil
}

// EncodeData wraps v in the request envelope {"data": v}.
func EncodeData(v any) (string, error) {
	b, err := json.Marshal(struct {
		Data any `json:"data"`
	}{Data: v})
	if err != nil {
		return "", newError("encode request", 0, err)
	}
	return string(b), nil
}
