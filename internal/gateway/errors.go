package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Match with errors.Is against any error returned by a Caller.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrTimeout            = errors.New("request timed out")
	ErrServer             = errors.New("server error")
)

// ServerError is a non-2xx, non-401 response.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Detail)
}

// Is lets errors.Is(err, ErrServer) match any ServerError.
func (e *ServerError) Is(target error) bool { return target == ErrServer }

// RequestError annotates a failed call with the request that produced it.
type RequestError struct {
	Method string
	Path   string
	Status int // 0 when no response was received
	Detail string
	Err    error // one of the sentinels, or a *ServerError
	Cause  error // underlying transport error, if any
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// IsUnauthorized reports whether err is (or wraps) ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// Detail returns the best user-facing description of err: the server's
// structured detail when one was sent, otherwise the error text.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var re *RequestError
	if errors.As(err, &re) && re.Detail != "" {
		return re.Detail
	}
	var se *ServerError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "authentication required"
	case errors.Is(err, ErrTimeout):
		return "the request timed out"
	case errors.Is(err, ErrNetworkUnreachable):
		return "cannot reach the server"
	}
	return err.Error()
}

// extractDetail pulls "detail" (FastAPI) or "message" out of an error body,
// falling back to a generic message when the body has neither.
func extractDetail(body []byte, status int) string {
	if d, ok := structuredDetail(body); ok {
		return d
	}
	return fmt.Sprintf("server error: %d", status)
}

// structuredDetail parses an error body. Validation errors carry detail as a
// list of {msg, loc}; their messages are joined.
func structuredDetail(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}

	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil && s != "" {
			return s, true
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; "), true
			}
		}
	}
	if payload.Message != "" {
		return payload.Message, true
	}
	return "", false
}
