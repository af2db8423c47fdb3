package auth

import (
	"context"
	"errors"
	"fmt"

	"ispl/internal/gateway"
)

// Kind classifies an AuthError.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindNetworkUnreachable
	KindTimeout
	KindServerError
	KindSessionExpired
	KindNotLoggedIn
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindSessionExpired:
		return "session_expired"
	case KindNotLoggedIn:
		return "not_logged_in"
	}
	return "unknown"
}

// AuthError is a failed login, registration or verification. It never
// clears an existing session by itself.
type AuthError struct {
	Kind   Kind
	Code   int    // HTTP status for KindServerError
	Detail string // server-provided detail, if any
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Kind, e.Err)
	}
	return "auth " + e.Kind.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Message is the user-facing text for the error.
func (e *AuthError) Message() string {
	switch e.Kind {
	case KindInvalidCredentials:
		return "Incorrect email or password."
	case KindNetworkUnreachable:
		return "Cannot reach the server. Check your connection and the API URL."
	case KindTimeout:
		return "The server took too long to respond. Please try again."
	case KindServerError:
		if e.Detail != "" {
			return fmt.Sprintf("Server error (%d): %s", e.Code, e.Detail)
		}
		return fmt.Sprintf("Server error (%d). Please try again later.", e.Code)
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	case KindNotLoggedIn:
		return "You are not logged in."
	}
	return "Authentication failed."
}

// Message returns the user-facing text of err when it is an AuthError, and
// the gateway detail otherwise.
func Message(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Message()
	}
	return gateway.Detail(err)
}

// classify maps a gateway error onto an AuthError. unauthorized is the kind
// to use for a 401, which differs between login and verify.
func classify(err error, unauthorized Kind) *AuthError {
	ae := &AuthError{Err: err, Detail: gateway.Detail(err)}
	var se *gateway.ServerError
	switch {
	case gateway.IsUnauthorized(err):
		ae.Kind = unauthorized
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		ae.Kind = KindTimeout
	case errors.As(err, &se):
		ae.Kind = KindServerError
		ae.Code = se.Status
		ae.Detail = se.Detail
	default:
		ae.Kind = KindNetworkUnreachable
	}
	return ae
}
