package errs

import "fmt"

// ConnectionError indicates the transport to a front could not be
// established or was lost while a request was in flight.
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s", e.Reason)
}

// AuthenticationError covers failed authenticate/login exchanges.
// Never retried automatically: credentials are assumed wrong until
// the configuration changes.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NetworkError is a transient transport-level failure reported by the
// gateway (front inactive, session timeout, read failure).
type NetworkError struct {
	Reason string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.Reason)
}

// ValidationError means the caller's request was malformed. Resolved at
// the call site, never enters the reconnection path.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// ConfigError is fatal and surfaced immediately at construction.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// TimeoutError marks a pending request that was swept without a terminal
// callback. The underlying call is assumed lost, not failed, so the
// caller may retry with a fresh request ID.
type TimeoutError struct {
	RequestID int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %d timed out", e.RequestID)
}

// StateError means the operation is invalid for the current session or
// order state. Surfaced, not retried.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s", e.Reason)
}

// VendorError carries an unclassified gateway error code. The full
// code/message pair is kept for future classification.
type VendorError struct {
	Code    int
	Message string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the error should drive the reconnection
// backoff loop. Only transport-level failures qualify.
func Retryable(err error) bool {
	switch err.(type) {
	case *NetworkError, *TimeoutError, *ConnectionError:
		return true
	}
	return false
}

// FromGatewayCode maps a vendor response code to a typed error. Code 0 is
// success and must not reach here. Unknown codes are surfaced as-is so
// they can be classified later from logs.
func FromGatewayCode(code int, msg string) error {
	switch code {
	case -1:
		return &NetworkError{Reason: "transport failure"}
	case -7:
		return &NetworkError{Reason: "request timed out at front"}
	case -9:
		return &NetworkError{Reason: "front inactive"}
	case -15:
		return &NetworkError{Reason: "session expired"}
	case -2, -3, -4, -5, -6, -8, -10, -13, -14:
		return &AuthenticationError{Reason: msg}
	case -11:
		return &ConfigError{Reason: "invalid broker id"}
	case -12:
		return &ConfigError{Reason: "invalid investor id"}
	default:
		return &VendorError{Code: code, Message: msg}
	}
}
