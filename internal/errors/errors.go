package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds for the Discord OAuth2 flow
var (
	// ErrConfig marks malformed or missing settings
	ErrConfig = errors.New("invalid configuration")
	// ErrValidation marks a missing or invalid request field
	ErrValidation = errors.New("validation failed")
	// ErrUpstream marks a failure reported by the Discord API
	ErrUpstream = errors.New("upstream error")
	// ErrCSRF marks a csrf token mismatch
	ErrCSRF = errors.New("csrf token mismatch")
	// ErrDecoding marks a state blob that cannot be decrypted
	ErrDecoding = errors.New("decoding error")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// FlowError is the uniform {code, message} result of every rejected operation.
type FlowError struct {
	Kind    error  `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *FlowError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WithCause attaches the underlying error and returns e.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Err = err
	return e
}

func Config(message string) *FlowError {
	return &FlowError{Kind: ErrConfig, Code: http.StatusInternalServerError, Message: message}
}

// BadRequest is a validation failure that is not an authentication concern
func BadRequest(message string) *FlowError {
	return &FlowError{Kind: ErrValidation, Code: http.StatusBadRequest, Message: message}
}

// Unauthorized is a validation failure on an authentication field
func Unauthorized(message string) *FlowError {
	return &FlowError{Kind: ErrValidation, Code: http.StatusUnauthorized, Message: message}
}

func CSRF(message string) *FlowError {
	return &FlowError{Kind: ErrCSRF, Code: http.StatusUnauthorized, Message: message}
}

// Upstream wraps a Discord API failure, forwarding its status code.
func Upstream(code int, message string, cause error) *FlowError {
	if code < 400 {
		code = http.StatusInternalServerError
	}
	return &FlowError{Kind: ErrUpstream, Code: code, Message: message, Err: cause}
}

// AsFlowError converts any error into a FlowError. Errors that are not already
// a FlowError become a 500 upstream failure carrying err.Error() as message.
func AsFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return &FlowError{Kind: ErrUpstream, Code: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
