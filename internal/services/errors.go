package services

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrGateway           = errors.New("payment gateway error")
	ErrUnauthorized      = errors.New("unauthorized")
)

// GatewayError wraps a failure reported by the payment gateway. Its message is
// the operation prefix followed by the gateway's own message, and it matches
// ErrGateway with errors.Is.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}
