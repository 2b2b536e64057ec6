package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Transform error types carried by TransformError.Type.
const (
	TypeParse              = "parse_error"
	TypeValidation         = "validation_error"
	TypeMapping            = "mapping_error"
	TypeSSE                = "sse_error"
	TypeInvariantViolation = "invariant_violation"
	TypeMissingRequired    = "missing_required"
	TypeTypeMismatch       = "type_mismatch"
)

// ErrUnknownChain is wrapped by ConfigurationError when a chain name has no protocol.
var ErrUnknownChain = errors.New("unknown transformer chain")

// ParseError reports an inbound body that cannot be normalized.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Path != "" {
		msg += " at " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a rendered upstream request that fails a structural check.
// Kind is one of missing_required, type_mismatch or invariant_violation.
type ValidationError struct {
	Kind    string
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s) at %s: %s", e.Kind, e.Path, e.Message)
}

// TransformError is the generic pipeline stage failure.
type TransformError struct {
	Type    string
	Step    string
	Message string
	Details map[string]any
	Err     error
}

func (e *TransformError) Error() string {
	msg := e.Type
	if e.Step != "" {
		msg += " in step " + e.Step
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

// ConfigurationError reports an unusable supplier or chain configuration.
// It is always fatal and never downgraded to passthrough.
type ConfigurationError struct {
	Supplier string
	Chain    string
	Message  string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Supplier != "" {
		msg += " for supplier " + e.Supplier
	}
	if e.Chain != "" {
		msg += fmt.Sprintf(" (chain %q)", e.Chain)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Wrap turns an arbitrary stage error into a TransformError bound to step.
// Typed errors from this package are returned unchanged.
func Wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	var (
		pe *ParseError
		ve *ValidationError
		te *TransformError
		ce *ConfigurationError
	)
	switch {
	case errors.As(err, &pe), errors.As(err, &ve), errors.As(err, &ce):
		return err
	case errors.As(err, &te):
		if te.Step == "" {
			te.Step = step
		}
		return err
	}
	return &TransformError{Type: TypeMapping, Step: step, Message: err.Error(), Err: err}
}

// HTTPStatus maps an engine error to the status a gateway should return.
func HTTPStatus(err error) int {
	var (
		pe *ParseError
		ve *ValidationError
		ce *ConfigurationError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

// ClientType maps an engine error to the Anthropic error envelope type.
func ClientType(err error) string {
	switch HTTPStatus(err) {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "invalid_request_error"
	}
	return "api_error"
}
