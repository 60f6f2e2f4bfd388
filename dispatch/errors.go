package dispatch

import "errors"

var (
	// ErrUnknownOperation is reported when no handler is registered under a name.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidArguments is wrapped by handlers rejecting their arguments.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidTool is returned when a registration has no name or handler.
	ErrInvalidTool = errors.New("invalid tool registration")
)

// ErrorKind classifies an error response. It is not part of the envelope.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindUnknownOperation ErrorKind = "unknown_operation"
	ErrorKindInvalidArguments ErrorKind = "invalid_arguments"
	ErrorKindHandlerError     ErrorKind = "handler_error"
	ErrorKindHandlerPanic     ErrorKind = "handler_panic"
)
