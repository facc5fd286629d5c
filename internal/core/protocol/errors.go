package protocol

import (
	"errors"
	"time"
)

// Core protocol errors
var (
	// Connection errors

	ErrConnectFailed = errors.New("connect failed")
	ErrNotConnected  = errors.New("not connected")
	ErrIOFailure     = errors.New("i/o failure")

	// Framing and decoding errors

	ErrProtocolViolation = errors.New("protocol violation")
	ErrNegativeLength    = errors.New("negative frame length")
	ErrFrameTooLarge     = errors.New("frame too large")
	ErrMalformedHeader   = errors.New("malformed header")

	// Session errors

	ErrTimeout       = errors.New("timeout")
	ErrContextClosed = errors.New("client context is closed")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = 0

	// Connection error codes (1000-1999)

	ErrorCodeConnectFailure ErrorCode = 1001
	ErrorCodeNotConnected   ErrorCode = 1002
	ErrorCodeIOFailure      ErrorCode = 1003

	// Protocol error codes (3000-3999)

	ErrorCodeProtocol ErrorCode = 3001

	// Session error codes (4000-4999)

	ErrorCodeTimeout       ErrorCode = 4001
	ErrorCodeContextClosed ErrorCode = 4002
	ErrorCodeInvalidConfig ErrorCode = 4003

	ErrorCodeUnknown ErrorCode = 9999
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeSuccess:
		return "success"
	case ErrorCodeConnectFailure:
		return "connect_failure"
	case ErrorCodeNotConnected:
		return "not_connected"
	case ErrorCodeIOFailure:
		return "io_failure"
	case ErrorCodeProtocol:
		return "protocol_error"
	case ErrorCodeTimeout:
		return "timeout"
	case ErrorCodeContextClosed:
		return "context_closed"
	case ErrorCodeInvalidConfig:
		return "invalid_config"
	default:
		return "unknown"
	}
}

// Error represents a protocol-specific error with additional context
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Timestamp int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the class sentinel for this error's code, so
// errors.Is(err, ErrIOFailure) holds for every I/O-coded Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := codeSentinel[e.Code]
	return ok && sentinel == target
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now().Unix(),
	}
}

// IsTemporary reports whether reconnecting may clear the error.
func (e *Error) IsTemporary() bool {
	switch e.Code {
	case ErrorCodeConnectFailure, ErrorCodeIOFailure, ErrorCodeTimeout, ErrorCodeNotConnected:
		return true
	default:
		return false
	}
}

var errorCodeMap = map[error]ErrorCode{
	ErrConnectFailed: ErrorCodeConnectFailure,
	ErrNotConnected:  ErrorCodeNotConnected,
	ErrIOFailure:     ErrorCodeIOFailure,

	ErrProtocolViolation: ErrorCodeProtocol,
	ErrNegativeLength:    ErrorCodeProtocol,
	ErrFrameTooLarge:     ErrorCodeProtocol,
	ErrMalformedHeader:   ErrorCodeProtocol,

	ErrTimeout:       ErrorCodeTimeout,
	ErrContextClosed: ErrorCodeContextClosed,
	ErrInvalidConfig: ErrorCodeInvalidConfig,
}

var codeSentinel = map[ErrorCode]error{
	ErrorCodeConnectFailure: ErrConnectFailed,
	ErrorCodeNotConnected:   ErrNotConnected,
	ErrorCodeIOFailure:      ErrIOFailure,
	ErrorCodeProtocol:       ErrProtocolViolation,
	ErrorCodeTimeout:        ErrTimeout,
	ErrorCodeContextClosed:  ErrContextClosed,
	ErrorCodeInvalidConfig:  ErrInvalidConfig,
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}
	if code, exists := errorCodeMap[err]; exists {
		return code
	}

	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknown
}

// WrapError wraps a standard error into a protocol Error
func WrapError(code ErrorCode, err error, message string) *Error {
	return NewProtocolError(code, message, err)
}

// IsIOFailure reports whether err was raised by the byte stream rather than
// by framing or decoding.
func IsIOFailure(err error) bool {
	return GetErrorCode(err) == ErrorCodeIOFailure
}
