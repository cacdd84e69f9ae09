package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// AppError implements the error interface and provides structured error handling
type AppError struct {
	Code       Code      `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode"`
	Context    string    `json:"context,omitempty"`
	TraceID    string    `json:"traceId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	cause      error     // unexported to maintain encapsulation
	stack      []uintptr // stack trace
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is implements errors.Is interface for error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithTraceID sets the trace ID for distributed tracing
func (e *AppError) WithTraceID(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// ToLog serializes the error for logging with stack trace
func (e *AppError) ToLog() map[string]any {
	log := map[string]any{
		"code":      e.Code,
		"message":   e.Message,
		"class":     Classify(e).String(),
		"timestamp": e.Timestamp.Format(time.RFC3339),
	}

	if e.Context != "" {
		log["context"] = e.Context
	}

	if e.TraceID != "" {
		log["traceId"] = e.TraceID
	}

	if e.cause != nil {
		log["cause"] = e.cause.Error()
	}

	if len(e.stack) > 0 {
		log["stack"] = e.formatStack()
	}

	return log
}

// formatStack formats the stack trace
func (e *AppError) formatStack() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("\n\t%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// captureStack captures the current stack trace
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// New creates a new AppError with the given code and options
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:       code,
		Message:    messages[code],
		StatusCode: getDefaultStatusCode(code),
		Timestamp:  time.Now(),
		stack:      captureStack(),
	}

	for _, opt := range opts {
		opt(err)
	}

	// If message wasn't set by options and isn't in messages map, use code as message
	if err.Message == "" {
		err.Message = string(code)
	}

	return err
}

// Option is a functional option for AppError
type Option func(*AppError)

// WithMessage sets a custom message
func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

// WithContext adds context information
func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithStatusCode sets the upstream HTTP status code
func WithStatusCode(statusCode int) Option {
	return func(e *AppError) {
		e.StatusCode = statusCode
	}
}

// WithCause wraps an underlying error
func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// Factory methods for common error types

// NotFound creates a not found error
func NotFound(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusNotFound))
}

// Validation creates a validation error
func Validation(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusBadRequest))
}

// Internal creates an internal error
func Internal(code Code, context string, cause error) *AppError {
	return New(code, WithContext(context), WithCause(cause), WithStatusCode(http.StatusInternalServerError))
}

// Network creates a network-class exchange error.
func Network(context string, cause error) *AppError {
	return New(CodeNetworkError, WithContext(context), WithCause(cause), WithStatusCode(http.StatusServiceUnavailable))
}

// Exchange creates an exchange-class error carrying the upstream status.
func Exchange(context string, statusCode int, cause error) *AppError {
	return New(CodeExchangeError, WithContext(context), WithCause(cause), WithStatusCode(statusCode))
}

// Wrap wraps a standard error into AppError
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, return it
	var appErr *AppError
	if errors.As(err, &appErr) {
		if context != "" && appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}

	return Internal(code, context, err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts the error code from an error
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &AppError{Code: code})
}

// Class groups codes by how the run loop reacts to them.
type Class int

const (
	ClassOther Class = iota
	ClassNetwork
	ClassExchange
	ClassNoOpportunity
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassExchange:
		return "exchange"
	case ClassNoOpportunity:
		return "no_opportunity"
	default:
		return "other"
	}
}

func classOf(code Code) Class {
	switch code {
	case CodeNetworkError, CodeServiceTimeout, CodeServiceUnavailable, CodeRateLimitExceeded,
		CodeCircuitOpen, CodeWebSocketConnectionError, CodeWebSocketClosed, CodeWebSocketSendError,
		CodeOrderbookFetchFailed:
		return ClassNetwork
	case CodeExchangeError, CodeInsufficientBalance, CodeOrderNotFound, CodeMarketNotFound:
		return ClassExchange
	case CodeInsufficientLiquidity, CodeUndefinedPrice, CodePrecisionViolation, CodeInvalidOrderbook:
		return ClassNoOpportunity
	default:
		return ClassOther
	}
}

// Classify walks err's chain, joined errors included, and returns the class
// of the first classified code. Bare context deadlines and net.Error values
// count as network errors.
func Classify(err error) Class {
	if c := classifyChain(err); c != ClassOther {
		return c
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return ClassNetwork
	}
	return ClassOther
}

func classifyChain(err error) Class {
	switch e := err.(type) {
	case nil:
		return ClassOther
	case *AppError:
		if c := classOf(e.Code); c != ClassOther {
			return c
		}
		return classifyChain(e.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if c := classifyChain(inner); c != ClassOther {
				return c
			}
		}
		return ClassOther
	default:
		return classifyChain(errors.Unwrap(err))
	}
}

// IsNetwork reports whether err is a transient transport failure.
func IsNetwork(err error) bool {
	return err != nil && Classify(err) == ClassNetwork
}

// IsExchange reports whether err is an exchange rejection.
func IsExchange(err error) bool {
	return err != nil && Classify(err) == ClassExchange
}

// IsNoOpportunity reports whether err only means the cycle is not tradable now.
func IsNoOpportunity(err error) bool {
	return err != nil && Classify(err) == ClassNoOpportunity
}

// getDefaultStatusCode determines the HTTP status code based on the error code
func getDefaultStatusCode(code Code) int {
	switch {
	case strings.Contains(string(code), "NOT_FOUND"):
		return http.StatusNotFound

	case strings.Contains(string(code), "INVALID"),
		code == CodePrecisionViolation:
		return http.StatusBadRequest

	case strings.Contains(string(code), "CONNECTION"),
		strings.Contains(string(code), "TIMEOUT"),
		code == CodeNetworkError, code == CodeCircuitOpen:
		return http.StatusServiceUnavailable

	case code == CodeRateLimitExceeded:
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}
