package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Reason categorizes a provider error, grounded on
// internal/agent/providers/errors.go's FailoverReason enum. Unlike that
// teacher enum, ShouldFailover here follows spec.md §4.3's classification:
// auth failure, invalid request, and context-length overflow are
// non-failover (the same misconfiguration would affect every provider), so
// the fallback chain returns them immediately instead of trying the next
// candidate.
type Reason string

const (
	ReasonProviderError Reason = "provider_error" // 5xx, stream-level failure
	ReasonRateLimit      Reason = "rate_limit"
	ReasonOverload       Reason = "overload"
	ReasonAuth           Reason = "auth"
	ReasonInvalidRequest Reason = "invalid_request"
	ReasonContextLength  Reason = "context_length"
	ReasonTimeout        Reason = "timeout"
	ReasonUnknown        Reason = "unknown"
)

// ShouldFailover reports whether this reason warrants trying the next
// provider in the chain, per spec.md §4.3: "An error is classified failover
// if it is provider-side, stream-level, rate-limit, or overload;
// non-failover includes auth failure, invalid request, context-length."
func (r Reason) ShouldFailover() bool {
	switch r {
	case ReasonProviderError, ReasonRateLimit, ReasonOverload, ReasonTimeout:
		return true
	default:
		return false
	}
}

// Error wraps a provider-originated failure with enough context for
// classification, logging, and circuit breaker bookkeeping.
type Error struct {
	Provider  string
	Model     string
	Reason    Reason
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("[%s] %s status=%d %s", e.Reason, e.Provider, e.Status, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error, classifying cause via ClassifyError.
func NewError(provider, model string, cause error) *Error {
	e := &Error{Provider: provider, Model: model, Cause: cause, Reason: ReasonUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = ClassifyError(cause)
	}
	return e
}

// WithStatus attaches an HTTP status code and reclassifies from it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	if r := classifyStatus(status); r != ReasonUnknown {
		e.Reason = r
	}
	return e
}

// ClassifyError inspects an error's text for known provider failure
// patterns. Providers that can inspect a typed SDK error (status codes,
// error codes) should prefer WithStatus/explicit Reason assignment; this is
// the fallback for opaque errors.
func ClassifyError(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(s, "rate limit"), strings.Contains(s, "429"), strings.Contains(s, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(s, "overloaded"), strings.Contains(s, "529"):
		return ReasonOverload
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "invalid api key"), strings.Contains(s, "401"), strings.Contains(s, "403"):
		return ReasonAuth
	case strings.Contains(s, "context length"), strings.Contains(s, "context_length"), strings.Contains(s, "maximum context"), strings.Contains(s, "too many tokens"):
		return ReasonContextLength
	case strings.Contains(s, "invalid request"), strings.Contains(s, "400"):
		return ReasonInvalidRequest
	case strings.Contains(s, "internal server"), strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "504"):
		return ReasonProviderError
	default:
		return ReasonUnknown
	}
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == 529:
		return ReasonOverload
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonProviderError
	default:
		return ReasonUnknown
	}
}

// AsError extracts a *Error from an error chain, if present.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ClassifyAny classifies either a typed *Error or an opaque error.
func ClassifyAny(err error) Reason {
	if pe, ok := AsError(err); ok {
		return pe.Reason
	}
	return ClassifyError(err)
}
