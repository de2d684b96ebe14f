package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies a generative-text vendor.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderGroq      Provider = "groq"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderGroq}

// ParseProvider accepts the canonical names plus the vendor aliases used in
// model catalogues ("claude", "google", "llama").
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "groq", "llama":
		return ProviderGroq, nil
	}
	return "", fmt.Errorf("invalid provider: %s", name)
}

// ErrorKind classifies why a generation failed.
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindInvalidParameter     ErrorKind = "invalid_parameter"
	KindCredentialMissing    ErrorKind = "credential_missing"
	KindAuthentication       ErrorKind = "authentication"
	KindRateLimited          ErrorKind = "rate_limited"
	KindConnectionFailed     ErrorKind = "connection_failed"
	KindTimeout              ErrorKind = "timeout"
	KindBadRequest           ErrorKind = "bad_request"
	KindServerError          ErrorKind = "server_error"
	KindPermissionDenied     ErrorKind = "permission_denied"
	KindUnprocessableRequest ErrorKind = "unprocessable_request"
	KindEmptyResponse        ErrorKind = "empty_response"
	KindUnknown              ErrorKind = "unknown"
)

// Error is the only error type adapters return.
type Error struct {
	Provider Provider
	Kind     ErrorKind
	// Field and Value name the offending parameter for KindInvalidParameter.
	Field   string
	Value   any
	Message string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(string(e.Provider))
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Hint != "" {
		b.WriteString(" (hint: ")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same request may succeed if the caller
// tries again later. Adapters themselves never retry.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindConnectionFailed, KindTimeout, KindServerError:
		return true
	}
	return false
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	aerr, ok := AsError(err)
	return ok && aerr.Kind == kind
}

func invalidInput(provider Provider, msg string) *Error {
	return &Error{Provider: provider, Kind: KindInvalidInput, Message: msg}
}

func invalidParameter(provider Provider, field string, value any, msg string) *Error {
	return &Error{
		Provider: provider,
		Kind:     KindInvalidParameter,
		Field:    field,
		Value:    value,
		Message:  fmt.Sprintf("%s %s, got %v", field, msg, value),
	}
}
