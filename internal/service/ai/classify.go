package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// statusPatterns pull an HTTP status out of SDK error text when the typed
// error did not survive wrapping.
var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`status code: (\d{3})`), // go-openai and forks
	regexp.MustCompile(`": (\d{3}) [A-Z]`),     // anthropic-sdk-go: POST "url": 429 Too Many Requests
	regexp.MustCompile(`Error (\d{3}), `),      // genai
	regexp.MustCompile(`\bstatus[ =:]+(\d{3})\b`),
}

type textRule struct {
	needle string
	kind   ErrorKind
}

// Vendor rules are checked in order; the first needle contained in the
// lower-cased error text wins.
var (
	openAIRules = []textRule{
		{"invalid_api_key", KindAuthentication},
		{"incorrect api key", KindAuthentication},
		{"invalid api key", KindAuthentication},
		{"unauthorized", KindAuthentication},
		{"insufficient_quota", KindRateLimited},
		{"rate_limit", KindRateLimited},
		{"rate limit", KindRateLimited},
		{"quota", KindRateLimited},
		{"context_length_exceeded", KindBadRequest},
		{"model_not_found", KindBadRequest},
		{"does not exist", KindBadRequest},
		{"invalid_request_error", KindBadRequest},
		{"permission", KindPermissionDenied},
		{"server_error", KindServerError},
		{"service unavailable", KindServerError},
		{"empty choices", KindEmptyResponse},
		{"no choices", KindEmptyResponse},
	}
	anthropicRules = []textRule{
		{"invalid_api_key", KindAuthentication},
		{"invalid x-api-key", KindAuthentication},
		{"unauthorized", KindAuthentication},
		{"authentication_error", KindAuthentication},
		{"insufficient_quota", KindRateLimited},
		{"quota", KindRateLimited},
		{"rate_limit", KindRateLimited},
		{"timeout", KindTimeout},
		{"model_not_found", KindBadRequest},
		{"invalid_model", KindBadRequest},
		{"not_found_error", KindBadRequest},
		{"context_length_exceeded", KindBadRequest},
		{"too_many_tokens", KindBadRequest},
		{"invalid_request", KindBadRequest},
		{"permission_error", KindPermissionDenied},
		{"server_error", KindServerError},
		{"internal_error", KindServerError},
		{"overloaded_error", KindServerError},
		{"api_error", KindServerError},
		{"network", KindConnectionFailed},
		{"connection", KindConnectionFailed},
	}
	geminiRules = []textRule{
		{"api_key_invalid", KindAuthentication},
		{"api key not valid", KindAuthentication},
		{"unauthenticated", KindAuthentication},
		{"resource_exhausted", KindRateLimited},
		{"quota", KindRateLimited},
		{"permission_denied", KindPermissionDenied},
		{"invalid_argument", KindBadRequest},
		{"failed_precondition", KindBadRequest},
		{"not_found", KindBadRequest},
		{"deadline_exceeded", KindTimeout},
		{"unavailable", KindServerError},
		{"internal", KindServerError},
		{"empty candidates", KindEmptyResponse},
		{"result is empty", KindEmptyResponse},
	}
	networkRules = []textRule{
		{"context deadline exceeded", KindTimeout},
		{"client.timeout exceeded", KindTimeout},
		{"i/o timeout", KindTimeout},
		{"timeout awaiting", KindTimeout},
		{"connection refused", KindConnectionFailed},
		{"connection reset", KindConnectionFailed},
		{"no such host", KindConnectionFailed},
		{"network is unreachable", KindConnectionFailed},
		{"tls handshake", KindConnectionFailed},
		{"dial tcp", KindConnectionFailed},
		{"unexpected eof", KindConnectionFailed},
	}
)

func rulesFor(provider Provider) []textRule {
	switch provider {
	case ProviderOpenAI, ProviderGroq:
		return openAIRules
	case ProviderAnthropic:
		return anthropicRules
	case ProviderGemini:
		return geminiRules
	}
	return nil
}

// Classify maps any failure from a provider SDK into the shared taxonomy.
// It is pure and never panics; unrecognised errors become KindUnknown.
func Classify(provider Provider, err error) *Error {
	if err == nil {
		return nil
	}
	if aerr, ok := AsError(err); ok {
		return aerr
	}
	msg := err.Error()
	out := &Error{Provider: provider, Kind: KindUnknown, Message: msg, Cause: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
		return out
	case errors.Is(err, context.Canceled):
		out.Message = "request cancelled: " + msg
		return out
	}

	lower := strings.ToLower(msg)
	ruleKind, matched := matchRules(rulesFor(provider), lower)

	if status := httpStatus(err); status != 0 {
		out.Kind = kindForStatus(status)
		// Some vendors report bad credentials or quota as a plain 400.
		if out.Kind == KindBadRequest && matched && ruleKind != KindEmptyResponse {
			out.Kind = ruleKind
		}
		out.Hint = hintFor(out.Kind, msg)
		return out
	}
	if matched {
		out.Kind = ruleKind
		out.Hint = hintFor(out.Kind, msg)
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		out.Kind = KindTimeout
		return out
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		out.Kind = KindConnectionFailed
		return out
	}
	if kind, ok := matchRules(networkRules, lower); ok {
		out.Kind = kind
	}
	return out
}

func matchRules(rules []textRule, lower string) (ErrorKind, bool) {
	for _, rule := range rules {
		if strings.Contains(lower, rule.needle) {
			return rule.kind, true
		}
	}
	return "", false
}

func httpStatus(err error) int {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) && anthropicErr.StatusCode > 0 {
		return anthropicErr.StatusCode
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) && genaiErr.Code > 0 {
		return genaiErr.Code
	}
	var genaiPtr *genai.APIError
	if errors.As(err, &genaiPtr) && genaiPtr.Code > 0 {
		return genaiPtr.Code
	}
	var openaiErr *goopenai.APIError
	if errors.As(err, &openaiErr) && openaiErr.HTTPStatusCode > 0 {
		return openaiErr.HTTPStatusCode
	}
	var openaiReqErr *goopenai.RequestError
	if errors.As(err, &openaiReqErr) && openaiReqErr.HTTPStatusCode > 0 {
		return openaiReqErr.HTTPStatusCode
	}

	msg := err.Error()
	for _, re := range statusPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			if code, convErr := strconv.Atoi(m[1]); convErr == nil && code >= 400 && code < 600 {
				return code
			}
		}
	}
	return 0
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindPermissionDenied
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusUnprocessableEntity:
		return KindUnprocessableRequest
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindBadRequest
	}
	return KindUnknown
}

func hintFor(kind ErrorKind, msg string) string {
	switch kind {
	case KindBadRequest, KindUnprocessableRequest:
	case KindPermissionDenied:
		return "check that the API key has access to the requested model"
	case KindRateLimited:
		return "wait before retrying or check usage limits"
	default:
		return ""
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "model"):
		return "the model may not exist or may not be accessible"
	case strings.Contains(lower, "token"):
		return "try reducing max_tokens or the chat history length"
	case strings.Contains(lower, "context"):
		return "the chat history may be too long for the model's context window"
	}
	return ""
}
