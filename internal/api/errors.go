package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"llmexperimenter/internal/service/ai"
	"llmexperimenter/internal/service/chat"
)

var kindStatus = map[ai.ErrorKind]int{
	ai.KindInvalidInput:         http.StatusBadRequest,
	ai.KindInvalidParameter:     http.StatusBadRequest,
	ai.KindCredentialMissing:    http.StatusServiceUnavailable,
	ai.KindAuthentication:       http.StatusBadGateway,
	ai.KindPermissionDenied:     http.StatusBadGateway,
	ai.KindRateLimited:          http.StatusTooManyRequests,
	ai.KindConnectionFailed:     http.StatusBadGateway,
	ai.KindTimeout:              http.StatusGatewayTimeout,
	ai.KindBadRequest:           http.StatusBadRequest,
	ai.KindUnprocessableRequest: http.StatusUnprocessableEntity,
	ai.KindServerError:          http.StatusBadGateway,
	ai.KindEmptyResponse:        http.StatusBadGateway,
	ai.KindUnknown:              http.StatusInternalServerError,
}

// errorResponse maps a chat turn failure onto an HTTP status and body.
func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, chat.ErrTurnInFlight):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, chat.ErrUnknownProvider):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	}
	perr, ok := ai.AsError(err)
	if !ok {
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
	status, ok := kindStatus[perr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := gin.H{
		"error":     perr.Error(),
		"kind":      perr.Kind,
		"provider":  perr.Provider,
		"retryable": perr.Retryable(),
	}
	if perr.Hint != "" {
		body["hint"] = perr.Hint
	}
	if perr.Field != "" {
		body["field"] = perr.Field
		body["value"] = perr.Value
	}
	return status, body
}
