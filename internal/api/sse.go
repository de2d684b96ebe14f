package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"llmexperimenter/internal/models"
)

// chatTurnSSE runs a turn like chatTurn but answers with server-sent
// events: "ack" once the prompt is accepted, then "done" or "error". The
// reply is delivered whole; there are no partial chunks.
func (h *Handler) chatTurnSSE(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	turn, ok := h.prepareTurn(c, sess)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendEvent("ack", gin.H{
		"session_id": sess.SessionID,
		"provider":   turn.Provider,
		"model":      turn.Model,
		"message":    models.ChatMessage{Role: models.RoleUser, Content: turn.Prompt},
	}); err != nil {
		return
	}
	conv := h.chat.Conversation(sess.User, sess.SessionID)
	result, err := h.chat.Submit(c.Request.Context(), conv, turn)
	if err != nil {
		status, body := errorResponse(err)
		body["status"] = status
		_ = sendEvent("error", body)
		return
	}
	_ = sendEvent("done", turnPayload(result))
}
