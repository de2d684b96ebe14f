package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/auth"
	"llmexperimenter/internal/config"
	"llmexperimenter/internal/metrics"
	"llmexperimenter/internal/models"
	"llmexperimenter/internal/service/ai"
	"llmexperimenter/internal/service/chat"
	"llmexperimenter/internal/service/history"
	"llmexperimenter/internal/service/userconfig"
)

// Handler wires HTTP routes to the chat services.
type Handler struct {
	auth       *auth.Service
	chat       *chat.Orchestrator
	history    *history.Gateway
	userConfig *userconfig.Service
	settings   *config.Holder
	metrics    *metrics.ProviderMetrics
}

// NewHandler constructs a Handler instance. pm may be nil. Conversations of
// sessions that expire are dropped from the orchestrator.
func NewHandler(authService *auth.Service, orchestrator *chat.Orchestrator, historyGateway *history.Gateway,
	userConfig *userconfig.Service, settings *config.Holder, pm *metrics.ProviderMetrics) *Handler {
	authService.OnExpire(orchestrator.Drop)
	return &Handler{
		auth:       authService,
		chat:       orchestrator,
		history:    historyGateway,
		userConfig: userConfig,
		settings:   settings,
		metrics:    pm,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "conversations": h.chat.Active()})
	})

	api := router.Group("/api")
	api.POST("/login", h.login)
	api.GET("/providers", h.listProviders)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.POST("/logout", h.logout)
	authed.GET("/providers/:provider/models", h.vendorModels)
	authed.POST("/chat", h.chatTurn)
	authed.POST("/chat/stream", h.chatTurnSSE)
	authed.GET("/chat/messages", h.chatMessages)
	authed.DELETE("/chat", h.resetChat)
	authed.GET("/history", h.recentHistory)
	authed.GET("/users/me/defaults", h.getUserDefaults)
	authed.PUT("/users/me/defaults", h.putUserDefaults)

	admin := authed.Group("/admin")
	admin.Use(h.requireAdmin())
	admin.GET("/defaults", h.getGlobalDefaults)
	admin.PUT("/defaults", h.putGlobalDefaults)
}

func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := auth.SessionFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		if !slices.Contains(h.settings.Current().Server.Admins, sess.User) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func (h *Handler) session(c *gin.Context) (*models.Session, bool) {
	sess, ok := auth.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, false
	}
	return sess, true
}

type loginRequest struct {
	User string `json:"user"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.User)
	if err != nil {
		if errors.Is(err, auth.ErrUserRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue session failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue session failed"})
		return
	}
	h.setAuthCookies(c, sess.Token, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"user":       sess.User,
		"session_id": sess.SessionID,
		"expires_at": sess.ExpiresAt,
		"auth_token": sess.Token,
		"csrf_token": csrfToken,
	})
}

func (h *Handler) logout(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.chat.Drop(sess.SessionID)
	if err := h.auth.Revoke(c.Request.Context(), sess.Token); err != nil {
		log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("revoke session failed")
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

type providerInfo struct {
	Name      ai.Provider `json:"name"`
	Models    []string    `json:"models"`
	MaxTokens int         `json:"max_tokens"`
	TopP      bool        `json:"top_p"`
	Penalties bool        `json:"penalties"`
	Stop      bool        `json:"stop"`
	Stream    bool        `json:"stream"`
}

func (h *Handler) listProviders(c *gin.Context) {
	catalogue := h.settings.Current().Models
	out := make([]providerInfo, 0)
	for _, p := range h.chat.Providers() {
		limits, _ := ai.LimitsFor(p)
		names := ai.CatalogueModels(catalogue, p)
		if names == nil {
			names = []string{}
		}
		out = append(out, providerInfo{
			Name:      p,
			Models:    names,
			MaxTokens: limits.MaxTokens,
			TopP:      limits.TopP,
			Penalties: limits.Penalties,
			Stop:      limits.Stop,
			Stream:    limits.Stream,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// vendorModels asks the provider which models the configured key can use.
func (h *Handler) vendorModels(c *gin.Context) {
	provider, err := ai.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adapter, ok := h.chat.Adapter(provider)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider is not available: " + string(provider)})
		return
	}
	lister, ok := adapter.(ai.ModelLister)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "model listing not supported for " + string(provider)})
		return
	}
	names, err := lister.AvailableModels(c.Request.Context())
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider, "models": names})
}

// parameterOverrides are optional per-request or per-user tunables.
type parameterOverrides struct {
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	TopP             *float64 `json:"top_p"`
	PresencePenalty  *float64 `json:"presence_penalty"`
	FrequencyPenalty *float64 `json:"frequency_penalty"`
}

func (p *parameterOverrides) userConfig(email string) models.UserConfig {
	cfg := models.UserConfig{Email: email}
	if p == nil {
		return cfg
	}
	cfg.Temperature = p.Temperature
	cfg.MaxTokens = p.MaxTokens
	cfg.TopP = p.TopP
	cfg.PresencePenalty = p.PresencePenalty
	cfg.FrequencyPenalty = p.FrequencyPenalty
	return cfg
}

type chatRequest struct {
	Provider   string              `json:"provider"`
	Model      string              `json:"model"`
	Prompt     string              `json:"prompt"`
	Parameters *parameterOverrides `json:"parameters"`
	Stop       []string            `json:"stop"`
	Stream     bool                `json:"stream"`
}

// prepareTurn resolves provider, model and parameters for the caller. It
// writes the error response itself and reports false on failure.
func (h *Handler) prepareTurn(c *gin.Context, sess *models.Session) (chat.Turn, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return chat.Turn{}, false
	}
	provider, err := ai.ParseProvider(req.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return chat.Turn{}, false
	}
	if _, ok := h.chat.Adapter(provider); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is not available: " + string(provider)})
		return chat.Turn{}, false
	}
	catalogue := ai.CatalogueModels(h.settings.Current().Models, provider)
	model := strings.TrimSpace(req.Model)
	switch {
	case model == "" && len(catalogue) > 0:
		model = catalogue[0]
	case model != "" && len(catalogue) > 0 && !slices.Contains(catalogue, model):
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is not configured for " + string(provider) + ": " + model})
		return chat.Turn{}, false
	}

	base := h.userConfig.Get(c.Request.Context(), sess.User)
	params := req.Parameters.userConfig(sess.User).Merge(base).Parameters()
	return chat.Turn{
		Provider:   provider,
		Model:      model,
		Prompt:     req.Prompt,
		Parameters: params,
		Stop:       req.Stop,
		Stream:     req.Stream,
	}, true
}

func (h *Handler) chatTurn(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	turn, ok := h.prepareTurn(c, sess)
	if !ok {
		return
	}
	conv := h.chat.Conversation(sess.User, sess.SessionID)
	result, err := h.chat.Submit(c.Request.Context(), conv, turn)
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, turnPayload(result))
}

func turnPayload(result *chat.TurnResult) gin.H {
	return gin.H{
		"id":         result.ID,
		"provider":   result.Provider,
		"model":      result.Model,
		"response":   result.Text,
		"elapsed_ms": result.Elapsed.Milliseconds(),
		"recorded":   result.Record != nil,
	}
}

func (h *Handler) chatMessages(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	conv := h.chat.Conversation(sess.User, sess.SessionID)
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.SessionID,
		"state":      conv.State().String(),
		"messages":   conv.Messages(),
	})
}

func (h *Handler) resetChat(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.chat.Conversation(sess.User, sess.SessionID).Reset(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) recentHistory(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	limit := history.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	records := h.history.Recent(c.Request.Context(), sess.User, limit)
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (h *Handler) getUserDefaults(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"defaults": h.userConfig.Get(c.Request.Context(), sess.User)})
}

func (h *Handler) putUserDefaults(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req parameterOverrides
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	saved, err := h.userConfig.Save(c.Request.Context(), req.userConfig(sess.User))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"defaults":   h.userConfig.Get(c.Request.Context(), sess.User),
		"updated_at": saved.UpdatedAt,
	})
}

func (h *Handler) getGlobalDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"defaults": h.settings.Defaults()})
}

func (h *Handler) putGlobalDefaults(c *gin.Context) {
	var req models.Defaults
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path := h.settings.Current().Path()
	if err := config.SaveDefaults(path, req); err != nil {
		log.Error().Err(err).Str("path", path).Msg("save global defaults failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save defaults failed"})
		return
	}
	if err := h.settings.Reload(); err != nil {
		log.Warn().Err(err).Msg("reload after saving defaults failed")
	}
	c.JSON(http.StatusOK, gin.H{"defaults": h.settings.Defaults()})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.CookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.CookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}
