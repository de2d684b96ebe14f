package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"llmexperimenter/internal/models"
)

const sessionContextKey = "auth_session"

// Middleware validates the session token and stores the session in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		sess, err := s.Validate(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, ErrInvalidSession) && !errors.Is(err, ErrSessionExpired) {
				status = http.StatusInternalServerError
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// CSRFMiddleware enforces double-submit CSRF protection on state-changing
// requests authenticated by cookie. Bearer requests are exempt.
func (s *Service) CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if bearerToken(c.GetHeader(s.headerName)) != "" {
			c.Next()
			return
		}
		header := c.GetHeader(s.csrfHeaderName)
		cookie, err := c.Cookie(s.csrfCookieName)
		if err != nil || header == "" || header != cookie {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token"})
			return
		}
		c.Next()
	}
}

// SessionFromContext retrieves the session stored by Middleware.
func SessionFromContext(c *gin.Context) (*models.Session, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := val.(*models.Session)
	return sess, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	if token := bearerToken(c.GetHeader(s.headerName)); token != "" {
		return token
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
