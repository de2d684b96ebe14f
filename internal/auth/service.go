package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/models"
	"llmexperimenter/internal/redis"
	"llmexperimenter/internal/storage"
)

var (
	ErrUserRequired   = errors.New("user is required")
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
)

const (
	sessionIDChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	cachePrefix    = "session:"
)

// Service issues, validates and revokes login sessions. Sessions live in
// the user_sessions table; when a redis client is supplied it caches them.
type Service struct {
	db             *storage.DB
	cache          *redis.Client
	ttl            time.Duration
	now            func() time.Time
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	onExpire       func(sessionID string)
}

// NewService constructs an auth service. cache may be nil.
func NewService(db *storage.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		ttl:            ttl,
		now:            time.Now,
		cookieName:     "session_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// OnExpire registers fn to run with the session id of every session removed
// because its TTL passed.
func (s *Service) OnExpire(fn func(sessionID string)) {
	s.onExpire = fn
}

func (s *Service) expired(sessionIDs ...string) {
	if s.onExpire == nil {
		return
	}
	for _, id := range sessionIDs {
		s.onExpire(id)
	}
}

// Login opens a new chat session for user and returns it with a fresh token.
func (s *Service) Login(ctx context.Context, user string) (*models.Session, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ErrUserRequired
	}
	sessionID, err := NewSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &models.Session{
		User:      user,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO user_sessions (token, username, session_id, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`),
			token, sess.User, sess.SessionID, sess.CreatedAt, sess.ExpiresAt,
		)
		if err == nil {
			sess.Token = token
			s.cacheSession(ctx, sess)
			return sess, nil
		}
	}
	return nil, errors.New("could not issue session token")
}

// Validate returns the live session behind token.
func (s *Service) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	now := s.now().UTC()

	var cached models.Session
	if err := s.cache.GetJSON(ctx, cachePrefix+token, &cached); err == nil {
		cached.Token = token
		if !cached.Expired(now) {
			return &cached, nil
		}
	}

	sess := &models.Session{Token: token}
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT username, session_id, created_at, expires_at FROM user_sessions WHERE token = ?`), token,
	).Scan(&sess.User, &sess.SessionID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Expired(now) {
		_ = s.Revoke(ctx, token)
		s.expired(sess.SessionID)
		return nil, ErrSessionExpired
	}
	s.cacheSession(ctx, sess)
	return sess, nil
}

// Revoke deletes a single session.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cachePrefix+token); err != nil {
			log.Warn().Err(err).Msg("failed to evict cached session")
		}
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM user_sessions WHERE token = ?`), token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PurgeExpired removes every expired session row.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC()
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT session_id FROM user_sessions WHERE expires_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired session: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM user_sessions WHERE expires_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	s.expired(ids...)
	return res.RowsAffected()
}

func (s *Service) cacheSession(ctx context.Context, sess *models.Session) {
	if s.cache == nil {
		return
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.cache.SetJSON(ctx, cachePrefix+sess.Token, sess, ttl); err != nil {
		log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("failed to cache session")
	}
}

// NewSessionID returns four groups of six alphanumerics joined by dashes,
// e.g. X4a9Kf-Gm3WQ7-Po29Ls-ZxL8qB.
func NewSessionID() (string, error) {
	limit := big.NewInt(int64(len(sessionIDChars)))
	var b strings.Builder
	b.Grow(27)
	for i := 0; i < 24; i++ {
		if i > 0 && i%6 == 0 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		b.WriteByte(sessionIDChars[n.Int64()])
	}
	return b.String(), nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewCSRFToken returns a random token for double-submit CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// CookieName returns the cookie name storing session tokens.
func (s *Service) CookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// TTL reports the configured session lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
