package userconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/models"
	"llmexperimenter/internal/storage"
)

// ErrNotFound is returned by Load when the user has no stored row.
var ErrNotFound = errors.New("user configuration not found")

// DefaultsSource supplies the live global defaults.
type DefaultsSource interface {
	Defaults() models.Defaults
}

// Service reads and writes per-user generation defaults.
type Service struct {
	db       *storage.DB
	defaults DefaultsSource
	now      func() time.Time
}

// NewService builds the user configuration service.
func NewService(db *storage.DB, defaults DefaultsSource) *Service {
	return &Service{db: db, defaults: defaults, now: time.Now}
}

// Get returns the effective defaults for email: stored overrides merged
// over the global defaults. Any storage failure falls back to the global
// defaults.
func (s *Service) Get(ctx context.Context, email string) models.Defaults {
	fallback := s.defaults.Defaults()
	cfg, err := s.Load(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("email", email).Msg("user configuration lookup failed, using defaults")
		}
		return fallback
	}
	return cfg.Merge(fallback)
}

// Load returns the stored row for email without merging.
func (s *Service) Load(ctx context.Context, email string) (*models.UserConfig, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT temperature, max_tokens, top_p, presence_penalty, frequency_penalty, updated_at
		FROM user_configuration WHERE email = ?`), email)

	var (
		temperature, topP, presence, frequency sql.NullFloat64
		maxTokens                              sql.NullInt64
		cfg                                    = models.UserConfig{Email: email}
	)
	if err := row.Scan(&temperature, &maxTokens, &topP, &presence, &frequency, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user configuration: %w", err)
	}
	cfg.Temperature = nullFloat(temperature)
	cfg.TopP = nullFloat(topP)
	cfg.PresencePenalty = nullFloat(presence)
	cfg.FrequencyPenalty = nullFloat(frequency)
	if maxTokens.Valid {
		v := int(maxTokens.Int64)
		cfg.MaxTokens = &v
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

// Save validates cfg and upserts it in one statement. Nil fields are stored
// as NULL and fall back to the global defaults on read.
func (s *Service) Save(ctx context.Context, cfg models.UserConfig) (*models.UserConfig, error) {
	cfg.Email = strings.TrimSpace(cfg.Email)
	if cfg.Email == "" {
		return nil, errors.New("email is required")
	}
	if err := cfg.Merge(models.BuiltinDefaults()).Validate(); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = s.now().UTC()

	var query string
	switch s.db.Dialect {
	case storage.DialectMySQL:
		query = `INSERT INTO user_configuration
			(email, temperature, max_tokens, top_p, presence_penalty, frequency_penalty, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				temperature = VALUES(temperature),
				max_tokens = VALUES(max_tokens),
				top_p = VALUES(top_p),
				presence_penalty = VALUES(presence_penalty),
				frequency_penalty = VALUES(frequency_penalty),
				updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO user_configuration
			(email, temperature, max_tokens, top_p, presence_penalty, frequency_penalty, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (email) DO UPDATE SET
				temperature = excluded.temperature,
				max_tokens = excluded.max_tokens,
				top_p = excluded.top_p,
				presence_penalty = excluded.presence_penalty,
				frequency_penalty = excluded.frequency_penalty,
				updated_at = excluded.updated_at`
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		cfg.Email,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.TopP,
		cfg.PresencePenalty,
		cfg.FrequencyPenalty,
		cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save user configuration: %w", err)
	}
	return &cfg, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
