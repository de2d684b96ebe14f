package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/models"
	"llmexperimenter/internal/storage"
)

const (
	DefaultLimit = 5
	MaxLimit     = 50
)

var (
	// ErrMissingField is returned when a record lacks user, session, model,
	// prompt or response.
	ErrMissingField = errors.New("history record is missing a required field")
	// ErrPersistence wraps any storage failure while writing.
	ErrPersistence = errors.New("history persistence failed")
)

// Gateway stores prompt/response exchanges and reads back a user's most
// recent ones.
type Gateway struct {
	db  *storage.DB
	now func() time.Time
}

// NewGateway builds a history gateway on an already migrated database.
func NewGateway(db *storage.DB) *Gateway {
	return &Gateway{db: db, now: time.Now}
}

// Append persists one exchange. A zero Timestamp is set to now (UTC).
func (g *Gateway) Append(ctx context.Context, rec models.HistoryRecord) (*models.HistoryRecord, error) {
	rec.User = strings.TrimSpace(rec.User)
	rec.SessionID = strings.TrimSpace(rec.SessionID)
	rec.Model = strings.TrimSpace(rec.Model)
	switch {
	case rec.User == "":
		return nil, fmt.Errorf("%w: user", ErrMissingField)
	case rec.SessionID == "":
		return nil, fmt.Errorf("%w: session_id", ErrMissingField)
	case rec.Model == "":
		return nil, fmt.Errorf("%w: model", ErrMissingField)
	case strings.TrimSpace(rec.Prompt) == "":
		return nil, fmt.Errorf("%w: prompt", ErrMissingField)
	case strings.TrimSpace(rec.Response) == "":
		return nil, fmt.Errorf("%w: response", ErrMissingField)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = g.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	query := `INSERT INTO history (username, session_id, model, prompt, response, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	args := []any{rec.User, rec.SessionID, rec.Model, rec.Prompt, rec.Response, rec.Timestamp}

	if g.db.Dialect == storage.DialectPostgres {
		// pgx does not support LastInsertId
		if err := g.db.QueryRowContext(ctx, g.db.Rebind(query+` RETURNING id`), args...).Scan(&rec.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return &rec, nil
	}
	res, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return &rec, nil
}

// Record is Append for the common case of a fresh exchange.
func (g *Gateway) Record(ctx context.Context, user, sessionID, model, prompt, response string) (*models.HistoryRecord, error) {
	return g.Append(ctx, models.HistoryRecord{
		User:      user,
		SessionID: sessionID,
		Model:     model,
		Prompt:    prompt,
		Response:  response,
	})
}

// Recent returns up to limit records for user, newest first. Storage
// failures are logged and yield an empty list; reading history never fails
// a request.
func (g *Gateway) Recent(ctx context.Context, user string, limit int) []models.HistoryRecord {
	limit = ClampLimit(limit)
	user = strings.TrimSpace(user)
	if user == "" {
		return []models.HistoryRecord{}
	}

	rows, err := g.db.QueryContext(ctx, g.db.Rebind(
		`SELECT id, username, session_id, model, prompt, response, created_at
		FROM history WHERE username = ? ORDER BY created_at DESC, id DESC LIMIT ?`),
		user, limit,
	)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("history lookup failed")
		return []models.HistoryRecord{}
	}
	defer rows.Close()

	records := make([]models.HistoryRecord, 0, limit)
	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.User, &rec.SessionID, &rec.Model, &rec.Prompt, &rec.Response, &rec.Timestamp); err != nil {
			log.Warn().Err(err).Str("user", user).Msg("history scan failed")
			return []models.HistoryRecord{}
		}
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Str("user", user).Msg("history iteration failed")
		return []models.HistoryRecord{}
	}
	return records
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
