package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultCleanupInterval = time.Hour

// StartSessionCleaner purges expired sessions every interval until ctx ends.
func (s *Service) StartSessionCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("session cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("expired sessions removed")
			}
		}
	}
}
