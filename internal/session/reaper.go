package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/store"
)

// RunReaper periodically deletes sessions older than maxAge until ctx is
// done. Lookups never depend on it; it only bounds store growth.
func RunReaper(ctx context.Context, reaper store.SessionReaper, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			count, err := reaper.DeleteCreatedBefore(ctx, now.Add(-maxAge))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("Failed to delete expired sessions")
				continue
			}
			if count > 0 {
				log.Debug().Int("count", count).Msg("Reaped expired sessions")
			}
		}
	}
}
