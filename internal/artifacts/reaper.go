package artifacts

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunReaper reclaims artifacts older than grace every interval until ctx is done.
func RunReaper(ctx context.Context, s Store, interval, grace time.Duration, log *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Reap(ctx, now.Add(-grace))
			if err != nil {
				log.Warnw("[reaper] cleanup error", "reclaimed", n, "error", err)
				continue
			}
			if n > 0 {
				log.Infow("[reaper] reclaimed abandoned artifacts", "reclaimed", n, "live", s.Len())
			}
		}
	}
}
