package service

import (
    "context"
    "time"

    "go.uber.org/zap"
)

// RunDailyRollover calls Rollover every interval until ctx is done, so
// stale bookings are reclaimed even when nobody reads the board.
func (s *BookingService) RunDailyRollover(ctx context.Context, every time.Duration) {
    if every <= 0 {
        return
    }
    log := zap.L().Named("rollover")
    t := time.NewTicker(every)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
            if _, err := s.Rollover(rctx); err != nil {
                log.Error("rollover failed", zap.Error(err))
            }
            cancel()
        }
    }
}
