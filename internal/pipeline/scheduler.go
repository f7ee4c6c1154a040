package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/lock"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
)

// Schedule runs the pipeline immediately and then every interval until ctx
// is cancelled. A run skipped because another holds the lock is not an error.
func (r *Runner) Schedule(ctx context.Context, every time.Duration, opts Options) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx, opts); err != nil {
			switch {
			case errors.Is(err, lock.ErrRunInProgress):
				r.log.Info("Scheduled run skipped, another run is in progress", nil)
			case ctx.Err() != nil:
				return
			default:
				r.log.Error("Scheduled run failed", err, logger.Fields{"interval": every.String()})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
