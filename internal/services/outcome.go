package services

import (
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
)

// Outcome is the result of processing one building in one phase.
type Outcome int

const (
	// OutcomeEnriched means new values were written.
	OutcomeEnriched Outcome = iota
	// OutcomeUnchanged means the source had nothing new; only the stamp moved.
	OutcomeUnchanged
	// OutcomeNoData means the source has no record for the property.
	OutcomeNoData
	// OutcomeFailed means the lookup or the write failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnriched:
		return "enriched"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeNoData:
		return "no_data"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures a service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for staleness stamps and scores.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func orNop(log *logger.Logger) *logger.Logger {
	if log == nil {
		return logger.Nop()
	}
	return log
}
