package pipeline

import (
	"sync"
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/services"
)

// PhaseStats counts per-property outcomes of one phase.
type PhaseStats struct {
	Phase            string        `json:"phase"`
	Selected         int           `json:"selected"`
	Enriched         int           `json:"enriched"`
	SkippedUnchanged int           `json:"skippedUnchanged"`
	NoData           int           `json:"noData"`
	Failed           int           `json:"failed"`
	Duration         time.Duration `json:"durationNs"`
}

// RunStats summarises one pipeline run.
type RunStats struct {
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	RunID      string       `json:"runId"`
	Error      string       `json:"error,omitempty"`
	Phases     []PhaseStats `json:"phases"`
	Refresh    bool         `json:"refresh"`
}

// Phase returns the stats of the named phase, if it ran.
func (r *RunStats) Phase(name string) (PhaseStats, bool) {
	for _, p := range r.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseStats{}, false
}

// Totals sums every phase.
func (r *RunStats) Totals() PhaseStats {
	t := PhaseStats{Phase: "total", Duration: r.FinishedAt.Sub(r.StartedAt)}
	for _, p := range r.Phases {
		t.Selected += p.Selected
		t.Enriched += p.Enriched
		t.SkippedUnchanged += p.SkippedUnchanged
		t.NoData += p.NoData
		t.Failed += p.Failed
	}
	return t
}

// Fields renders the stats for structured logging.
func (p PhaseStats) Fields() logger.Fields {
	return logger.Fields{
		"phase":             p.Phase,
		"selected":          p.Selected,
		"enriched":          p.Enriched,
		"skipped_unchanged": p.SkippedUnchanged,
		"no_data":           p.NoData,
		"failed":            p.Failed,
		"duration_ms":       p.Duration.Milliseconds(),
	}
}

// tally is a PhaseStats safe for concurrent workers.
type tally struct {
	mu    sync.Mutex
	stats PhaseStats
}

func (t *tally) selected(n int) {
	t.mu.Lock()
	t.stats.Selected += n
	t.mu.Unlock()
}

func (t *tally) record(o services.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case services.OutcomeEnriched:
		t.stats.Enriched++
	case services.OutcomeUnchanged:
		t.stats.SkippedUnchanged++
	case services.OutcomeNoData:
		t.stats.NoData++
	default:
		t.stats.Failed++
	}
}

func (t *tally) snapshot() PhaseStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
