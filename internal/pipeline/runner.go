// Package pipeline runs the enrichment phases over the building registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/lock"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/notify"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/services"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/sources"
)

const lockName = "pipeline"

// stages run in order; phases inside a stage run side by side.
var stages = [][]string{
	{config.PhaseLink},
	{config.PhaseParcel, config.PhaseAssessment, config.PhaseHousing},
	{config.PhaseTransactions},
	{config.PhaseLiens},
	{config.PhaseScore},
}

// Options narrow a run.
type Options struct {
	// Phases restricts the run to the named phases. Empty means all.
	Phases []string
	// Refresh reprocesses every building and lets fresh values overwrite
	// stored ones.
	Refresh bool
	// Limit caps the buildings or permits selected per phase. Zero means no cap.
	Limit int
}

// Validate rejects unknown phase names and a negative limit.
func (o Options) Validate() error {
	for _, p := range o.Phases {
		if !slices.Contains(config.Phases, p) {
			return fmt.Errorf("unknown phase %q", p)
		}
	}
	if o.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	return nil
}

func (o Options) includes(phase string) bool {
	return len(o.Phases) == 0 || slices.Contains(o.Phases, phase)
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Store      repository.Provider
	Registry   services.RegistryService
	Enrichment services.EnrichmentService
	Extractor  services.ExtractorService
	Scorer     services.ScorerService
	Connectors map[models.Source]sources.Connector
	Locker     lock.Locker
	Notifier   notify.Publisher
}

// Runner executes pipeline runs and remembers the latest summary.
type Runner struct {
	deps Deps
	cfg  config.PipelineConfig
	log  *logger.Logger
	now  func() time.Time

	mu     sync.RWMutex
	latest *RunStats
}

// NewRunner creates a Runner. A nil Locker or Notifier disables that concern.
func NewRunner(deps Deps, cfg config.PipelineConfig, log *logger.Logger) *Runner {
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{deps: deps, cfg: cfg, log: log, now: time.Now}
}

// Latest returns the summary of the last finished run, or nil.
func (r *Runner) Latest() *RunStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Run executes the selected phases once. It returns lock.ErrRunInProgress
// when another run holds the lock. Per-property failures are counted, not
// returned; an error means a phase could not select its work.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	release, err := r.deps.Locker.Acquire(ctx, lockName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			r.log.Warn("Failed to release run lock", logger.Fields{"error": err.Error()})
		}
	}()

	stats := &RunStats{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Refresh:   opts.Refresh,
	}
	log := r.log.WithRun(stats.RunID)
	log.Info("Enrichment run started", logger.Fields{
		"phases":  opts.Phases,
		"refresh": opts.Refresh,
		"limit":   opts.Limit,
	})

	var runErr error
	for _, stage := range stages {
		results, err := r.runStage(ctx, log, stage, opts)
		stats.Phases = append(stats.Phases, results...)
		if err != nil {
			runErr = err
			break
		}
	}

	stats.FinishedAt = r.now()
	if runErr != nil {
		stats.Error = runErr.Error()
		log.Error("Enrichment run aborted", runErr, stats.Totals().Fields())
	} else {
		log.Info("Enrichment run finished", stats.Totals().Fields())
	}

	r.mu.Lock()
	r.latest = stats
	r.mu.Unlock()

	if err := r.deps.Notifier.Publish(ctx, stats.RunID, stats); err != nil {
		log.Warn("Run summary not published", logger.Fields{"error": err.Error()})
	}
	return stats, runErr
}

func (r *Runner) runStage(ctx context.Context, log *logger.Logger, stage []string, opts Options) ([]PhaseStats, error) {
	var selected []string
	for _, phase := range stage {
		if opts.includes(phase) {
			selected = append(selected, phase)
		}
	}

	results := make([]PhaseStats, len(selected))
	var g errgroup.Group
	for i, phase := range selected {
		g.Go(func() error {
			plog := log.WithPhase(phase)
			started := r.now()
			stats, err := r.runPhase(ctx, phase, opts)
			stats.Phase = phase
			stats.Duration = r.now().Sub(started)
			results[i] = stats
			if err != nil {
				plog.Error("Phase aborted", err, stats.Fields())
				return fmt.Errorf("phase %s: %w", phase, err)
			}
			plog.Info("Phase finished", stats.Fields())
			return nil
		})
	}
	return results, g.Wait()
}

func (r *Runner) runPhase(ctx context.Context, phase string, opts Options) (PhaseStats, error) {
	pc := r.cfg.Phase(phase)
	switch phase {
	case config.PhaseLink:
		return r.linkPhase(ctx, pc, opts)
	case config.PhaseTransactions:
		return runBatches(ctx, pc, opts.Limit, r.buildingLister(models.SourceTransactions, opts.Refresh), buildingID,
			func(ctx context.Context, b models.Building) services.Outcome {
				outcome, _ := r.deps.Extractor.Extract(ctx, &b, opts.Refresh)
				return outcome
			})
	case config.PhaseScore:
		return r.scorePhase(ctx, pc, opts)
	default:
		return r.sourcePhase(ctx, phase, pc, opts)
	}
}

func (r *Runner) linkPhase(ctx context.Context, pc config.PhaseConfig, opts Options) (PhaseStats, error) {
	list := func(ctx context.Context, afterID int64, n int) ([]models.Permit, error) {
		var out []models.Permit
		err := r.deps.Store.WithStore(ctx, func(st repository.Store) error {
			var err error
			out, err = st.Permits().ListUnlinked(ctx, afterID, n)
			return err
		})
		return out, err
	}
	return runBatches(ctx, pc, opts.Limit, list, func(p models.Permit) int64 { return p.ID },
		func(ctx context.Context, p models.Permit) services.Outcome {
			outcome, err := r.deps.Registry.LinkPermit(ctx, p)
			if errors.Is(err, services.ErrUnresolvableBBL) {
				return services.OutcomeNoData
			}
			return outcome
		})
}

func (r *Runner) sourcePhase(ctx context.Context, phase string, pc config.PhaseConfig, opts Options) (PhaseStats, error) {
	source, err := models.ParseSource(phase)
	if err != nil {
		return PhaseStats{}, err
	}
	conn, ok := r.deps.Connectors[source]
	if !ok {
		return PhaseStats{}, fmt.Errorf("no connector for source %s", source)
	}

	mode := models.MergeFillNulls
	if opts.Refresh {
		mode = models.MergeRefresh
	}
	return runBatches(ctx, pc, opts.Limit, r.buildingLister(source, opts.Refresh), buildingID,
		func(ctx context.Context, b models.Building) services.Outcome {
			outcome, _ := r.deps.Enrichment.Enrich(ctx, &b, conn, mode)
			return outcome
		})
}

func (r *Runner) scorePhase(ctx context.Context, pc config.PhaseConfig, opts Options) (PhaseStats, error) {
	owners, err := r.deps.Scorer.LoadOwnerIndex(ctx)
	if err != nil {
		return PhaseStats{}, err
	}
	return runBatches(ctx, pc, opts.Limit, r.allBuildings, buildingID,
		func(ctx context.Context, b models.Building) services.Outcome {
			if _, err := r.deps.Scorer.ScoreBuilding(ctx, &b, owners); err != nil {
				return services.OutcomeFailed
			}
			return services.OutcomeEnriched
		})
}

// buildingLister selects the buildings due for source, or every building in
// refresh mode. The freshness cutoffs are fixed when the phase starts.
func (r *Runner) buildingLister(source models.Source, refresh bool) func(context.Context, int64, int) ([]models.Building, error) {
	if refresh {
		return r.allBuildings
	}
	policy := models.FreshnessPolicy{
		RefreshWindow:    r.cfg.RefreshWindow,
		EmptyRetryWindow: r.cfg.EmptyRetryWindow,
	}
	now := r.now()
	return func(ctx context.Context, afterID int64, n int) ([]models.Building, error) {
		var out []models.Building
		err := r.deps.Store.WithStore(ctx, func(st repository.Store) error {
			var err error
			out, err = st.Buildings().ListNeedingEnrichment(ctx, source, policy, now, afterID, n)
			return err
		})
		return out, err
	}
}

func (r *Runner) allBuildings(ctx context.Context, afterID int64, n int) ([]models.Building, error) {
	var out []models.Building
	err := r.deps.Store.WithStore(ctx, func(st repository.Store) error {
		var err error
		out, err = st.Buildings().ListAll(ctx, afterID, n)
		return err
	})
	return out, err
}

func buildingID(b models.Building) int64 { return b.ID }

// runBatches selects work in keyset batches of pc.BatchSize and processes
// each batch with at most pc.Workers concurrent units. A batch finishes
// before the next one is selected. Only a selection error stops the phase.
func runBatches[T any](
	ctx context.Context,
	pc config.PhaseConfig,
	limit int,
	list func(ctx context.Context, afterID int64, n int) ([]T, error),
	id func(T) int64,
	work func(ctx context.Context, item T) services.Outcome,
) (PhaseStats, error) {
	var t tally
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return t.snapshot(), err
		}

		n := pc.BatchSize
		if limit > 0 {
			remaining := limit - t.snapshot().Selected
			if remaining <= 0 {
				break
			}
			n = min(n, remaining)
		}

		batch, err := list(ctx, afterID, n)
		if err != nil {
			return t.snapshot(), fmt.Errorf("failed to select batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		t.selected(len(batch))

		var g errgroup.Group
		g.SetLimit(pc.Workers)
		for _, item := range batch {
			g.Go(func() error {
				t.record(work(ctx, item))
				return nil
			})
		}
		_ = g.Wait()

		afterID = id(batch[len(batch)-1])
		if len(batch) < n {
			break
		}
	}
	return t.snapshot(), nil
}
