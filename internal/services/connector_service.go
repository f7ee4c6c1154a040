package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/sources"
)

// EnrichmentService applies one connector's result to one building.
type EnrichmentService interface {
	// Enrich fetches the connector's field group for b and merges it with
	// mode. The source's stamp advances on every outcome, so a failing or
	// empty source is retried only under the freshness policy.
	Enrich(ctx context.Context, b *models.Building, c sources.Connector, mode models.MergeMode) (Outcome, error)
}

type enrichmentService struct {
	store repository.Provider
	log   *logger.Logger
	opts  options
}

// NewEnrichmentService creates a new instance of EnrichmentService.
func NewEnrichmentService(store repository.Provider, log *logger.Logger, opts ...Option) EnrichmentService {
	return &enrichmentService{store: store, log: orNop(log), opts: buildOptions(opts)}
}

func (s *enrichmentService) Enrich(ctx context.Context, b *models.Building, c sources.Connector, mode models.MergeMode) (Outcome, error) {
	source := c.Source()
	fields, err := c.Fetch(ctx, b)
	now := s.opts.now()

	switch {
	case errors.Is(err, sources.ErrNoData):
		if err := stamp(ctx, s.store, b.ID, source, now); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeNoData, nil

	case err != nil:
		s.log.Warn("Source lookup failed", logger.Fields{
			"source": string(source),
			"bbl":    b.BBL,
			"error":  err.Error(),
		})
		if serr := stamp(ctx, s.store, b.ID, source, now); serr != nil {
			return OutcomeFailed, errors.Join(err, serr)
		}
		return OutcomeFailed, fmt.Errorf("failed to fetch %s: %w", source, err)
	}

	err = s.store.WithStore(ctx, func(st repository.Store) error {
		return st.Buildings().ApplyFields(ctx, b.ID, source, fields, mode, now)
	})
	if err != nil {
		s.log.Error("Failed to apply fields", err, logger.Fields{
			"source": string(source),
			"bbl":    b.BBL,
			"mode":   mode.String(),
		})
		if serr := stamp(ctx, s.store, b.ID, source, now); serr != nil {
			return OutcomeFailed, errors.Join(err, serr)
		}
		return OutcomeFailed, fmt.Errorf("failed to apply %s fields: %w", source, err)
	}
	return OutcomeEnriched, nil
}

// stamp advances only the staleness timestamp, in its own statement.
func stamp(ctx context.Context, p repository.Provider, buildingID int64, source models.Source, at time.Time) error {
	err := p.WithStore(ctx, func(st repository.Store) error {
		return st.Buildings().Stamp(ctx, buildingID, source, at)
	})
	if err != nil {
		return fmt.Errorf("failed to stamp %s: %w", source, err)
	}
	return nil
}
