package services

import (
	"context"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/scoring"
)

// ScorerService recomputes the intelligence row of a building.
type ScorerService interface {
	// LoadOwnerIndex counts buildings per normalised owner across the registry.
	LoadOwnerIndex(ctx context.Context) (scoring.OwnerIndex, error)

	// ScoreBuilding scores b from its stored ledger and overwrites its row.
	ScoreBuilding(ctx context.Context, b *models.Building, owners scoring.OwnerIndex) (*models.Intelligence, error)
}

type scorerService struct {
	store   repository.Provider
	weights scoring.Weights
	log     *logger.Logger
	opts    options
}

// NewScorerService creates a new instance of ScorerService.
func NewScorerService(store repository.Provider, weights scoring.Weights, log *logger.Logger, opts ...Option) ScorerService {
	return &scorerService{store: store, weights: weights, log: orNop(log), opts: buildOptions(opts)}
}

func (s *scorerService) LoadOwnerIndex(ctx context.Context) (scoring.OwnerIndex, error) {
	var names []string
	err := s.store.WithStore(ctx, func(st repository.Store) error {
		var err error
		names, err = st.Buildings().CurrentOwnerNames(ctx)
		return err
	})
	if err != nil {
		s.log.Error("Failed to load owner names", err, nil)
		return nil, fmt.Errorf("failed to load owner names: %w", err)
	}

	idx := scoring.NewOwnerIndex(names)
	s.log.Info("Owner index loaded", logger.Fields{
		"buildings": len(names),
		"owners":    len(idx),
	})
	return idx, nil
}

func (s *scorerService) ScoreBuilding(ctx context.Context, b *models.Building, owners scoring.OwnerIndex) (*models.Intelligence, error) {
	var out models.Intelligence
	err := s.store.WithStore(ctx, func(st repository.Store) error {
		txns, err := st.Transactions().ListForBuilding(ctx, b.ID)
		if err != nil {
			return err
		}
		out = scoring.Score(scoring.Input{
			Building:     b,
			Transactions: txns,
			OwnerCount:   owners.Count(b.CurrentOwner()),
		}, s.weights, s.opts.now())
		return st.Intelligence().Upsert(ctx, out)
	})
	if err != nil {
		s.log.Warn("Scoring failed", logger.Fields{"bbl": b.BBL, "error": err.Error()})
		return nil, fmt.Errorf("failed to score building %s: %w", b.BBL, err)
	}
	return &out, nil
}
