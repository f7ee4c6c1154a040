package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
)

// Service-level errors
var (
	ErrUnresolvableBBL  = errors.New("permit has no resolvable bbl")
	ErrInvalidBBL       = errors.New("bbl must be 10 digits starting with a borough code 1-5")
	ErrBuildingNotFound = errors.New("building not found")
)

// BuildingDetail is a building with its latest scores.
type BuildingDetail struct {
	Building     *models.Building     `json:"building"`
	Intelligence *models.Intelligence `json:"intelligence,omitempty"`
}

// RegistryService links permits to buildings and reads the registry.
type RegistryService interface {
	// LinkPermit resolves the permit's BBL, creates the building if needed and
	// writes the BBL onto the permit, all in one transaction.
	// Returns ErrUnresolvableBBL when the permit's borough/block/lot do not
	// form a valid BBL; the permit is left unlinked.
	LinkPermit(ctx context.Context, p models.Permit) (Outcome, error)

	// GetBuilding returns the building and its intelligence row.
	// Returns ErrInvalidBBL or ErrBuildingNotFound.
	GetBuilding(ctx context.Context, id string) (*BuildingDetail, error)
}

type registryService struct {
	store repository.Provider
	log   *logger.Logger
}

// NewRegistryService creates a new instance of RegistryService.
func NewRegistryService(store repository.Provider, log *logger.Logger) RegistryService {
	return &registryService{store: store, log: orNop(log)}
}

func (s *registryService) LinkPermit(ctx context.Context, p models.Permit) (Outcome, error) {
	id, ok := bbl.Resolve(p.Borough, p.Block, p.Lot)
	if !ok {
		s.log.Debug("Permit has no resolvable BBL", logger.Fields{
			"permit_id": p.ID,
			"borough":   p.Borough,
			"block":     p.Block,
			"lot":       p.Lot,
		})
		return OutcomeNoData, ErrUnresolvableBBL
	}

	var created bool
	err := s.store.WithStore(ctx, func(st repository.Store) error {
		return st.InTx(ctx, func(tx repository.Store) error {
			var err error
			if _, created, err = tx.Buildings().UpsertFromPermit(ctx, id, p); err != nil {
				return err
			}
			return tx.Permits().LinkBBL(ctx, p.ID, id)
		})
	})
	if err != nil {
		s.log.Error("Failed to link permit", err, logger.Fields{
			"permit_id": p.ID,
			"bbl":       id,
		})
		return OutcomeFailed, fmt.Errorf("failed to link permit %d: %w", p.ID, err)
	}

	if created {
		s.log.Debug("Building created", logger.Fields{"bbl": id, "permit_id": p.ID})
		return OutcomeEnriched, nil
	}
	return OutcomeUnchanged, nil
}

func (s *registryService) GetBuilding(ctx context.Context, id string) (*BuildingDetail, error) {
	if !bbl.Valid(id) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidBBL, id)
	}

	var detail *BuildingDetail
	err := s.store.WithStore(ctx, func(st repository.Store) error {
		b, err := st.Buildings().FindByBBL(ctx, id)
		if err != nil || b == nil {
			return err
		}
		in, err := st.Intelligence().FindByBuilding(ctx, b.ID)
		if err != nil {
			return err
		}
		detail = &BuildingDetail{Building: b, Intelligence: in}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to load building", err, logger.Fields{"bbl": id})
		return nil, fmt.Errorf("failed to load building: %w", err)
	}

	// Repository returns nil, nil when no building found - transform to domain error
	if detail == nil {
		return nil, ErrBuildingNotFound
	}
	return detail, nil
}
