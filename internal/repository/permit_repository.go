package repository

import (
	"context"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

// PermitRepository reads upstream permits and records their BBL link.
type PermitRepository interface {
	// ListUnlinked returns permits with no BBL and id > afterID, ordered by id.
	ListUnlinked(ctx context.Context, afterID int64, limit int) ([]models.Permit, error)

	// LinkBBL writes the resolved BBL onto the permit.
	LinkBBL(ctx context.Context, permitID int64, bbl string) error
}

type permitRepository struct {
	q database.DBTX
}

// NewPermitRepository creates a new instance of PermitRepository.
func NewPermitRepository(q database.DBTX) PermitRepository {
	return &permitRepository{q: q}
}

func (r *permitRepository) ListUnlinked(ctx context.Context, afterID int64, limit int) ([]models.Permit, error) {
	query := `
		SELECT id, address, borough, block, lot, bbl
		FROM permits
		WHERE bbl IS NULL AND id > $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked permits after %d: %w", afterID, err)
	}
	defer rows.Close()

	permits := []models.Permit{}
	for rows.Next() {
		var p models.Permit
		if err := rows.Scan(&p.ID, &p.Address, &p.Borough, &p.Block, &p.Lot, &p.BBL); err != nil {
			return nil, fmt.Errorf("failed to scan permit row: %w", err)
		}
		permits = append(permits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permit rows: %w", err)
	}
	return permits, nil
}

func (r *permitRepository) LinkBBL(ctx context.Context, permitID int64, bbl string) error {
	if _, err := r.q.Exec(ctx, `UPDATE permits SET bbl = $2 WHERE id = $1`, permitID, bbl); err != nil {
		return fmt.Errorf("failed to link permit %d to %s: %w", permitID, bbl, err)
	}
	return nil
}
