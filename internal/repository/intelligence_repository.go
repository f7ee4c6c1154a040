package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

// IntelligenceRepository stores the derived score row of each building.
type IntelligenceRepository interface {
	// Upsert replaces the building's score row.
	Upsert(ctx context.Context, in models.Intelligence) error

	// FindByBuilding returns nil, nil when the building was never scored.
	FindByBuilding(ctx context.Context, buildingID int64) (*models.Intelligence, error)
}

type intelligenceRepository struct {
	q database.DBTX
}

// NewIntelligenceRepository creates a new instance of IntelligenceRepository.
func NewIntelligenceRepository(q database.DBTX) IntelligenceRepository {
	return &intelligenceRepository{q: q}
}

func (r *intelligenceRepository) Upsert(ctx context.Context, in models.Intelligence) error {
	query := `
		INSERT INTO building_intelligence (
			building_id, flip_score, is_likely_flipper, deed_count, recent_deed_count,
			sale_velocity_months, days_since_last_sale, is_cash_investor, is_heavy_leverage,
			loan_to_value, equity_percentage, appreciation_amount, appreciation_percent,
			price_per_sqft, has_seller_address, has_lender_info, multi_property_owner,
			lead_score, lead_priority, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (building_id) DO UPDATE SET
			flip_score = EXCLUDED.flip_score,
			is_likely_flipper = EXCLUDED.is_likely_flipper,
			deed_count = EXCLUDED.deed_count,
			recent_deed_count = EXCLUDED.recent_deed_count,
			sale_velocity_months = EXCLUDED.sale_velocity_months,
			days_since_last_sale = EXCLUDED.days_since_last_sale,
			is_cash_investor = EXCLUDED.is_cash_investor,
			is_heavy_leverage = EXCLUDED.is_heavy_leverage,
			loan_to_value = EXCLUDED.loan_to_value,
			equity_percentage = EXCLUDED.equity_percentage,
			appreciation_amount = EXCLUDED.appreciation_amount,
			appreciation_percent = EXCLUDED.appreciation_percent,
			price_per_sqft = EXCLUDED.price_per_sqft,
			has_seller_address = EXCLUDED.has_seller_address,
			has_lender_info = EXCLUDED.has_lender_info,
			multi_property_owner = EXCLUDED.multi_property_owner,
			lead_score = EXCLUDED.lead_score,
			lead_priority = EXCLUDED.lead_priority,
			computed_at = EXCLUDED.computed_at
	`

	_, err := r.q.Exec(ctx, query,
		in.BuildingID, in.FlipScore, in.IsLikelyFlipper, in.DeedCount, in.RecentDeedCount,
		in.SaleVelocityMonths, in.DaysSinceLastSale, in.IsCashInvestor, in.IsHeavyLeverage,
		in.LoanToValue, in.EquityPercentage, in.AppreciationAmount, in.AppreciationPercent,
		in.PricePerSqft, in.HasSellerAddress, in.HasLenderInfo, in.MultiPropertyOwner,
		in.LeadScore, in.LeadPriority, in.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert intelligence for building %d: %w", in.BuildingID, err)
	}
	return nil
}

func (r *intelligenceRepository) FindByBuilding(ctx context.Context, buildingID int64) (*models.Intelligence, error) {
	query := `
		SELECT i.building_id, b.bbl, i.flip_score, i.is_likely_flipper, i.deed_count,
		       i.recent_deed_count, i.sale_velocity_months, i.days_since_last_sale,
		       i.is_cash_investor, i.is_heavy_leverage, i.loan_to_value, i.equity_percentage,
		       i.appreciation_amount, i.appreciation_percent, i.price_per_sqft,
		       i.has_seller_address, i.has_lender_info, i.multi_property_owner,
		       i.lead_score, i.lead_priority, i.computed_at
		FROM building_intelligence i
		JOIN buildings b ON b.id = i.building_id
		WHERE i.building_id = $1
	`

	var in models.Intelligence
	err := r.q.QueryRow(ctx, query, buildingID).Scan(
		&in.BuildingID, &in.BBL, &in.FlipScore, &in.IsLikelyFlipper, &in.DeedCount,
		&in.RecentDeedCount, &in.SaleVelocityMonths, &in.DaysSinceLastSale,
		&in.IsCashInvestor, &in.IsHeavyLeverage, &in.LoanToValue, &in.EquityPercentage,
		&in.AppreciationAmount, &in.AppreciationPercent, &in.PricePerSqft,
		&in.HasSellerAddress, &in.HasLenderInfo, &in.MultiPropertyOwner,
		&in.LeadScore, &in.LeadPriority, &in.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query intelligence for building %d: %w", buildingID, err)
	}
	return &in, nil
}
