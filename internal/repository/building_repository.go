package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

// BuildingRepository defines data access for the building registry.
type BuildingRepository interface {
	// UpsertFromPermit creates the building for bbl if it does not exist.
	// An existing building only gains address, block and lot where they are
	// still NULL; enriched columns are never touched.
	UpsertFromPermit(ctx context.Context, bbl string, p models.Permit) (id int64, created bool, err error)

	// FindByBBL returns nil, nil when no building has the BBL.
	FindByBBL(ctx context.Context, bbl string) (*models.Building, error)

	// ListNeedingEnrichment returns buildings with id > afterID for which
	// source is due under policy, ordered by id.
	ListNeedingEnrichment(ctx context.Context, source models.Source, policy models.FreshnessPolicy, now time.Time, afterID int64, limit int) ([]models.Building, error)

	// ListAll returns buildings with id > afterID ordered by id.
	ListAll(ctx context.Context, afterID int64, limit int) ([]models.Building, error)

	// ApplyFields writes fields into the source's field group using mode and
	// sets the source's staleness stamp to at in the same statement.
	ApplyFields(ctx context.Context, id int64, source models.Source, fields models.FieldSet, mode models.MergeMode, at time.Time) error

	// Stamp sets only the source's staleness stamp.
	Stamp(ctx context.Context, id int64, source models.Source, at time.Time) error

	// CurrentOwnerNames returns the best-known owner name of every building
	// that has one.
	CurrentOwnerNames(ctx context.Context) ([]string, error)
}

type buildingRepository struct {
	q database.DBTX
}

// NewBuildingRepository creates a new instance of BuildingRepository.
func NewBuildingRepository(q database.DBTX) BuildingRepository {
	return &buildingRepository{q: q}
}

// ErrColumnNotOwned is returned when a FieldSet names a column outside the
// source's field group.
var ErrColumnNotOwned = errors.New("column not owned by source")

const buildingColumns = `id, bbl, address, block, lot,
	owner_name, building_class, land_use, zoning_district, residential_units,
	total_units, num_floors, building_area, lot_area, year_built, year_altered,
	assessed_land_value, assessed_total_value, market_value, taxpayer_name, assessment_year,
	hpd_registration_id, hpd_owner_name, hpd_owner_type, hpd_owner_address,
	hpd_violation_count, hpd_open_violation_count, hpd_complaint_count, hpd_registration_end_date,
	sale_price, sale_date, sale_recorded_date, sale_buyer, sale_seller,
	sale_percent_transferred, sale_crfn, mortgage_amount, mortgage_date,
	mortgage_lender, mortgage_crfn, is_cash_purchase, transaction_count,
	deed_count, mortgage_count, satisfaction_count, acris_document_count,
	has_tax_lien, tax_lien_month, tax_lien_water_only,
	ecb_violation_count, ecb_open_violation_count, ecb_balance_due,
	parcel_enriched_at, assessment_enriched_at, housing_enriched_at,
	transactions_enriched_at, liens_enriched_at,
	created_at, updated_at`

// buildingScanTargets lists destinations in buildingColumns order.
func buildingScanTargets(b *models.Building) []any {
	return []any{
		&b.ID, &b.BBL, &b.Address, &b.Block, &b.Lot,
		&b.OwnerName, &b.BuildingClass, &b.LandUse, &b.ZoningDistrict, &b.ResidentialUnits,
		&b.TotalUnits, &b.NumFloors, &b.BuildingArea, &b.LotArea, &b.YearBuilt, &b.YearAltered,
		&b.AssessedLandValue, &b.AssessedTotalValue, &b.MarketValue, &b.TaxpayerName, &b.AssessmentYear,
		&b.HPDRegistrationID, &b.HPDOwnerName, &b.HPDOwnerType, &b.HPDOwnerAddress,
		&b.HPDViolationCount, &b.HPDOpenViolationCount, &b.HPDComplaintCount, &b.HPDRegistrationEndDate,
		&b.SalePrice, &b.SaleDate, &b.SaleRecordedDate, &b.SaleBuyer, &b.SaleSeller,
		&b.SalePercentTransferred, &b.SaleCRFN, &b.MortgageAmount, &b.MortgageDate,
		&b.MortgageLender, &b.MortgageCRFN, &b.IsCashPurchase, &b.TransactionCount,
		&b.DeedCount, &b.MortgageCount, &b.SatisfactionCount, &b.ACRISDocumentCount,
		&b.HasTaxLien, &b.TaxLienMonth, &b.TaxLienWaterOnly,
		&b.ECBViolationCount, &b.ECBOpenViolationCount, &b.ECBBalanceDue,
		&b.ParcelEnrichedAt, &b.AssessmentEnrichedAt, &b.HousingEnrichedAt,
		&b.TransactionsEnrichedAt, &b.LiensEnrichedAt,
		&b.CreatedAt, &b.UpdatedAt,
	}
}

func (r *buildingRepository) UpsertFromPermit(ctx context.Context, bbl string, p models.Permit) (int64, bool, error) {
	query := `
		INSERT INTO buildings (bbl, address, block, lot)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (bbl) DO UPDATE SET
			address = COALESCE(buildings.address, EXCLUDED.address),
			block = COALESCE(buildings.block, EXCLUDED.block),
			lot = COALESCE(buildings.lot, EXCLUDED.lot)
		RETURNING id, (xmax = 0) AS inserted
	`

	var id int64
	var inserted bool
	if err := r.q.QueryRow(ctx, query, bbl, p.Address, p.Block, p.Lot).Scan(&id, &inserted); err != nil {
		return 0, false, fmt.Errorf("failed to upsert building %s: %w", bbl, err)
	}
	return id, inserted, nil
}

func (r *buildingRepository) FindByBBL(ctx context.Context, bbl string) (*models.Building, error) {
	query := `SELECT ` + buildingColumns + ` FROM buildings WHERE bbl = $1`

	var b models.Building
	if err := r.q.QueryRow(ctx, query, bbl).Scan(buildingScanTargets(&b)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query building %s: %w", bbl, err)
	}
	return &b, nil
}

func (r *buildingRepository) ListNeedingEnrichment(
	ctx context.Context,
	source models.Source,
	policy models.FreshnessPolicy,
	now time.Time,
	afterID int64,
	limit int,
) ([]models.Building, error) {
	stamp, marker := source.StampColumn(), source.MarkerColumn()
	if stamp == "" {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	// Mirrors models.NeedsEnrichment.
	query := fmt.Sprintf(`
		SELECT %s FROM buildings
		WHERE id > $1
		  AND (%[2]s IS NULL
		       OR %[2]s < $2
		       OR (%[3]s IS NULL AND %[2]s < $3))
		ORDER BY id
		LIMIT $4
	`, buildingColumns, stamp, marker)

	return r.list(ctx, query, afterID,
		now.Add(-policy.RefreshWindow),
		now.Add(-policy.EmptyRetryWindow),
		limit,
	)
}

func (r *buildingRepository) ListAll(ctx context.Context, afterID int64, limit int) ([]models.Building, error) {
	query := `SELECT ` + buildingColumns + ` FROM buildings WHERE id > $1 ORDER BY id LIMIT $2`
	return r.list(ctx, query, afterID, limit)
}

func (r *buildingRepository) list(ctx context.Context, query string, args ...any) ([]models.Building, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buildings: %w", err)
	}
	defer rows.Close()

	results := []models.Building{}
	for rows.Next() {
		var b models.Building
		if err := rows.Scan(buildingScanTargets(&b)...); err != nil {
			return nil, fmt.Errorf("failed to scan building row: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating building rows: %w", err)
	}
	return results, nil
}

func (r *buildingRepository) ApplyFields(
	ctx context.Context,
	id int64,
	source models.Source,
	fields models.FieldSet,
	mode models.MergeMode,
	at time.Time,
) error {
	query, args, err := buildApplyFields(id, source, fields, mode, at)
	if err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to apply %s fields to building %d: %w", source, id, err)
	}
	return nil
}

// buildApplyFields renders the UPDATE for ApplyFields. Columns are sorted so
// the statement text is stable for a given field set.
func buildApplyFields(id int64, source models.Source, fields models.FieldSet, mode models.MergeMode, at time.Time) (string, []any, error) {
	stamp := source.StampColumn()
	if stamp == "" {
		return "", nil, fmt.Errorf("unknown source %q", source)
	}

	columns := make([]string, 0, len(fields))
	for col := range fields {
		if !source.Owns(col) {
			return "", nil, fmt.Errorf("%w: %s does not own %s", ErrColumnNotOwned, source, col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	args := []any{id, at}
	sets := make([]string, 0, len(columns)+2)
	for _, col := range columns {
		if fields[col] == models.Cleared {
			sets = append(sets, col+" = NULL")
			continue
		}
		args = append(args, fields[col])
		ph := fmt.Sprintf("$%d", len(args))
		switch mode {
		case models.MergeFillNulls:
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, %s)", col, col, ph))
		case models.MergeRefresh:
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, %s)", col, ph, col))
		default:
			sets = append(sets, fmt.Sprintf("%s = %s", col, ph))
		}
	}
	sets = append(sets, stamp+" = $2", "updated_at = NOW()")

	query := "UPDATE buildings SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	return query, args, nil
}

func (r *buildingRepository) Stamp(ctx context.Context, id int64, source models.Source, at time.Time) error {
	stamp := source.StampColumn()
	if stamp == "" {
		return fmt.Errorf("unknown source %q", source)
	}

	query := "UPDATE buildings SET " + stamp + " = $2, updated_at = NOW() WHERE id = $1"
	if _, err := r.q.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to stamp %s on building %d: %w", source, id, err)
	}
	return nil
}

func (r *buildingRepository) CurrentOwnerNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT owner FROM (
			SELECT COALESCE(NULLIF(sale_buyer, ''), NULLIF(owner_name, ''), NULLIF(hpd_owner_name, '')) AS owner
			FROM buildings
		) o
		WHERE owner IS NOT NULL
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query owner names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan owner name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owner names: %w", err)
	}
	return names, nil
}
