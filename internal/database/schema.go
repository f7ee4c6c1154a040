package database

import (
	"context"
	"fmt"
)

// schemaStatements create the registry tables. Every statement is idempotent
// so Migrate can run before each pipeline invocation.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS permits (
		id BIGSERIAL PRIMARY KEY,
		address TEXT NOT NULL DEFAULT '',
		borough TEXT NOT NULL DEFAULT '',
		block TEXT NOT NULL DEFAULT '',
		lot TEXT NOT NULL DEFAULT '',
		bbl CHAR(10)
	)`,
	`ALTER TABLE permits ADD COLUMN IF NOT EXISTS bbl CHAR(10)`,
	`CREATE INDEX IF NOT EXISTS idx_permits_bbl ON permits (bbl)`,

	`CREATE TABLE IF NOT EXISTS buildings (
		id BIGSERIAL PRIMARY KEY,
		bbl CHAR(10) NOT NULL UNIQUE CHECK (bbl ~ '^[1-5][0-9]{9}$'),
		address TEXT,
		block TEXT,
		lot TEXT,

		owner_name TEXT,
		building_class TEXT,
		land_use TEXT,
		zoning_district TEXT,
		residential_units INTEGER,
		total_units INTEGER,
		num_floors DOUBLE PRECISION,
		building_area INTEGER,
		lot_area INTEGER,
		year_built INTEGER,
		year_altered INTEGER,

		assessed_land_value DOUBLE PRECISION,
		assessed_total_value DOUBLE PRECISION,
		market_value DOUBLE PRECISION,
		taxpayer_name TEXT,
		assessment_year TEXT,

		hpd_registration_id TEXT,
		hpd_owner_name TEXT,
		hpd_owner_type TEXT,
		hpd_owner_address TEXT,
		hpd_violation_count INTEGER,
		hpd_open_violation_count INTEGER,
		hpd_complaint_count INTEGER,
		hpd_registration_end_date TIMESTAMPTZ,

		sale_price DOUBLE PRECISION,
		sale_date TIMESTAMPTZ,
		sale_recorded_date TIMESTAMPTZ,
		sale_buyer TEXT,
		sale_seller TEXT,
		sale_percent_transferred DOUBLE PRECISION,
		sale_crfn TEXT,
		mortgage_amount DOUBLE PRECISION,
		mortgage_date TIMESTAMPTZ,
		mortgage_lender TEXT,
		mortgage_crfn TEXT,
		is_cash_purchase BOOLEAN,
		transaction_count INTEGER,
		deed_count INTEGER,
		mortgage_count INTEGER,
		satisfaction_count INTEGER,
		acris_document_count INTEGER,

		has_tax_lien BOOLEAN,
		tax_lien_month TEXT,
		tax_lien_water_only BOOLEAN,
		ecb_violation_count INTEGER,
		ecb_open_violation_count INTEGER,
		ecb_balance_due DOUBLE PRECISION,

		parcel_enriched_at TIMESTAMPTZ,
		assessment_enriched_at TIMESTAMPTZ,
		housing_enriched_at TIMESTAMPTZ,
		transactions_enriched_at TIMESTAMPTZ,
		liens_enriched_at TIMESTAMPTZ,

		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE buildings ADD COLUMN IF NOT EXISTS acris_document_count INTEGER`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		building_id BIGINT NOT NULL REFERENCES buildings(id) ON DELETE CASCADE,
		document_id TEXT NOT NULL,
		doc_type TEXT NOT NULL DEFAULT '',
		doc_class TEXT NOT NULL DEFAULT 'other',
		amount DOUBLE PRECISION,
		document_date TIMESTAMPTZ,
		recorded_date TIMESTAMPTZ,
		crfn TEXT,
		percent_transferred DOUBLE PRECISION,
		is_primary_deed BOOLEAN NOT NULL DEFAULT FALSE,
		is_primary_mortgage BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (building_id, document_id)
	)`,

	`CREATE TABLE IF NOT EXISTS transaction_parties (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		address JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transaction_parties_transaction ON transaction_parties (transaction_id)`,

	`CREATE TABLE IF NOT EXISTS building_intelligence (
		building_id BIGINT PRIMARY KEY REFERENCES buildings(id) ON DELETE CASCADE,
		flip_score INTEGER NOT NULL,
		is_likely_flipper BOOLEAN NOT NULL,
		deed_count INTEGER NOT NULL,
		recent_deed_count INTEGER NOT NULL,
		sale_velocity_months DOUBLE PRECISION,
		days_since_last_sale INTEGER,
		is_cash_investor BOOLEAN NOT NULL,
		is_heavy_leverage BOOLEAN NOT NULL,
		loan_to_value DOUBLE PRECISION,
		equity_percentage DOUBLE PRECISION,
		appreciation_amount DOUBLE PRECISION,
		appreciation_percent DOUBLE PRECISION,
		price_per_sqft DOUBLE PRECISION,
		has_seller_address BOOLEAN NOT NULL,
		has_lender_info BOOLEAN NOT NULL,
		multi_property_owner BOOLEAN NOT NULL,
		lead_score INTEGER NOT NULL CHECK (lead_score BETWEEN 0 AND 100),
		lead_priority TEXT NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates or upgrades the schema.
func Migrate(ctx context.Context, q DBTX) error {
	for i, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
