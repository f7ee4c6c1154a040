package models

import (
	"fmt"
	"time"
)

// Source identifies an enrichment source and the Building field group it owns.
type Source string

const (
	SourceParcel       Source = "parcel"
	SourceAssessment   Source = "assessment"
	SourceHousing      Source = "housing"
	SourceTransactions Source = "transactions"
	SourceLiens        Source = "liens"
)

// AllSources lists sources in pipeline order.
var AllSources = []Source{SourceParcel, SourceAssessment, SourceHousing, SourceTransactions, SourceLiens}

type sourceLayout struct {
	stampColumn  string
	markerColumn string
	columns      []string
	stamp        func(b *Building) *time.Time
	hasMarker    func(b *Building) bool
}

var sourceLayouts = map[Source]sourceLayout{
	SourceParcel: {
		stampColumn:  "parcel_enriched_at",
		markerColumn: "owner_name",
		columns: []string{
			"owner_name", "building_class", "land_use", "zoning_district",
			"residential_units", "total_units", "num_floors", "building_area",
			"lot_area", "year_built", "year_altered",
		},
		stamp:     func(b *Building) *time.Time { return b.ParcelEnrichedAt },
		hasMarker: func(b *Building) bool { return b.OwnerName != nil },
	},
	SourceAssessment: {
		stampColumn:  "assessment_enriched_at",
		markerColumn: "assessed_total_value",
		columns: []string{
			"assessed_land_value", "assessed_total_value", "market_value",
			"taxpayer_name", "assessment_year",
		},
		stamp:     func(b *Building) *time.Time { return b.AssessmentEnrichedAt },
		hasMarker: func(b *Building) bool { return b.AssessedTotalValue != nil },
	},
	SourceHousing: {
		stampColumn:  "housing_enriched_at",
		markerColumn: "hpd_registration_id",
		columns: []string{
			"hpd_registration_id", "hpd_owner_name", "hpd_owner_type", "hpd_owner_address",
			"hpd_violation_count", "hpd_open_violation_count", "hpd_complaint_count",
			"hpd_registration_end_date",
		},
		stamp:     func(b *Building) *time.Time { return b.HousingEnrichedAt },
		hasMarker: func(b *Building) bool { return b.HPDRegistrationID != nil },
	},
	SourceTransactions: {
		stampColumn:  "transactions_enriched_at",
		markerColumn: "transaction_count",
		columns: []string{
			"sale_price", "sale_date", "sale_recorded_date", "sale_buyer", "sale_seller",
			"sale_percent_transferred", "sale_crfn", "mortgage_amount", "mortgage_date",
			"mortgage_lender", "mortgage_crfn", "is_cash_purchase", "transaction_count",
			"deed_count", "mortgage_count", "satisfaction_count", "acris_document_count",
		},
		stamp:     func(b *Building) *time.Time { return b.TransactionsEnrichedAt },
		hasMarker: func(b *Building) bool { return b.TransactionCount != nil },
	},
	SourceLiens: {
		stampColumn:  "liens_enriched_at",
		markerColumn: "has_tax_lien",
		columns: []string{
			"has_tax_lien", "tax_lien_month", "tax_lien_water_only",
			"ecb_violation_count", "ecb_open_violation_count", "ecb_balance_due",
		},
		stamp:     func(b *Building) *time.Time { return b.LiensEnrichedAt },
		hasMarker: func(b *Building) bool { return b.HasTaxLien != nil },
	},
}

// ParseSource converts a name into a Source.
func ParseSource(name string) (Source, error) {
	s := Source(name)
	if _, ok := sourceLayouts[s]; !ok {
		return "", fmt.Errorf("unknown source %q", name)
	}
	return s, nil
}

// StampColumn is the staleness timestamp column for the source.
func (s Source) StampColumn() string { return sourceLayouts[s].stampColumn }

// MarkerColumn is the column whose NULL means the source never produced data.
func (s Source) MarkerColumn() string { return sourceLayouts[s].markerColumn }

// Columns are the Building columns owned by the source.
func (s Source) Columns() []string { return sourceLayouts[s].columns }

// Owns reports whether column belongs to the source's field group.
func (s Source) Owns(column string) bool {
	for _, c := range sourceLayouts[s].columns {
		if c == column {
			return true
		}
	}
	return false
}

// FreshnessPolicy controls when a source is due for a building.
type FreshnessPolicy struct {
	// RefreshWindow is the maximum age of a successful enrichment.
	RefreshWindow time.Duration
	// EmptyRetryWindow is how long to wait before retrying a source that
	// has never yielded data for the building.
	EmptyRetryWindow time.Duration
}

// DefaultFreshnessPolicy returns the 30 day / 24 hour defaults.
func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{
		RefreshWindow:    30 * 24 * time.Hour,
		EmptyRetryWindow: 24 * time.Hour,
	}
}

// NeedsEnrichment is the single scheduling rule for every connector. A source
// that was never attempted or whose stamp is past the refresh window is due.
// A source with no data yet is retried once the empty-retry window passes.
func NeedsEnrichment(b *Building, s Source, p FreshnessPolicy, now time.Time) bool {
	layout, ok := sourceLayouts[s]
	if !ok || b == nil {
		return false
	}

	stamp := layout.stamp(b)
	if stamp == nil {
		return true
	}
	age := now.Sub(*stamp)
	if age > p.RefreshWindow {
		return true
	}
	return !layout.hasMarker(b) && age > p.EmptyRetryWindow
}

// MergeMode selects how a connector's values combine with stored values.
type MergeMode int

const (
	// MergeFillNulls writes a value only where the column is currently NULL.
	MergeFillNulls MergeMode = iota
	// MergeRefresh replaces stored values with fresh non-nil values.
	MergeRefresh
	// MergeReplace assigns the values unconditionally.
	MergeReplace
)

// String returns the mode name used in logs.
func (m MergeMode) String() string {
	switch m {
	case MergeFillNulls:
		return "fill_nulls"
	case MergeRefresh:
		return "refresh"
	case MergeReplace:
		return "replace"
	default:
		return "unknown"
	}
}
