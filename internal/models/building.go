package models

import (
	"time"
)

// Building is the canonical property entity, one row per BBL.
// Nullable columns use pointers so "never enriched" stays distinguishable
// from a zero value returned by a source.
type Building struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Address *string `json:"address,omitempty"`
	Block   *string `json:"block,omitempty"`
	Lot     *string `json:"lot,omitempty"`
	BBL     string  `json:"bbl"`

	// Parcel characteristics
	OwnerName        *string  `json:"ownerName,omitempty"`
	BuildingClass    *string  `json:"buildingClass,omitempty"`
	LandUse          *string  `json:"landUse,omitempty"`
	ZoningDistrict   *string  `json:"zoningDistrict,omitempty"`
	ResidentialUnits *int     `json:"residentialUnits,omitempty"`
	TotalUnits       *int     `json:"totalUnits,omitempty"`
	NumFloors        *float64 `json:"numFloors,omitempty"`
	BuildingArea     *int     `json:"buildingArea,omitempty"`
	LotArea          *int     `json:"lotArea,omitempty"`
	YearBuilt        *int     `json:"yearBuilt,omitempty"`
	YearAltered      *int     `json:"yearAltered,omitempty"`

	// Tax assessment
	AssessedLandValue  *float64 `json:"assessedLandValue,omitempty"`
	AssessedTotalValue *float64 `json:"assessedTotalValue,omitempty"`
	MarketValue        *float64 `json:"marketValue,omitempty"`
	TaxpayerName       *string  `json:"taxpayerName,omitempty"`
	AssessmentYear     *string  `json:"assessmentYear,omitempty"`

	// Housing registration
	HPDRegistrationID      *string    `json:"hpdRegistrationId,omitempty"`
	HPDOwnerName           *string    `json:"hpdOwnerName,omitempty"`
	HPDOwnerType           *string    `json:"hpdOwnerType,omitempty"`
	HPDOwnerAddress        *string    `json:"hpdOwnerAddress,omitempty"`
	HPDViolationCount      *int       `json:"hpdViolationCount,omitempty"`
	HPDOpenViolationCount  *int       `json:"hpdOpenViolationCount,omitempty"`
	HPDComplaintCount      *int       `json:"hpdComplaintCount,omitempty"`
	HPDRegistrationEndDate *time.Time `json:"hpdRegistrationEndDate,omitempty"`

	// Transaction summary
	SalePrice              *float64   `json:"salePrice,omitempty"`
	SaleDate               *time.Time `json:"saleDate,omitempty"`
	SaleRecordedDate       *time.Time `json:"saleRecordedDate,omitempty"`
	SaleBuyer              *string    `json:"saleBuyer,omitempty"`
	SaleSeller             *string    `json:"saleSeller,omitempty"`
	SalePercentTransferred *float64   `json:"salePercentTransferred,omitempty"`
	SaleCRFN               *string    `json:"saleCrfn,omitempty"`
	MortgageAmount         *float64   `json:"mortgageAmount,omitempty"`
	MortgageDate           *time.Time `json:"mortgageDate,omitempty"`
	MortgageLender         *string    `json:"mortgageLender,omitempty"`
	MortgageCRFN           *string    `json:"mortgageCrfn,omitempty"`
	IsCashPurchase         *bool      `json:"isCashPurchase,omitempty"`
	TransactionCount       *int       `json:"transactionCount,omitempty"`
	DeedCount              *int       `json:"deedCount,omitempty"`
	MortgageCount          *int       `json:"mortgageCount,omitempty"`
	SatisfactionCount      *int       `json:"satisfactionCount,omitempty"`
	// Distinct ids in the legal index at the last extraction, including
	// documents without a master record.
	ACRISDocumentCount *int `json:"acrisDocumentCount,omitempty"`

	// Tax lien and ECB violations
	HasTaxLien            *bool    `json:"hasTaxLien,omitempty"`
	TaxLienMonth          *string  `json:"taxLienMonth,omitempty"`
	TaxLienWaterOnly      *bool    `json:"taxLienWaterOnly,omitempty"`
	ECBViolationCount     *int     `json:"ecbViolationCount,omitempty"`
	ECBOpenViolationCount *int     `json:"ecbOpenViolationCount,omitempty"`
	ECBBalanceDue         *float64 `json:"ecbBalanceDue,omitempty"`

	// Per-source staleness
	ParcelEnrichedAt       *time.Time `json:"parcelEnrichedAt,omitempty"`
	AssessmentEnrichedAt   *time.Time `json:"assessmentEnrichedAt,omitempty"`
	HousingEnrichedAt      *time.Time `json:"housingEnrichedAt,omitempty"`
	TransactionsEnrichedAt *time.Time `json:"transactionsEnrichedAt,omitempty"`
	LiensEnrichedAt        *time.Time `json:"liensEnrichedAt,omitempty"`

	ID int64 `json:"id"`
}

// CurrentOwner picks the best-known owner name: the latest deed buyer,
// then the parcel owner, then the HPD registered owner.
func (b *Building) CurrentOwner() string {
	for _, name := range []*string{b.SaleBuyer, b.OwnerName, b.HPDOwnerName} {
		if name != nil && *name != "" {
			return *name
		}
	}
	return ""
}

// FieldSet is a partial column -> value update for one source's field group.
// An absent key means "no value from the source". Cleared marks a value the
// source reports as no longer applying.
type FieldSet map[string]interface{}

type clearedValue struct{}

// Cleared is stored by FieldSet.Clear. It becomes NULL in every merge mode.
var Cleared = clearedValue{}

// Clear records that column no longer has a value at the source.
func (f FieldSet) Clear(column string) {
	f[column] = Cleared
}

// Set stores v under column unless v is a nil pointer.
func (f FieldSet) Set(column string, v interface{}) {
	switch p := v.(type) {
	case nil:
		return
	case *string:
		if p == nil {
			return
		}
		f[column] = *p
	case *int:
		if p == nil {
			return
		}
		f[column] = *p
	case *float64:
		if p == nil {
			return
		}
		f[column] = *p
	case *bool:
		if p == nil {
			return
		}
		f[column] = *p
	case *time.Time:
		if p == nil {
			return
		}
		f[column] = *p
	default:
		f[column] = v
	}
}

// Permit is the upstream permit row. Only its bbl link is written here.
type Permit struct {
	BBL     *string `json:"bbl,omitempty"`
	Address string  `json:"address"`
	Borough string  `json:"borough"`
	Block   string  `json:"block"`
	Lot     string  `json:"lot"`
	ID      int64   `json:"id"`
}
