package models

import (
	"time"
)

// DocClass is the classification of a recorded document type.
type DocClass string

const (
	DocClassDeed         DocClass = "deed"
	DocClassMortgage     DocClass = "mortgage"
	DocClassSatisfaction DocClass = "satisfaction"
	DocClassOther        DocClass = "other"
)

// PartyRole is the role a named party plays on a document.
type PartyRole string

const (
	RoleBuyer    PartyRole = "buyer"
	RoleSeller   PartyRole = "seller"
	RoleLender   PartyRole = "lender"
	RoleBorrower PartyRole = "borrower"
	RoleOther    PartyRole = "other"
)

// Transaction is one recorded document that references a Building.
// (BuildingID, DocumentID) is unique.
type Transaction struct {
	DocumentDate       *time.Time `json:"documentDate,omitempty"`
	RecordedDate       *time.Time `json:"recordedDate,omitempty"`
	Amount             *float64   `json:"amount,omitempty"`
	PercentTransferred *float64   `json:"percentTransferred,omitempty"`
	CRFN               *string    `json:"crfn,omitempty"`
	DocumentID         string     `json:"documentId"`
	DocType            string     `json:"docType"`
	Class              DocClass   `json:"class"`
	Parties            []Party    `json:"parties,omitempty"`
	ID                 int64      `json:"id"`
	BuildingID         int64      `json:"buildingId"`
	IsPrimaryDeed      bool       `json:"isPrimaryDeed"`
	IsPrimaryMortgage  bool       `json:"isPrimaryMortgage"`
}

// PartiesWithRole returns the parties having role, in recorded order.
func (t *Transaction) PartiesWithRole(role PartyRole) []Party {
	var out []Party
	for _, p := range t.Parties {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// FirstPartyName returns the first named party with role, or nil.
func (t *Transaction) FirstPartyName(role PartyRole) *string {
	for _, p := range t.Parties {
		if p.Role == role && p.Name != "" {
			name := p.Name
			return &name
		}
	}
	return nil
}

// Party is a named buyer, seller, lender or borrower on a Transaction.
type Party struct {
	Address       MailingAddress `json:"address"`
	Name          string         `json:"name"`
	Role          PartyRole      `json:"role"`
	ID            int64          `json:"id"`
	TransactionID int64          `json:"transactionId"`
}

// Intelligence holds the derived scores for one Building. The row is fully
// recomputed on every scoring run.
type Intelligence struct {
	ComputedAt time.Time `json:"computedAt"`

	SaleVelocityMonths  *float64 `json:"saleVelocityMonths,omitempty"`
	DaysSinceLastSale   *int     `json:"daysSinceLastSale,omitempty"`
	LoanToValue         *float64 `json:"loanToValue,omitempty"`
	EquityPercentage    *float64 `json:"equityPercentage,omitempty"`
	AppreciationAmount  *float64 `json:"appreciationAmount,omitempty"`
	AppreciationPercent *float64 `json:"appreciationPercent,omitempty"`
	PricePerSqft        *float64 `json:"pricePerSqft,omitempty"`

	LeadPriority string `json:"leadPriority"`
	BBL          string `json:"bbl"`

	BuildingID         int64 `json:"buildingId"`
	FlipScore          int   `json:"flipScore"`
	LeadScore          int   `json:"leadScore"`
	DeedCount          int   `json:"deedCount"`
	RecentDeedCount    int   `json:"recentDeedCount"`
	IsLikelyFlipper    bool  `json:"isLikelyFlipper"`
	IsCashInvestor     bool  `json:"isCashInvestor"`
	IsHeavyLeverage    bool  `json:"isHeavyLeverage"`
	HasSellerAddress   bool  `json:"hasSellerAddress"`
	HasLenderInfo      bool  `json:"hasLenderInfo"`
	MultiPropertyOwner bool  `json:"multiPropertyOwner"`
}

// Lead priority buckets.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)
