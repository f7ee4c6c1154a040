// Package ledger classifies recorded documents and derives the transaction
// summary written onto a Building.
package ledger

import (
	"strings"
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

// CashWindow is the maximum distance between the primary deed and the
// nearest mortgage for the purchase to count as financed.
const CashWindow = 30 * 24 * time.Hour

// Classify maps a recorded document type onto a DocClass.
func Classify(docType string) models.DocClass {
	t := strings.ToUpper(strings.TrimSpace(docType))
	switch {
	case t == "SAT" || t == "SATS" || strings.HasPrefix(t, "SAT "):
		return models.DocClassSatisfaction
	case strings.Contains(t, "MTGE"):
		return models.DocClassMortgage
	case strings.Contains(t, "DEED"):
		return models.DocClassDeed
	default:
		return models.DocClassOther
	}
}

// RoleFor maps a party type code (1 or 2) to a role for the document class.
func RoleFor(class models.DocClass, partyType string) models.PartyRole {
	code := strings.TrimSpace(partyType)
	switch class {
	case models.DocClassDeed:
		switch code {
		case "1":
			return models.RoleSeller
		case "2":
			return models.RoleBuyer
		}
	case models.DocClassMortgage:
		switch code {
		case "1":
			return models.RoleBorrower
		case "2":
			return models.RoleLender
		}
	case models.DocClassSatisfaction:
		switch code {
		case "1":
			return models.RoleLender
		case "2":
			return models.RoleBorrower
		}
	}
	return models.RoleOther
}

// Summary is the per-building digest of a ledger.
type Summary struct {
	PrimaryDeed       *models.Transaction
	PrimaryMortgage   *models.Transaction
	IsCashPurchase    *bool
	TransactionCount  int
	DeedCount         int
	MortgageCount     int
	SatisfactionCount int
}

// Summarize selects the primary deed and mortgage, marks them in txns and
// infers whether the primary purchase was cash.
func Summarize(txns []models.Transaction) Summary {
	s := Summary{TransactionCount: len(txns)}

	deed, mortgage := -1, -1
	for i := range txns {
		txns[i].IsPrimaryDeed = false
		txns[i].IsPrimaryMortgage = false

		switch txns[i].Class {
		case models.DocClassDeed:
			s.DeedCount++
			if deed < 0 || Later(&txns[i], &txns[deed]) {
				deed = i
			}
		case models.DocClassMortgage:
			s.MortgageCount++
			if mortgage < 0 || Later(&txns[i], &txns[mortgage]) {
				mortgage = i
			}
		case models.DocClassSatisfaction:
			s.SatisfactionCount++
		}
	}

	if deed >= 0 {
		txns[deed].IsPrimaryDeed = true
		s.PrimaryDeed = &txns[deed]
	}
	if mortgage >= 0 {
		txns[mortgage].IsPrimaryMortgage = true
		s.PrimaryMortgage = &txns[mortgage]
	}
	s.IsCashPurchase = inferCash(s.PrimaryDeed, txns)
	return s
}

// Later reports whether a sorts after b: the later document date wins, then
// the later recorded date, then the higher document id. A missing date
// loses to any present date.
func Later(a, b *models.Transaction) bool {
	if c := compareDates(a.DocumentDate, b.DocumentDate); c != 0 {
		return c > 0
	}
	if c := compareDates(a.RecordedDate, b.RecordedDate); c != 0 {
		return c > 0
	}
	return a.DocumentID > b.DocumentID
}

func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.After(*b):
		return 1
	case a.Before(*b):
		return -1
	default:
		return 0
	}
}

// inferCash is nil when there is no primary deed or the answer cannot be
// computed from the dates on file.
func inferCash(deed *models.Transaction, txns []models.Transaction) *bool {
	if deed == nil {
		return nil
	}

	var mortgages []*models.Transaction
	for i := range txns {
		if txns[i].Class == models.DocClassMortgage {
			mortgages = append(mortgages, &txns[i])
		}
	}
	if len(mortgages) == 0 {
		return boolPtr(true)
	}
	if deed.DocumentDate == nil {
		return nil
	}

	var nearest *time.Duration
	for _, m := range mortgages {
		if m.DocumentDate == nil {
			continue
		}
		d := absDuration(m.DocumentDate.Sub(*deed.DocumentDate))
		if nearest == nil || d < *nearest {
			nearest = &d
		}
	}
	if nearest == nil {
		return nil
	}
	return boolPtr(*nearest > CashWindow)
}

// Fields renders the summary as the transactions field group. Every column
// is present so a Replace merge clears values that no longer apply.
func (s Summary) Fields() models.FieldSet {
	f := models.FieldSet{
		"transaction_count":  s.TransactionCount,
		"deed_count":         s.DeedCount,
		"mortgage_count":     s.MortgageCount,
		"satisfaction_count": s.SatisfactionCount,
		"is_cash_purchase":   orNull(s.IsCashPurchase),
	}

	var d, m models.Transaction
	if s.PrimaryDeed != nil {
		d = *s.PrimaryDeed
	}
	if s.PrimaryMortgage != nil {
		m = *s.PrimaryMortgage
	}

	f["sale_price"] = orNull(d.Amount)
	f["sale_date"] = orNull(d.DocumentDate)
	f["sale_recorded_date"] = orNull(d.RecordedDate)
	f["sale_buyer"] = orNull(d.FirstPartyName(models.RoleBuyer))
	f["sale_seller"] = orNull(d.FirstPartyName(models.RoleSeller))
	f["sale_percent_transferred"] = orNull(d.PercentTransferred)
	f["sale_crfn"] = orNull(d.CRFN)
	f["mortgage_amount"] = orNull(m.Amount)
	f["mortgage_date"] = orNull(m.DocumentDate)
	f["mortgage_lender"] = orNull(m.FirstPartyName(models.RoleLender))
	f["mortgage_crfn"] = orNull(m.CRFN)
	return f
}

// orNull dereferences p, or returns an untyped nil for SQL NULL.
func orNull[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func boolPtr(b bool) *bool { return &b }
