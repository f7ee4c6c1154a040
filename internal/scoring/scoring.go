// Package scoring derives flip, investment, trend, contact and lead scores
// for a building from its summary and transaction ledger.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

const (
	daysPerMonth   = 30.4375
	day            = 24 * time.Hour
	flipperWindow  = 5 * 365 * day
	leverageWindow = 90 * day
	heavyLTV       = 80.0
)

// Weights are the lead score contributions.
type Weights struct {
	FlipperBonus       int
	FlipScoreMax       int
	CashBonus          int
	HeavyLeverageBonus int
	RecencyMax         int
	SellerAddressBonus int
	LenderInfoBonus    int
}

// DefaultWeights returns the standard lead score weights.
func DefaultWeights() Weights {
	return Weights{
		FlipperBonus:       20,
		FlipScoreMax:       20,
		CashBonus:          30,
		HeavyLeverageBonus: 10,
		RecencyMax:         20,
		SellerAddressBonus: 15,
		LenderInfoBonus:    5,
	}
}

// WeightsFromConfig converts the configured weights.
func WeightsFromConfig(c config.ScoringConfig) Weights {
	return Weights{
		FlipperBonus:       c.FlipperBonus,
		FlipScoreMax:       c.FlipScoreMax,
		CashBonus:          c.CashBonus,
		HeavyLeverageBonus: c.HeavyLeverageBonus,
		RecencyMax:         c.RecencyMax,
		SellerAddressBonus: c.SellerAddressBonus,
		LenderInfoBonus:    c.LenderInfoBonus,
	}
}

// Input is everything needed to score one building.
type Input struct {
	Building     *models.Building
	Transactions []models.Transaction
	// OwnerCount is the number of buildings held by the same normalised owner.
	OwnerCount int
}

// Score computes the full intelligence row at now.
func Score(in Input, w Weights, now time.Time) models.Intelligence {
	b := in.Building
	out := models.Intelligence{
		BuildingID: b.ID,
		BBL:        b.BBL,
		ComputedAt: now,
	}

	deeds := datedDeeds(in.Transactions)
	out.DeedCount = countClass(in.Transactions, models.DocClassDeed)
	scoreFlip(&out, deeds, now)
	scoreInvestment(&out, b, in.Transactions)
	scoreTrend(&out, b, deeds)
	scoreContacts(&out, b, in.Transactions, in.OwnerCount)
	scoreLead(&out, w)
	return out
}

func countClass(txns []models.Transaction, class models.DocClass) int {
	n := 0
	for _, t := range txns {
		if t.Class == class {
			n++
		}
	}
	return n
}

// datedDeeds returns deeds with a document date, oldest first.
func datedDeeds(txns []models.Transaction) []models.Transaction {
	var deeds []models.Transaction
	for _, t := range txns {
		if t.Class == models.DocClassDeed && t.DocumentDate != nil {
			deeds = append(deeds, t)
		}
	}
	sort.SliceStable(deeds, func(i, j int) bool {
		return deeds[i].DocumentDate.Before(*deeds[j].DocumentDate)
	})
	return deeds
}

func scoreFlip(out *models.Intelligence, deeds []models.Transaction, now time.Time) {
	score := 0
	switch {
	case out.DeedCount >= 5:
		score += 40
	case out.DeedCount >= 3:
		score += 25
	case out.DeedCount == 2:
		score += 10
	}

	if len(deeds) >= 2 {
		span := deeds[len(deeds)-1].DocumentDate.Sub(*deeds[0].DocumentDate)
		months := span.Hours() / 24 / daysPerMonth / float64(len(deeds)-1)
		out.SaleVelocityMonths = &months
		switch {
		case months <= 12:
			score += 40
		case months <= 24:
			score += 25
		case months <= 36:
			score += 15
		}
	}

	if len(deeds) > 0 {
		last := *deeds[len(deeds)-1].DocumentDate
		days := int(now.Sub(last).Hours() / 24)
		out.DaysSinceLastSale = &days
		switch {
		case days <= 365:
			score += 20
		case days <= 730:
			score += 10
		}
	}

	cutoff := now.Add(-flipperWindow)
	for _, d := range deeds {
		if !d.DocumentDate.Before(cutoff) {
			out.RecentDeedCount++
		}
	}

	out.FlipScore = clamp(score, 0, 100)
	out.IsLikelyFlipper = out.RecentDeedCount >= 3
}

func scoreInvestment(out *models.Intelligence, b *models.Building, txns []models.Transaction) {
	out.IsCashInvestor = b.IsCashPurchase != nil && *b.IsCashPurchase

	if b.SalePrice == nil || *b.SalePrice <= 0 || b.SaleDate == nil {
		return
	}

	financed := 0.0
	for _, t := range txns {
		if t.Class != models.DocClassMortgage || t.DocumentDate == nil || t.Amount == nil || *t.Amount <= 0 {
			continue
		}
		if absDuration(t.DocumentDate.Sub(*b.SaleDate)) <= leverageWindow {
			financed += *t.Amount
		}
	}

	ltv := round2(financed / *b.SalePrice * 100)
	equity := math.Max(0, math.Min(100, 100-ltv))
	out.LoanToValue = &ltv
	out.EquityPercentage = &equity
	out.IsHeavyLeverage = ltv > heavyLTV
}

func scoreTrend(out *models.Intelligence, b *models.Building, deeds []models.Transaction) {
	var priced []models.Transaction
	for _, d := range deeds {
		if d.Amount != nil && *d.Amount > 0 {
			priced = append(priced, d)
		}
	}
	if n := len(priced); n >= 2 {
		prev, last := *priced[n-2].Amount, *priced[n-1].Amount
		diff := last - prev
		pct := round2(diff / prev * 100)
		out.AppreciationAmount = &diff
		out.AppreciationPercent = &pct
	}

	if b.SalePrice != nil && *b.SalePrice > 0 && b.BuildingArea != nil && *b.BuildingArea > 0 {
		pps := round2(*b.SalePrice / float64(*b.BuildingArea))
		out.PricePerSqft = &pps
	}
}

func scoreContacts(out *models.Intelligence, b *models.Building, txns []models.Transaction, ownerCount int) {
	for i := range txns {
		t := &txns[i]
		if t.IsPrimaryDeed {
			for _, p := range t.PartiesWithRole(models.RoleSeller) {
				if !p.Address.IsEmpty() {
					out.HasSellerAddress = true
				}
			}
		}
		if t.Class == models.DocClassMortgage && t.FirstPartyName(models.RoleLender) != nil {
			out.HasLenderInfo = true
		}
	}
	if b.MortgageLender != nil && *b.MortgageLender != "" {
		out.HasLenderInfo = true
	}
	out.MultiPropertyOwner = ownerCount > 1
}

func scoreLead(out *models.Intelligence, w Weights) {
	score := 0
	if out.IsLikelyFlipper {
		score += w.FlipperBonus
	}
	// FlipScore is 0-100, so a full flip score earns exactly FlipScoreMax.
	score += int(math.Round(float64(out.FlipScore) * float64(w.FlipScoreMax) / 100))

	if out.IsCashInvestor {
		score += w.CashBonus
	} else if out.IsHeavyLeverage {
		score += w.HeavyLeverageBonus
	}

	if out.DaysSinceLastSale != nil {
		score += recencyPoints(*out.DaysSinceLastSale, w.RecencyMax)
	}
	if out.HasSellerAddress {
		score += w.SellerAddressBonus
	}
	if out.HasLenderInfo {
		score += w.LenderInfoBonus
	}

	out.LeadScore = clamp(score, 0, 100)
	out.LeadPriority = Priority(out.LeadScore)
}

// recencyPoints scales the recency weight down in quarters as the last sale
// ages: 180 days, one, two and three years.
func recencyPoints(days, weight int) int {
	switch {
	case days <= 180:
		return weight
	case days <= 365:
		return weight * 3 / 4
	case days <= 730:
		return weight / 2
	case days <= 1095:
		return weight / 4
	default:
		return 0
	}
}

// Priority buckets a lead score.
func Priority(score int) string {
	switch {
	case score >= 70:
		return models.PriorityHigh
	case score >= 40:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
