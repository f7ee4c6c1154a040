package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func money(f float64) *float64 { return &f }

func deedAt(id string, at *time.Time, price float64) models.Transaction {
	return models.Transaction{DocumentID: id, Class: models.DocClassDeed, DocumentDate: at, Amount: money(price)}
}

func TestScore_TwoSalesWithFinancing(t *testing.T) {
	financed := false
	b := &models.Building{
		ID:             1,
		BBL:            "3012340056",
		SalePrice:      money(1100000),
		SaleDate:       date(2024, 2, 10),
		IsCashPurchase: &financed,
	}
	primary := deedAt("D2", date(2024, 2, 10), 1100000)
	primary.IsPrimaryDeed = true
	txns := []models.Transaction{
		deedAt("D1", date(2023, 1, 10), 800000),
		primary,
		{DocumentID: "M1", Class: models.DocClassMortgage, DocumentDate: date(2024, 2, 15), Amount: money(880000)},
	}

	got := Score(Input{Building: b, Transactions: txns, OwnerCount: 1}, DefaultWeights(), *date(2024, 8, 10))

	require.NotNil(t, got.SaleVelocityMonths)
	assert.InDelta(t, 13.0, *got.SaleVelocityMonths, 0.1)
	assert.Equal(t, 2, got.DeedCount)
	assert.Equal(t, 55, got.FlipScore)
	assert.False(t, got.IsLikelyFlipper)
	assert.False(t, got.IsCashInvestor)

	require.NotNil(t, got.LoanToValue)
	assert.Equal(t, 80.0, *got.LoanToValue)
	assert.False(t, got.IsHeavyLeverage)
	assert.Equal(t, 20.0, *got.EquityPercentage)

	require.NotNil(t, got.AppreciationAmount)
	assert.Equal(t, 300000.0, *got.AppreciationAmount)
	assert.Equal(t, 37.5, *got.AppreciationPercent)

	assert.Equal(t, 182, *got.DaysSinceLastSale)
	// flip 55 of max 20 = 11, recency 182 days = 15
	assert.Equal(t, 26, got.LeadScore)
	assert.Equal(t, models.PriorityLow, got.LeadPriority)
}

func TestScore_SerialFlipperClampsAt100(t *testing.T) {
	cash := true
	b := &models.Building{ID: 2, BBL: "1000010001", SalePrice: money(2000000), SaleDate: date(2026, 6, 1), IsCashPurchase: &cash}

	last := deedAt("D5", date(2026, 6, 1), 2000000)
	last.IsPrimaryDeed = true
	last.Parties = []models.Party{{Role: models.RoleSeller, Name: "JANE ROE", Address: models.MailingAddress{Line1: "9 ELM ST"}}}
	txns := []models.Transaction{
		deedAt("D1", date(2025, 1, 1), 900000),
		deedAt("D2", date(2025, 4, 1), 1100000),
		deedAt("D3", date(2025, 7, 1), 1300000),
		deedAt("D4", date(2025, 10, 1), 1600000),
		last,
	}

	got := Score(Input{Building: b, Transactions: txns, OwnerCount: 3}, DefaultWeights(), *date(2026, 10, 1))

	assert.Equal(t, 100, got.FlipScore)
	assert.True(t, got.IsLikelyFlipper)
	assert.Equal(t, 5, got.RecentDeedCount)
	assert.True(t, got.IsCashInvestor)
	assert.True(t, got.HasSellerAddress)
	assert.True(t, got.MultiPropertyOwner)
	assert.Equal(t, 0.0, *got.LoanToValue)
	assert.Equal(t, 100.0, *got.EquityPercentage)
	assert.Equal(t, 100, got.LeadScore)
	assert.Equal(t, models.PriorityHigh, got.LeadPriority)
}

func TestScore_HeavyLeverage(t *testing.T) {
	financed := false
	b := &models.Building{SalePrice: money(1000000), SaleDate: date(2020, 1, 1), IsCashPurchase: &financed, BuildingArea: intPtr(2500)}
	txns := []models.Transaction{
		deedAt("D", date(2020, 1, 1), 1000000),
		{Class: models.DocClassMortgage, DocumentDate: date(2019, 12, 1), Amount: money(700000)},
		{Class: models.DocClassMortgage, DocumentDate: date(2020, 3, 15), Amount: money(250000)},
		// Outside the 90 day window.
		{Class: models.DocClassMortgage, DocumentDate: date(2022, 1, 1), Amount: money(500000)},
	}

	got := Score(Input{Building: b, Transactions: txns}, DefaultWeights(), *date(2026, 1, 1))

	assert.Equal(t, 95.0, *got.LoanToValue)
	assert.True(t, got.IsHeavyLeverage)
	assert.Equal(t, 5.0, *got.EquityPercentage)
	assert.Equal(t, 400.0, *got.PricePerSqft)
	// only the leverage bonus applies to a six year old single sale
	assert.Equal(t, 10, got.LeadScore)
}

func TestScore_EmptyLedger(t *testing.T) {
	got := Score(Input{Building: &models.Building{ID: 9}}, DefaultWeights(), time.Now())

	assert.Equal(t, 0, got.FlipScore)
	assert.Nil(t, got.SaleVelocityMonths)
	assert.Nil(t, got.DaysSinceLastSale)
	assert.Nil(t, got.LoanToValue)
	assert.Equal(t, 0, got.LeadScore)
	assert.Equal(t, models.PriorityLow, got.LeadPriority)
}

func TestScore_FlipShareFollowsConfiguredMax(t *testing.T) {
	b := &models.Building{SalePrice: money(1100000), SaleDate: date(2024, 2, 10)}
	txns := []models.Transaction{
		deedAt("D1", date(2023, 1, 10), 800000),
		deedAt("D2", date(2024, 2, 10), 1100000),
	}
	at := *date(2024, 8, 10)

	tests := []struct {
		max  int
		want int
	}{
		{max: 20, want: 11},
		{max: 40, want: 22},
		{max: 100, want: 55},
	}
	for _, tt := range tests {
		got := Score(Input{Building: b, Transactions: txns}, Weights{FlipScoreMax: tt.max}, at)
		require.Equal(t, 55, got.FlipScore)
		assert.Equal(t, tt.want, got.LeadScore, "FlipScoreMax=%d", tt.max)
	}
}

func TestScore_Bounds(t *testing.T) {
	heavy := Weights{FlipperBonus: 90, FlipScoreMax: 90, CashBonus: 90, RecencyMax: 90, SellerAddressBonus: 90, LenderInfoBonus: 90}
	negative := Weights{FlipperBonus: -90, FlipScoreMax: 20, CashBonus: -90, RecencyMax: -90}

	cash := true
	b := &models.Building{SalePrice: money(1), SaleDate: date(2026, 1, 1), IsCashPurchase: &cash}
	txns := []models.Transaction{
		deedAt("A", date(2025, 1, 1), 1),
		deedAt("B", date(2025, 6, 1), 1),
		deedAt("C", date(2026, 1, 1), 1),
	}

	for _, w := range []Weights{heavy, negative} {
		got := Score(Input{Building: b, Transactions: txns}, w, *date(2026, 2, 1))
		assert.GreaterOrEqual(t, got.LeadScore, 0)
		assert.LessOrEqual(t, got.LeadScore, 100)
		assert.GreaterOrEqual(t, got.FlipScore, 0)
		assert.LessOrEqual(t, got.FlipScore, 100)
	}
}

func TestPriority(t *testing.T) {
	tests := map[int]string{
		100: models.PriorityHigh,
		70:  models.PriorityHigh,
		69:  models.PriorityMedium,
		40:  models.PriorityMedium,
		39:  models.PriorityLow,
		0:   models.PriorityLow,
	}
	for score, want := range tests {
		assert.Equal(t, want, Priority(score), "score %d", score)
	}
}

func TestRecencyPoints(t *testing.T) {
	assert.Equal(t, 20, recencyPoints(180, 20))
	assert.Equal(t, 15, recencyPoints(181, 20))
	assert.Equal(t, 10, recencyPoints(730, 20))
	assert.Equal(t, 5, recencyPoints(1095, 20))
	assert.Equal(t, 0, recencyPoints(1096, 20))
}

func TestNormalizeOwner(t *testing.T) {
	tests := map[string]string{
		"Acme, L.L.C.":      "ACME LLC",
		"  acme   llc ":     "ACME LLC",
		"SMITH-JONES & CO.": "SMITH JONES CO",
		"...":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeOwner(in), in)
	}

	// Full Unicode upper casing expands the sharp s.
	assert.Equal(t, "STRASSE HOLDINGS INC", NormalizeOwner("Straße Holdings Inc"))
}

func TestOwnerIndex(t *testing.T) {
	idx := NewOwnerIndex([]string{"ACME LLC", "Acme, L.L.C.", "Other Corp", ""})

	assert.Equal(t, 2, idx.Count("acme llc"))
	assert.Equal(t, 1, idx.Count("OTHER CORP"))
	assert.Equal(t, 0, idx.Count("nobody"))
	assert.Equal(t, 0, idx.Count(""))
}

func intPtr(n int) *int { return &n }
