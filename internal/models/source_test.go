package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestNeedsEnrichment(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	policy := DefaultFreshnessPolicy()

	tests := []struct {
		name     string
		building *Building
		source   Source
		want     bool
	}{
		{
			name:     "never attempted",
			building: &Building{BBL: "3050080065"},
			source:   SourceParcel,
			want:     true,
		},
		{
			name:     "fresh with data",
			building: &Building{OwnerName: ptr("ACME LLC"), ParcelEnrichedAt: ptr(now.Add(-48 * time.Hour))},
			source:   SourceParcel,
			want:     false,
		},
		{
			name:     "stale with data",
			building: &Building{OwnerName: ptr("ACME LLC"), ParcelEnrichedAt: ptr(now.Add(-31 * 24 * time.Hour))},
			source:   SourceParcel,
			want:     true,
		},
		{
			name:     "exactly at refresh window is still fresh",
			building: &Building{AssessedTotalValue: ptr(1.0), AssessmentEnrichedAt: ptr(now.Add(-30 * 24 * time.Hour))},
			source:   SourceAssessment,
			want:     false,
		},
		{
			name:     "empty marker attempted recently does not hot loop",
			building: &Building{HousingEnrichedAt: ptr(now.Add(-time.Hour))},
			source:   SourceHousing,
			want:     false,
		},
		{
			name:     "empty marker retried after retry window",
			building: &Building{HousingEnrichedAt: ptr(now.Add(-25 * time.Hour))},
			source:   SourceHousing,
			want:     true,
		},
		{
			name:     "stamp of another source is ignored",
			building: &Building{ParcelEnrichedAt: ptr(now), OwnerName: ptr("X")},
			source:   SourceTransactions,
			want:     true,
		},
		{
			name:     "liens marker false still counts as data",
			building: &Building{HasTaxLien: ptr(false), LiensEnrichedAt: ptr(now.Add(-72 * time.Hour))},
			source:   SourceLiens,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsEnrichment(tt.building, tt.source, policy, now))
		})
	}
}

func TestNeedsEnrichment_UnknownSource(t *testing.T) {
	assert.False(t, NeedsEnrichment(&Building{}, Source("bogus"), DefaultFreshnessPolicy(), time.Now()))
	assert.False(t, NeedsEnrichment(nil, SourceParcel, DefaultFreshnessPolicy(), time.Now()))
}

func TestSourceColumns(t *testing.T) {
	for _, s := range AllSources {
		require.NotEmpty(t, s.StampColumn(), s)
		assert.True(t, s.Owns(s.MarkerColumn()), "marker of %s must be owned by it", s)
		for _, other := range AllSources {
			if other == s {
				continue
			}
			for _, col := range s.Columns() {
				assert.False(t, other.Owns(col), "%s column %s also owned by %s", s, col, other)
			}
		}
	}

	_, err := ParseSource("housing")
	require.NoError(t, err)
	_, err = ParseSource("permits")
	assert.Error(t, err)
}

func TestFieldSet_SkipsNilPointers(t *testing.T) {
	fs := FieldSet{}
	var missing *string
	fs.Set("owner_name", missing)
	fs.Set("year_built", ptr(1931))
	fs.Set("num_floors", (*float64)(nil))
	fs.Set("land_use", nil)

	assert.Equal(t, FieldSet{"year_built": 1931}, fs)
}

func TestBuildingCurrentOwner(t *testing.T) {
	b := &Building{HPDOwnerName: ptr("HPD OWNER")}
	assert.Equal(t, "HPD OWNER", b.CurrentOwner())
	b.OwnerName = ptr("PLUTO OWNER")
	assert.Equal(t, "PLUTO OWNER", b.CurrentOwner())
	b.SaleBuyer = ptr("BUYER LLC")
	assert.Equal(t, "BUYER LLC", b.CurrentOwner())
}
