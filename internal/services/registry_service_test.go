package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func strPtr(s string) *string { return &s }

func TestLinkPermit_CreatesBuildingOnce(t *testing.T) {
	store := testutil.NewMemStore()
	store.AddPermit(models.Permit{ID: 1, Borough: "Brooklyn", Block: "1234", Lot: "56", Address: "9 ELM ST"})
	store.AddPermit(models.Permit{ID: 2, Borough: "BK", Block: "01234", Lot: "0056"})
	svc := NewRegistryService(store, logger.New("test"))
	ctx := context.Background()

	p1, _ := store.Permit(1)
	outcome, err := svc.LinkPermit(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	p2, _ := store.Permit(2)
	outcome, err = svc.LinkPermit(ctx, p2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	assert.Equal(t, 1, store.BuildingCount())
	for _, id := range []int64{1, 2} {
		p, _ := store.Permit(id)
		require.NotNil(t, p.BBL)
		assert.Equal(t, "3012340056", *p.BBL)
	}
}

func TestLinkPermit_KeepsExistingFields(t *testing.T) {
	store := testutil.NewMemStore()
	store.AddBuilding(models.Building{BBL: "3012340056", Address: strPtr("1 OLD RD"), OwnerName: strPtr("DEAN LLC")})
	store.AddPermit(models.Permit{ID: 7, Borough: "3", Block: "1234", Lot: "56", Address: "9 ELM ST"})
	svc := NewRegistryService(store, nil)

	p, _ := store.Permit(7)
	_, err := svc.LinkPermit(context.Background(), p)
	require.NoError(t, err)

	b, ok := store.Building(1)
	require.True(t, ok)
	assert.Equal(t, "1 OLD RD", *b.Address)
	assert.Equal(t, "DEAN LLC", *b.OwnerName)
}

func TestLinkPermit_Unresolvable(t *testing.T) {
	store := testutil.NewMemStore()
	store.AddPermit(models.Permit{ID: 3, Borough: "JERSEY", Block: "1", Lot: "1"})
	svc := NewRegistryService(store, nil)

	p, _ := store.Permit(3)
	outcome, err := svc.LinkPermit(context.Background(), p)

	assert.ErrorIs(t, err, ErrUnresolvableBBL)
	assert.Equal(t, OutcomeNoData, outcome)
	assert.Equal(t, 0, store.BuildingCount())
	p, _ = store.Permit(3)
	assert.Nil(t, p.BBL)
}

func TestGetBuilding(t *testing.T) {
	store := testutil.NewMemStore()
	id := store.AddBuilding(models.Building{BBL: "1000010001"})
	svc := NewRegistryService(store, nil)
	ctx := context.Background()

	t.Run("invalid bbl", func(t *testing.T) {
		_, err := svc.GetBuilding(ctx, "6000010001")
		assert.ErrorIs(t, err, ErrInvalidBBL)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.GetBuilding(ctx, "2000010001")
		assert.ErrorIs(t, err, ErrBuildingNotFound)
	})

	t.Run("without scores", func(t *testing.T) {
		detail, err := svc.GetBuilding(ctx, "1000010001")
		require.NoError(t, err)
		assert.Equal(t, id, detail.Building.ID)
		assert.Nil(t, detail.Intelligence)
	})

	t.Run("with scores", func(t *testing.T) {
		require.NoError(t, store.Intelligence().Upsert(ctx, models.Intelligence{BuildingID: id, LeadScore: 55}))
		detail, err := svc.GetBuilding(ctx, "1000010001")
		require.NoError(t, err)
		require.NotNil(t, detail.Intelligence)
		assert.Equal(t, 55, detail.Intelligence.LeadScore)
	})
}
