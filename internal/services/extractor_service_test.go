package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/testutil"
)

// MockDocumentSource is a mock implementation of DocumentSource for testing
type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) DocumentIDs(ctx context.Context, p bbl.Parts) ([]string, error) {
	args := m.Called(ctx, p)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockDocumentSource) Document(ctx context.Context, documentID string) (*models.Transaction, error) {
	args := m.Called(ctx, documentID)
	doc, _ := args.Get(0).(*models.Transaction)
	return doc, args.Error(1)
}

var lotParts = bbl.Parts{Borough: 3, Block: 1234, Lot: 56}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(f float64) *float64 { return &f }

func deedDoc() *models.Transaction {
	return &models.Transaction{
		DocumentID:   "D1",
		DocType:      "DEED",
		Class:        models.DocClassDeed,
		DocumentDate: day(2024, 5, 1),
		Amount:       amount(1250000),
		Parties: []models.Party{
			{Role: models.RoleSeller, Name: "JANE ROE"},
			{Role: models.RoleBuyer, Name: "DEAN HOLDINGS LLC"},
		},
	}
}

func mortgageDoc() *models.Transaction {
	return &models.Transaction{
		DocumentID:   "M1",
		DocType:      "MTGE",
		Class:        models.DocClassMortgage,
		DocumentDate: day(2024, 5, 3),
		Amount:       amount(900000),
		Parties:      []models.Party{{Role: models.RoleLender, Name: "FIRST BANK"}},
	}
}

func ledgerBuilding(store *testutil.MemStore) *models.Building {
	id := store.AddBuilding(models.Building{BBL: "3012340056"})
	b, _ := store.Building(id)
	return &b
}

func TestExtract_BuildsLedgerAndSummary(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"D1", "M1", "GONE"}, nil)
	docs.On("Document", mock.Anything, "D1").Return(deedDoc(), nil)
	docs.On("Document", mock.Anything, "M1").Return(mortgageDoc(), nil)
	docs.On("Document", mock.Anything, "GONE").Return(nil, nil)

	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))
	outcome, err := svc.Extract(context.Background(), b, false)

	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	ledger := store.Ledger(b.ID)
	require.Len(t, ledger, 2)
	assert.True(t, ledger[0].IsPrimaryDeed)
	assert.True(t, ledger[1].IsPrimaryMortgage)

	got, _ := store.Building(b.ID)
	assert.Equal(t, 1250000.0, *got.SalePrice)
	assert.Equal(t, "DEAN HOLDINGS LLC", *got.SaleBuyer)
	assert.Equal(t, "JANE ROE", *got.SaleSeller)
	assert.Equal(t, "FIRST BANK", *got.MortgageLender)
	assert.False(t, *got.IsCashPurchase)
	assert.Equal(t, 2, *got.TransactionCount)
	assert.Equal(t, 3, *got.ACRISDocumentCount)
	assert.Equal(t, 1, *got.DeedCount)
	assert.Equal(t, fixedNow, *got.TransactionsEnrichedAt)
	docs.AssertExpectations(t)
}

func TestExtract_LegacyLedgerCountShortCircuits(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	store.AddTransactions(b.ID, *deedDoc(), *mortgageDoc())
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"D1", "M1"}, nil)

	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))
	outcome, err := svc.Extract(context.Background(), b, false)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, 0, store.LedgerWrites)
	docs.AssertNotCalled(t, "Document", mock.Anything, mock.Anything)
	got, _ := store.Building(b.ID)
	assert.Equal(t, fixedNow, *got.TransactionsEnrichedAt)
}

func TestExtract_NoDocuments(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{}, nil)

	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))
	outcome, err := svc.Extract(context.Background(), b, false)

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoData, outcome)
	got, _ := store.Building(b.ID)
	assert.Nil(t, got.TransactionCount)
	assert.NotNil(t, got.TransactionsEnrichedAt)
}

func TestExtract_DocumentFailureLeavesLedger(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	store.AddTransactions(b.ID, *deedDoc())
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"D1", "M1"}, nil)
	docs.On("Document", mock.Anything, "D1").Return(deedDoc(), nil)
	docs.On("Document", mock.Anything, "M1").Return(nil, socrata.ErrSourceUnavailable)

	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))
	outcome, err := svc.Extract(context.Background(), b, false)

	assert.ErrorIs(t, err, socrata.ErrSourceUnavailable)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Len(t, store.Ledger(b.ID), 1)
	got, _ := store.Building(b.ID)
	assert.Equal(t, fixedNow, *got.TransactionsEnrichedAt)
}

func TestExtract_PersistFailureRollsBack(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	store.FailApply = errors.New("disk full")
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"D1"}, nil)
	docs.On("Document", mock.Anything, "D1").Return(deedDoc(), nil)

	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))
	outcome, err := svc.Extract(context.Background(), b, false)

	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	// The ledger write happened inside the rolled back transaction.
	assert.Empty(t, store.Ledger(b.ID))
	got, _ := store.Building(b.ID)
	assert.Nil(t, got.SalePrice)
	assert.Equal(t, fixedNow, *got.TransactionsEnrichedAt)
}

func TestExtract_InvalidBBL(t *testing.T) {
	store := testutil.NewMemStore()
	id := store.AddBuilding(models.Building{BBL: "bad"})
	b, _ := store.Building(id)
	docs := new(MockDocumentSource)

	outcome, err := NewExtractorService(store, docs, nil).Extract(context.Background(), &b, false)

	assert.ErrorIs(t, err, ErrInvalidBBL)
	assert.Equal(t, OutcomeFailed, outcome)
	docs.AssertNotCalled(t, "DocumentIDs", mock.Anything, mock.Anything)
}

func TestExtract_MissingMasterRecordCountsAsSeen(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"D1", "X9"}, nil)
	docs.On("Document", mock.Anything, "D1").Return(deedDoc(), nil).Once()
	docs.On("Document", mock.Anything, "X9").Return(nil, nil).Once()
	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))

	first, err := svc.Extract(context.Background(), b, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, first)

	reloaded, _ := store.Building(b.ID)
	second, err := svc.Extract(context.Background(), &reloaded, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, second)

	assert.Equal(t, 1, store.LedgerWrites)
	docs.AssertNumberOfCalls(t, "Document", 2)
	assert.Len(t, store.Ledger(b.ID), 1)
}

func TestExtract_NoMasterRecordsKeepsEmptyLedgerStable(t *testing.T) {
	store := testutil.NewMemStore()
	b := ledgerBuilding(store)
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"X1", "X2"}, nil)
	docs.On("Document", mock.Anything, mock.Anything).Return(nil, nil)
	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))

	first, err := svc.Extract(context.Background(), b, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, first)
	got, _ := store.Building(b.ID)
	assert.Equal(t, 0, *got.TransactionCount)
	assert.Equal(t, 2, *got.ACRISDocumentCount)

	second, err := svc.Extract(context.Background(), &got, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, second)
	assert.Equal(t, 1, store.LedgerWrites)
	docs.AssertNumberOfCalls(t, "Document", 2)
}

func TestExtract_RefreshIgnoresCount(t *testing.T) {
	store := testutil.NewMemStore()
	known := 1
	id := store.AddBuilding(models.Building{BBL: "3012340056", ACRISDocumentCount: &known})
	store.AddTransactions(id, *deedDoc())
	b, _ := store.Building(id)

	corrected := deedDoc()
	corrected.Amount = amount(1300000)
	docs := new(MockDocumentSource)
	docs.On("DocumentIDs", mock.Anything, lotParts).Return([]string{"D1"}, nil)
	docs.On("Document", mock.Anything, "D1").Return(corrected, nil)

	svc := NewExtractorService(store, docs, nil, WithClock(fixedClock))

	outcome, err := svc.Extract(context.Background(), &b, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	docs.AssertNotCalled(t, "Document", mock.Anything, mock.Anything)

	outcome, err = svc.Extract(context.Background(), &b, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)
	got, _ := store.Building(id)
	assert.Equal(t, 1300000.0, *got.SalePrice)
}
