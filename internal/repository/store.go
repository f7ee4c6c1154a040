package repository

import (
	"context"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
)

// Store groups the repositories bound to one connection or transaction.
type Store interface {
	Buildings() BuildingRepository
	Permits() PermitRepository
	Transactions() TransactionRepository
	Intelligence() IntelligenceRepository

	// InTx runs fn against a Store bound to a single database transaction.
	// An error from fn rolls back every write made through that Store.
	InTx(ctx context.Context, fn func(Store) error) error
}

// Provider hands out a Store backed by a dedicated connection for one unit
// of work.
type Provider interface {
	WithStore(ctx context.Context, fn func(Store) error) error
}

type pgStore struct {
	q database.DBTX
}

// NewStore creates a Store over any pgx query surface.
func NewStore(q database.DBTX) Store {
	return &pgStore{q: q}
}

func (s *pgStore) Buildings() BuildingRepository       { return NewBuildingRepository(s.q) }
func (s *pgStore) Permits() PermitRepository           { return NewPermitRepository(s.q) }
func (s *pgStore) Transactions() TransactionRepository { return NewTransactionRepository(s.q) }
func (s *pgStore) Intelligence() IntelligenceRepository {
	return NewIntelligenceRepository(s.q)
}

func (s *pgStore) InTx(ctx context.Context, fn func(Store) error) error {
	return database.InTx(ctx, s.q, func(tx database.DBTX) error {
		return fn(&pgStore{q: tx})
	})
}

type poolProvider struct {
	db *database.Database
}

// NewProvider creates a Provider that acquires one pool connection per unit
// of work.
func NewProvider(db *database.Database) Provider {
	return &poolProvider{db: db}
}

func (p *poolProvider) WithStore(ctx context.Context, fn func(Store) error) error {
	return p.db.WithConn(ctx, func(conn database.DBTX) error {
		return fn(NewStore(conn))
	})
}
