package repository

import (
	"context"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/database"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
)

// TransactionRepository manages a building's transaction ledger.
type TransactionRepository interface {
	// CountForBuilding returns how many ledger rows the building has.
	CountForBuilding(ctx context.Context, buildingID int64) (int, error)

	// ListForBuilding returns the ledger with parties, newest document first.
	ListForBuilding(ctx context.Context, buildingID int64) ([]models.Transaction, error)

	// ReplaceLedger makes the stored ledger equal txns: rows are upserted by
	// document id, their parties rewritten, and documents absent from txns
	// removed. Callers run it inside Store.InTx so a failure leaves the old
	// ledger intact.
	ReplaceLedger(ctx context.Context, buildingID int64, txns []models.Transaction) error
}

type transactionRepository struct {
	q database.DBTX
}

// NewTransactionRepository creates a new instance of TransactionRepository.
func NewTransactionRepository(q database.DBTX) TransactionRepository {
	return &transactionRepository{q: q}
}

func (r *transactionRepository) CountForBuilding(ctx context.Context, buildingID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE building_id = $1`, buildingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions for building %d: %w", buildingID, err)
	}
	return n, nil
}

func (r *transactionRepository) ListForBuilding(ctx context.Context, buildingID int64) ([]models.Transaction, error) {
	query := `
		SELECT id, building_id, document_id, doc_type, doc_class, amount,
		       document_date, recorded_date, crfn, percent_transferred,
		       is_primary_deed, is_primary_mortgage
		FROM transactions
		WHERE building_id = $1
		ORDER BY document_date DESC NULLS LAST, document_id DESC
	`

	rows, err := r.q.Query(ctx, query, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for building %d: %w", buildingID, err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	index := map[int64]int{}
	for rows.Next() {
		var t models.Transaction
		var class string
		err := rows.Scan(
			&t.ID, &t.BuildingID, &t.DocumentID, &t.DocType, &class, &t.Amount,
			&t.DocumentDate, &t.RecordedDate, &t.CRFN, &t.PercentTransferred,
			&t.IsPrimaryDeed, &t.IsPrimaryMortgage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.Class = models.DocClass(class)
		index[t.ID] = len(txns)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	if len(txns) == 0 {
		return txns, nil
	}

	partyQuery := `
		SELECT p.id, p.transaction_id, p.role, p.name, p.address
		FROM transaction_parties p
		JOIN transactions t ON t.id = p.transaction_id
		WHERE t.building_id = $1
		ORDER BY p.id
	`
	prows, err := r.q.Query(ctx, partyQuery, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties for building %d: %w", buildingID, err)
	}
	defer prows.Close()

	for prows.Next() {
		var p models.Party
		var role string
		if err := prows.Scan(&p.ID, &p.TransactionID, &role, &p.Name, &p.Address); err != nil {
			return nil, fmt.Errorf("failed to scan party row: %w", err)
		}
		p.Role = models.PartyRole(role)
		if i, ok := index[p.TransactionID]; ok {
			txns[i].Parties = append(txns[i].Parties, p)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating party rows: %w", err)
	}

	return txns, nil
}

func (r *transactionRepository) ReplaceLedger(ctx context.Context, buildingID int64, txns []models.Transaction) error {
	upsert := `
		INSERT INTO transactions (
			building_id, document_id, doc_type, doc_class, amount,
			document_date, recorded_date, crfn, percent_transferred,
			is_primary_deed, is_primary_mortgage
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (building_id, document_id) DO UPDATE SET
			doc_type = EXCLUDED.doc_type,
			doc_class = EXCLUDED.doc_class,
			amount = EXCLUDED.amount,
			document_date = EXCLUDED.document_date,
			recorded_date = EXCLUDED.recorded_date,
			crfn = EXCLUDED.crfn,
			percent_transferred = EXCLUDED.percent_transferred,
			is_primary_deed = EXCLUDED.is_primary_deed,
			is_primary_mortgage = EXCLUDED.is_primary_mortgage
		RETURNING id
	`

	docIDs := make([]string, 0, len(txns))
	for _, t := range txns {
		var id int64
		err := r.q.QueryRow(ctx, upsert,
			buildingID, t.DocumentID, t.DocType, string(t.Class), t.Amount,
			t.DocumentDate, t.RecordedDate, t.CRFN, t.PercentTransferred,
			t.IsPrimaryDeed, t.IsPrimaryMortgage,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", t.DocumentID, err)
		}

		if _, err := r.q.Exec(ctx, `DELETE FROM transaction_parties WHERE transaction_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear parties for transaction %s: %w", t.DocumentID, err)
		}
		for _, p := range t.Parties {
			_, err := r.q.Exec(ctx,
				`INSERT INTO transaction_parties (transaction_id, role, name, address) VALUES ($1, $2, $3, $4)`,
				id, string(p.Role), p.Name, p.Address,
			)
			if err != nil {
				return fmt.Errorf("failed to insert party for transaction %s: %w", t.DocumentID, err)
			}
		}
		docIDs = append(docIDs, t.DocumentID)
	}

	_, err := r.q.Exec(ctx,
		`DELETE FROM transactions WHERE building_id = $1 AND NOT (document_id = ANY($2))`,
		buildingID, docIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to prune ledger for building %d: %w", buildingID, err)
	}
	return nil
}
