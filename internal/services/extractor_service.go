package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/ledger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
)

// DocumentSource reads recorded documents for a lot.
type DocumentSource interface {
	DocumentIDs(ctx context.Context, p bbl.Parts) ([]string, error)
	// Document returns nil, nil when the document has no master record.
	Document(ctx context.Context, documentID string) (*models.Transaction, error)
}

// ExtractorService rebuilds a building's transaction ledger and summary.
type ExtractorService interface {
	// Extract lists the lot's documents, and when their number differs from
	// the count seen at the last extraction, fetches every document and
	// replaces the ledger and the transaction summary in one database
	// transaction. refresh skips the count check.
	Extract(ctx context.Context, b *models.Building, refresh bool) (Outcome, error)
}

type extractorService struct {
	store repository.Provider
	docs  DocumentSource
	log   *logger.Logger
	opts  options
}

// NewExtractorService creates a new instance of ExtractorService.
func NewExtractorService(store repository.Provider, docs DocumentSource, log *logger.Logger, opts ...Option) ExtractorService {
	return &extractorService{store: store, docs: docs, log: orNop(log), opts: buildOptions(opts)}
}

func (s *extractorService) Extract(ctx context.Context, b *models.Building, refresh bool) (Outcome, error) {
	outcome, err := s.extract(ctx, b, refresh)
	if err == nil {
		return outcome, nil
	}

	s.log.Warn("Transaction extraction failed", logger.Fields{
		"bbl":   b.BBL,
		"error": err.Error(),
	})
	if serr := stamp(ctx, s.store, b.ID, models.SourceTransactions, s.opts.now()); serr != nil {
		return OutcomeFailed, errors.Join(err, serr)
	}
	return OutcomeFailed, err
}

func (s *extractorService) extract(ctx context.Context, b *models.Building, refresh bool) (Outcome, error) {
	parts, ok := bbl.Split(b.BBL)
	if !ok {
		return OutcomeFailed, fmt.Errorf("%w: %q", ErrInvalidBBL, b.BBL)
	}

	ids, err := s.docs.DocumentIDs(ctx, parts)
	if err != nil {
		return OutcomeFailed, err
	}

	if len(ids) == 0 {
		if err := stamp(ctx, s.store, b.ID, models.SourceTransactions, s.opts.now()); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeNoData, nil
	}

	if !refresh {
		known, err := s.knownDocumentCount(ctx, b)
		if err != nil {
			return OutcomeFailed, err
		}
		if known == len(ids) {
			if err := stamp(ctx, s.store, b.ID, models.SourceTransactions, s.opts.now()); err != nil {
				return OutcomeFailed, err
			}
			return OutcomeUnchanged, nil
		}
	}

	txns := make([]models.Transaction, 0, len(ids))
	for _, id := range ids {
		doc, err := s.docs.Document(ctx, id)
		if err != nil {
			return OutcomeFailed, err
		}
		if doc == nil {
			s.log.Debug("Document has no master record", logger.Fields{"bbl": b.BBL, "document_id": id})
			continue
		}
		txns = append(txns, *doc)
	}

	summary := ledger.Summarize(txns)
	fields := summary.Fields()
	fields["acris_document_count"] = len(ids)
	now := s.opts.now()
	err = s.store.WithStore(ctx, func(st repository.Store) error {
		return st.InTx(ctx, func(tx repository.Store) error {
			if err := tx.Transactions().ReplaceLedger(ctx, b.ID, txns); err != nil {
				return err
			}
			return tx.Buildings().ApplyFields(ctx, b.ID, models.SourceTransactions, fields, models.MergeReplace, now)
		})
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to persist ledger: %w", err)
	}

	s.log.Debug("Ledger replaced", logger.Fields{
		"bbl":       b.BBL,
		"documents": len(ids),
		"stored":    len(txns),
		"deeds":     summary.DeedCount,
		"mortgages": summary.MortgageCount,
	})
	return OutcomeEnriched, nil
}

// knownDocumentCount is the index size recorded by the last extraction.
// Buildings extracted before the count was recorded fall back to the ledger
// size.
func (s *extractorService) knownDocumentCount(ctx context.Context, b *models.Building) (int, error) {
	if b.ACRISDocumentCount != nil {
		return *b.ACRISDocumentCount, nil
	}

	var stored int
	err := s.store.WithStore(ctx, func(st repository.Store) error {
		var err error
		stored, err = st.Transactions().CountForBuilding(ctx, b.ID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger: %w", err)
	}
	return stored, nil
}
