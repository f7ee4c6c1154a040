package sources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/ledger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

type legalRow struct {
	DocumentID socrata.Value `json:"document_id"`
}

type masterRow struct {
	DocumentID   socrata.Value `json:"document_id"`
	DocType      socrata.Value `json:"doc_type"`
	Amount       socrata.Value `json:"document_amt"`
	DocumentDate socrata.Value `json:"document_date"`
	RecordedAt   socrata.Value `json:"recorded_datetime"`
	CRFN         socrata.Value `json:"crfn"`
	PercentTrans socrata.Value `json:"percent_trans"`
}

type partyRow struct {
	PartyType socrata.Value `json:"party_type"`
	Name      socrata.Value `json:"name"`
	Address1  socrata.Value `json:"address_1"`
	Address2  socrata.Value `json:"address_2"`
	City      socrata.Value `json:"city"`
	State     socrata.Value `json:"state"`
	Zip       socrata.Value `json:"zip"`
	Country   socrata.Value `json:"country"`
}

// ACRIS reads recorded documents from the ACRIS real property datasets.
type ACRIS struct {
	client  *socrata.Client
	legals  string
	master  string
	parties string
}

// NewACRIS creates the ACRIS reader.
func NewACRIS(client *socrata.Client, cfg config.SourcesConfig) *ACRIS {
	return &ACRIS{
		client:  client,
		legals:  cfg.ACRISLegalsDataset,
		master:  cfg.ACRISMasterDataset,
		parties: cfg.ACRISPartiesDataset,
	}
}

// DocumentIDs lists the distinct documents recorded against a lot, in
// first-seen order.
func (a *ACRIS) DocumentIDs(ctx context.Context, p bbl.Parts) ([]string, error) {
	rows, err := socrata.FetchAll[legalRow](ctx, a.client, a.legals, socrata.Query{
		Where: map[string]string{
			"borough": strconv.Itoa(p.Borough),
			"block":   strconv.Itoa(p.Block),
			"lot":     strconv.Itoa(p.Lot),
		},
		Select: "document_id",
		Order:  "document_id",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch acris legals: %w", err)
	}

	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		id := r.DocumentID.Raw()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Document loads the master record and parties for one document. It returns
// nil, nil when the master dataset has no row for the id.
func (a *ACRIS) Document(ctx context.Context, documentID string) (*models.Transaction, error) {
	var masters []masterRow
	err := a.client.Get(ctx, a.master, socrata.Query{
		Where: map[string]string{"document_id": documentID},
		Limit: 1,
	}, &masters)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch acris master %s: %w", documentID, err)
	}
	if len(masters) == 0 {
		return nil, nil
	}

	parties, err := socrata.FetchAll[partyRow](ctx, a.client, a.parties, socrata.Query{
		Where: map[string]string{"document_id": documentID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch acris parties %s: %w", documentID, err)
	}

	t := mapMaster(documentID, masters[0])
	for _, pr := range parties {
		if party, ok := mapParty(t.Class, pr); ok {
			t.Parties = append(t.Parties, party)
		}
	}
	return &t, nil
}

func mapMaster(documentID string, r masterRow) models.Transaction {
	docType := r.DocType.Raw()
	return models.Transaction{
		DocumentID:         documentID,
		DocType:            docType,
		Class:              ledger.Classify(docType),
		Amount:             r.Amount.Float(),
		DocumentDate:       r.DocumentDate.Time(),
		RecordedDate:       r.RecordedAt.Time(),
		CRFN:               r.CRFN.Text(),
		PercentTransferred: r.PercentTrans.Float(),
	}
}

func mapParty(class models.DocClass, r partyRow) (models.Party, bool) {
	name := r.Name.Raw()
	if name == "" {
		return models.Party{}, false
	}
	return models.Party{
		Role: ledger.RoleFor(class, r.PartyType.Raw()),
		Name: name,
		Address: models.MailingAddress{
			Line1:   r.Address1.Raw(),
			Line2:   r.Address2.Raw(),
			City:    r.City.Raw(),
			State:   r.State.Raw(),
			Zip:     r.Zip.Raw(),
			Country: r.Country.Raw(),
		},
	}, true
}
