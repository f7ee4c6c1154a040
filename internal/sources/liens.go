package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

type lienRow struct {
	Month         socrata.Value `json:"month"`
	WaterDebtOnly socrata.Value `json:"waterdebtonly"`
}

// Liens reads the DOF tax lien sale list and DOB ECB violations.
type Liens struct {
	client  *socrata.Client
	lienSet string
	ecbSet  string
	log     *logger.Logger
}

// NewLiens creates the lien and ECB connector.
func NewLiens(client *socrata.Client, lienDataset, ecbDataset string, log *logger.Logger) *Liens {
	if log == nil {
		log = logger.Nop()
	}
	return &Liens{client: client, lienSet: lienDataset, ecbSet: ecbDataset, log: log}
}

func (l *Liens) Source() models.Source { return models.SourceLiens }

func (l *Liens) Fetch(ctx context.Context, b *models.Building) (models.FieldSet, error) {
	parts, err := splitBBL(b)
	if err != nil {
		return nil, err
	}

	fields := models.FieldSet{}
	var errs []error

	if latest, found, err := l.latestLien(ctx, parts); err != nil {
		errs = append(errs, err)
	} else {
		mapLien(fields, latest, found)
	}

	if total, open, balance, err := l.ecbSummary(ctx, parts); err != nil {
		errs = append(errs, err)
	} else {
		fields.Set("ecb_violation_count", total)
		fields.Set("ecb_open_violation_count", open)
		fields.Set("ecb_balance_due", balance)
	}

	return collect(l.log, models.SourceLiens, b, fields, errs)
}

func (l *Liens) latestLien(ctx context.Context, p bbl.Parts) (lienRow, bool, error) {
	var rows []lienRow
	err := l.client.Get(ctx, l.lienSet, socrata.Query{
		Where: lotFilter("borough", p),
		Order: "month DESC",
		Limit: 1,
	}, &rows)
	if err != nil {
		return lienRow{}, false, fmt.Errorf("failed to fetch tax lien list: %w", err)
	}
	if len(rows) == 0 {
		return lienRow{}, false, nil
	}
	return rows[0], true, nil
}

// mapLien records presence on the lien sale list. Absence is a definite
// "no lien", not missing data, so an earlier lien's details are cleared.
func mapLien(f models.FieldSet, r lienRow, found bool) {
	f.Set("has_tax_lien", found)
	if !found {
		f.Clear("tax_lien_month")
		f.Clear("tax_lien_water_only")
		return
	}
	if t := r.Month.Time(); t != nil {
		f.Set("tax_lien_month", t.Format("2006-01"))
	} else {
		f.Set("tax_lien_month", r.Month.Text())
	}
	f.Set("tax_lien_water_only", r.WaterDebtOnly.Bool())
}

// ecbSummary counts ECB violations and sums the balance due. ECB pads block
// and lot to their BBL widths.
func (l *Liens) ecbSummary(ctx context.Context, p bbl.Parts) (int, int, float64, error) {
	var rows []countRow
	err := l.client.Get(ctx, l.ecbSet, socrata.Query{
		Where: map[string]string{
			"boro":  strconv.Itoa(p.Borough),
			"block": fmt.Sprintf("%05d", p.Block),
			"lot":   fmt.Sprintf("%04d", p.Lot),
		},
		Select: "ecb_violation_status AS status, count(*) AS n, sum(balance_due) AS balance",
		Group:  "ecb_violation_status",
	}, &rows)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to fetch ecb violations: %w", err)
	}

	total, open, balance := 0, 0, 0.0
	for _, r := range rows {
		n := 0
		if v := r.N.Int(); v != nil {
			n = *v
		}
		total += n
		if strings.EqualFold(r.Status.Raw(), "ACTIVE") {
			open += n
		}
		if v := r.Balance.Float(); v != nil {
			balance += *v
		}
	}
	return total, open, balance, nil
}
