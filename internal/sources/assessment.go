package sources

import (
	"context"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

// assessmentRow is one roll-year row of the DOF property valuation dataset.
type assessmentRow struct {
	Year        socrata.Value `json:"year"`
	Owner       socrata.Value `json:"owner"`
	ActualLand  socrata.Value `json:"curactland"`
	ActualTotal socrata.Value `json:"curacttot"`
	MarketTotal socrata.Value `json:"curmkttot"`
}

// Assessment reads the latest tax roll valuation for a lot.
type Assessment struct {
	client  *socrata.Client
	dataset string
}

// NewAssessment creates the DOF assessment connector.
func NewAssessment(client *socrata.Client, dataset string) *Assessment {
	return &Assessment{client: client, dataset: dataset}
}

func (a *Assessment) Source() models.Source { return models.SourceAssessment }

func (a *Assessment) Fetch(ctx context.Context, b *models.Building) (models.FieldSet, error) {
	var rows []assessmentRow
	err := a.client.Get(ctx, a.dataset, socrata.Query{
		Where: map[string]string{"parid": b.BBL},
		Order: "year DESC",
		Limit: 1,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessment for %s: %w", b.BBL, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	fields := mapAssessment(rows[0])
	if len(fields) == 0 {
		return nil, ErrNoData
	}
	return fields, nil
}

func mapAssessment(r assessmentRow) models.FieldSet {
	f := models.FieldSet{}
	f.Set("assessed_land_value", r.ActualLand.Float())
	f.Set("assessed_total_value", r.ActualTotal.Float())
	f.Set("market_value", r.MarketTotal.Float())
	f.Set("taxpayer_name", r.Owner.Text())
	f.Set("assessment_year", r.Year.Text())
	return f
}
