package sources

import (
	"context"
	"fmt"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

// plutoRow is the subset of the PLUTO tax-lot dataset we read.
type plutoRow struct {
	OwnerName        socrata.Value `json:"ownername"`
	BuildingClass    socrata.Value `json:"bldgclass"`
	LandUse          socrata.Value `json:"landuse"`
	ZoningDistrict   socrata.Value `json:"zonedist1"`
	ResidentialUnits socrata.Value `json:"unitsres"`
	TotalUnits       socrata.Value `json:"unitstotal"`
	NumFloors        socrata.Value `json:"numfloors"`
	BuildingArea     socrata.Value `json:"bldgarea"`
	LotArea          socrata.Value `json:"lotarea"`
	YearBuilt        socrata.Value `json:"yearbuilt"`
	YearAltered      socrata.Value `json:"yearalter1"`
}

// Parcel reads lot characteristics from PLUTO.
type Parcel struct {
	client  *socrata.Client
	dataset string
}

// NewParcel creates the PLUTO connector.
func NewParcel(client *socrata.Client, dataset string) *Parcel {
	return &Parcel{client: client, dataset: dataset}
}

func (p *Parcel) Source() models.Source { return models.SourceParcel }

func (p *Parcel) Fetch(ctx context.Context, b *models.Building) (models.FieldSet, error) {
	var rows []plutoRow
	err := p.client.Get(ctx, p.dataset, socrata.Query{
		Where: map[string]string{"bbl": b.BBL},
		Limit: 1,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parcel for %s: %w", b.BBL, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	fields := mapPluto(rows[0])
	if len(fields) == 0 {
		return nil, ErrNoData
	}
	return fields, nil
}

func mapPluto(r plutoRow) models.FieldSet {
	f := models.FieldSet{}
	f.Set("owner_name", r.OwnerName.Text())
	f.Set("building_class", r.BuildingClass.Text())
	f.Set("land_use", r.LandUse.Text())
	f.Set("zoning_district", r.ZoningDistrict.Text())
	f.Set("residential_units", r.ResidentialUnits.Int())
	f.Set("total_units", r.TotalUnits.Int())
	f.Set("num_floors", r.NumFloors.Float())
	f.Set("building_area", r.BuildingArea.Int())
	f.Set("lot_area", r.LotArea.Int())
	f.Set("year_built", positive(r.YearBuilt.Int()))
	f.Set("year_altered", positive(r.YearAltered.Int()))
	return f
}

// positive drops the zero placeholders PLUTO uses for unknown years.
func positive(n *int) *int {
	if n == nil || *n <= 0 {
		return nil
	}
	return n
}
