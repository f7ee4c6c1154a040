// Package sources maps NYC open-data datasets onto Building field groups.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

// ErrNoData means the source answered but holds nothing for the property.
var ErrNoData = errors.New("no data for property")

// Connector fetches one source's field group for a building. The returned
// FieldSet only carries columns the source owns; absent values are omitted.
type Connector interface {
	Source() models.Source
	Fetch(ctx context.Context, b *models.Building) (models.FieldSet, error)
}

// NewConnectors builds the field-group connectors keyed by source.
func NewConnectors(client *socrata.Client, cfg config.SourcesConfig, log *logger.Logger) map[models.Source]Connector {
	return map[models.Source]Connector{
		models.SourceParcel:     NewParcel(client, cfg.PlutoDataset),
		models.SourceAssessment: NewAssessment(client, cfg.AssessmentDataset),
		models.SourceHousing:    NewHousing(client, cfg, log),
		models.SourceLiens:      NewLiens(client, cfg.TaxLienDataset, cfg.ECBDataset, log),
	}
}

// countRow is the shape of a `count(*) AS n` aggregate.
type countRow struct {
	Status  socrata.Value `json:"status"`
	N       socrata.Value `json:"n"`
	Balance socrata.Value `json:"balance"`
}

func splitBBL(b *models.Building) (bbl.Parts, error) {
	parts, ok := bbl.Split(b.BBL)
	if !ok {
		return bbl.Parts{}, fmt.Errorf("building %d has malformed bbl %q", b.ID, b.BBL)
	}
	return parts, nil
}

// lotFilter is the boroid/block/lot style equality filter with unpadded
// numbers.
func lotFilter(boroughField string, p bbl.Parts) map[string]string {
	return map[string]string{
		boroughField: strconv.Itoa(p.Borough),
		"block":      strconv.Itoa(p.Block),
		"lot":        strconv.Itoa(p.Lot),
	}
}

// collect merges the outcome of isolated sub-lookups. Partial failures are
// logged and the fields that did arrive are kept.
func collect(log *logger.Logger, source models.Source, b *models.Building, fields models.FieldSet, errs []error) (models.FieldSet, error) {
	if len(fields) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoData
	}
	for _, err := range errs {
		log.Warn("Sub-lookup failed, keeping partial result", logger.Fields{
			"source": string(source),
			"bbl":    b.BBL,
			"error":  err.Error(),
		})
	}
	return fields, nil
}
