package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

type registrationRow struct {
	RegistrationID socrata.Value `json:"registrationid"`
	EndDate        socrata.Value `json:"registrationenddate"`
}

type contactRow struct {
	Type            socrata.Value `json:"type"`
	CorporationName socrata.Value `json:"corporationname"`
	FirstName       socrata.Value `json:"firstname"`
	LastName        socrata.Value `json:"lastname"`
	HouseNumber     socrata.Value `json:"businesshousenumber"`
	StreetName      socrata.Value `json:"businessstreetname"`
	Apartment       socrata.Value `json:"businessapartment"`
	City            socrata.Value `json:"businesscity"`
	State           socrata.Value `json:"businessstate"`
	Zip             socrata.Value `json:"businesszip"`
}

// ownerContactTypes is the preference order for the registered owner.
var ownerContactTypes = []string{"HeadOfficer", "CorporateOwner", "IndividualOwner"}

// Housing reads HPD registration, owner contact, violation and complaint
// data. Each of the four lookups is isolated from the others.
type Housing struct {
	client        *socrata.Client
	registrations string
	contacts      string
	violations    string
	complaints    string
	log           *logger.Logger
}

// NewHousing creates the HPD connector.
func NewHousing(client *socrata.Client, cfg config.SourcesConfig, log *logger.Logger) *Housing {
	if log == nil {
		log = logger.Nop()
	}
	return &Housing{
		client:        client,
		registrations: cfg.HPDRegistrations,
		contacts:      cfg.HPDContacts,
		violations:    cfg.HPDViolations,
		complaints:    cfg.HPDComplaints,
		log:           log,
	}
}

func (h *Housing) Source() models.Source { return models.SourceHousing }

func (h *Housing) Fetch(ctx context.Context, b *models.Building) (models.FieldSet, error) {
	parts, err := splitBBL(b)
	if err != nil {
		return nil, err
	}

	fields := models.FieldSet{}
	var errs []error

	reg, err := h.registration(ctx, parts)
	switch {
	case err != nil:
		errs = append(errs, err)
	case reg != nil:
		fields.Set("hpd_registration_id", reg.RegistrationID.Text())
		fields.Set("hpd_registration_end_date", reg.EndDate.Time())

		if id := reg.RegistrationID.Raw(); id != "" {
			contact, err := h.ownerContact(ctx, id)
			if err != nil {
				errs = append(errs, err)
			} else if contact != nil {
				mapContact(fields, *contact)
			}
		}
	}

	if total, open, err := h.violationCounts(ctx, parts); err != nil {
		errs = append(errs, err)
	} else {
		fields.Set("hpd_violation_count", total)
		fields.Set("hpd_open_violation_count", open)
	}

	if n, err := h.complaintCount(ctx, b.BBL); err != nil {
		errs = append(errs, err)
	} else {
		fields.Set("hpd_complaint_count", n)
	}

	return collect(h.log, models.SourceHousing, b, fields, errs)
}

// registration returns the registration with the latest end date, or nil.
func (h *Housing) registration(ctx context.Context, p bbl.Parts) (*registrationRow, error) {
	var rows []registrationRow
	err := h.client.Get(ctx, h.registrations, socrata.Query{
		Where: lotFilter("boroid", p),
		Order: "registrationenddate DESC",
		Limit: 1,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hpd registration: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (h *Housing) ownerContact(ctx context.Context, registrationID string) (*contactRow, error) {
	rows, err := socrata.FetchAll[contactRow](ctx, h.client, h.contacts, socrata.Query{
		Where: map[string]string{"registrationid": registrationID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hpd contacts for %s: %w", registrationID, err)
	}
	return pickOwnerContact(rows), nil
}

// pickOwnerContact applies the contact type preference; the first row of
// the most preferred type wins.
func pickOwnerContact(rows []contactRow) *contactRow {
	for _, want := range ownerContactTypes {
		for i := range rows {
			if strings.EqualFold(rows[i].Type.Raw(), want) {
				return &rows[i]
			}
		}
	}
	return nil
}

func mapContact(f models.FieldSet, c contactRow) {
	name := c.CorporationName.Raw()
	if name == "" {
		name = strings.TrimSpace(c.FirstName.Raw() + " " + c.LastName.Raw())
	}
	if name != "" {
		f.Set("hpd_owner_name", name)
	}
	f.Set("hpd_owner_type", c.Type.Text())

	addr := models.MailingAddress{
		Line1: strings.TrimSpace(c.HouseNumber.Raw() + " " + c.StreetName.Raw()),
		Line2: c.Apartment.Raw(),
		City:  c.City.Raw(),
		State: c.State.Raw(),
		Zip:   c.Zip.Raw(),
	}
	if !addr.IsEmpty() {
		f.Set("hpd_owner_address", addr.String())
	}
}

// violationCounts returns the total and open violation counts. A violation
// is open unless its status reads closed or dismissed.
func (h *Housing) violationCounts(ctx context.Context, p bbl.Parts) (int, int, error) {
	var rows []countRow
	err := h.client.Get(ctx, h.violations, socrata.Query{
		Where:  lotFilter("boroid", p),
		Select: "violationstatus AS status, count(*) AS n",
		Group:  "violationstatus",
	}, &rows)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch hpd violations: %w", err)
	}

	total, open := 0, 0
	for _, r := range rows {
		n := 0
		if v := r.N.Int(); v != nil {
			n = *v
		}
		total += n
		if isOpenStatus(r.Status.Raw()) {
			open += n
		}
	}
	return total, open, nil
}

func isOpenStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return !strings.HasPrefix(s, "close") && !strings.HasPrefix(s, "dismiss")
}

func (h *Housing) complaintCount(ctx context.Context, id string) (int, error) {
	var rows []countRow
	err := h.client.Get(ctx, h.complaints, socrata.Query{
		Where:  map[string]string{"bbl": id},
		Select: "count(*) AS n",
	}, &rows)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch hpd complaints: %w", err)
	}
	if len(rows) == 0 || rows[0].N.Int() == nil {
		return 0, nil
	}
	return *rows[0].N.Int(), nil
}
