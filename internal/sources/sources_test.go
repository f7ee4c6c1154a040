package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/bbl"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/socrata"
)

var testDatasets = config.SourcesConfig{
	PlutoDataset:        "pluto",
	AssessmentDataset:   "assessment",
	HPDRegistrations:    "registrations",
	HPDContacts:         "contacts",
	HPDViolations:       "violations",
	HPDComplaints:       "complaints",
	TaxLienDataset:      "liens",
	ECBDataset:          "ecb",
	ACRISLegalsDataset:  "legals",
	ACRISMasterDataset:  "master",
	ACRISPartiesDataset: "parties",
}

// fakeSocrata serves canned JSON per dataset. A response of "500" makes the
// dataset fail.
func fakeSocrata(t *testing.T, responses map[string]func(r *http.Request) string) *socrata.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dataset := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/resource/"), ".json")
		respond, ok := responses[dataset]
		if !ok {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		body := respond(r)
		if body == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return socrata.New(socrata.Options{BaseURL: server.URL, Timeout: 2 * time.Second, RetryWait: time.Millisecond}, nil)
}

func static(body string) func(*http.Request) string {
	return func(*http.Request) string { return body }
}

var testBuilding = &models.Building{ID: 1, BBL: "3012340056"}

func TestParcel_MapsPluto(t *testing.T) {
	var gotBBL string
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"pluto": func(r *http.Request) string {
			gotBBL = r.URL.Query().Get("bbl")
			return `[{"ownername":"DEAN HOLDINGS LLC","bldgclass":"C0","unitsres":"3","numfloors":"3.5","yearbuilt":"1931","yearalter1":"0"}]`
		},
	})

	fields, err := NewParcel(client, "pluto").Fetch(context.Background(), testBuilding)

	require.NoError(t, err)
	assert.Equal(t, "3012340056", gotBBL)
	assert.Equal(t, "DEAN HOLDINGS LLC", fields["owner_name"])
	assert.Equal(t, 3, fields["residential_units"])
	assert.Equal(t, 3.5, fields["num_floors"])
	assert.Equal(t, 1931, fields["year_built"])
	assert.NotContains(t, fields, "year_altered")
	assert.NotContains(t, fields, "zoning_district")
}

func TestParcel_NoRows(t *testing.T) {
	client := fakeSocrata(t, nil)
	_, err := NewParcel(client, "pluto").Fetch(context.Background(), testBuilding)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParcel_SourceDown(t *testing.T) {
	client := fakeSocrata(t, map[string]func(*http.Request) string{"pluto": static("500")})
	_, err := NewParcel(client, "pluto").Fetch(context.Background(), testBuilding)
	assert.ErrorIs(t, err, socrata.ErrSourceUnavailable)
}

func TestAssessment_LatestYear(t *testing.T) {
	var order, parid string
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"assessment": func(r *http.Request) string {
			order = r.URL.Query().Get("$order")
			parid = r.URL.Query().Get("parid")
			return `[{"year":"2026","owner":"DEAN HOLDINGS","curactland":"51000","curacttot":"210000","curmkttot":"1400000"}]`
		},
	})

	fields, err := NewAssessment(client, "assessment").Fetch(context.Background(), testBuilding)

	require.NoError(t, err)
	assert.Equal(t, "year DESC", order)
	assert.Equal(t, "3012340056", parid)
	assert.Equal(t, 210000.0, fields["assessed_total_value"])
	assert.Equal(t, 1400000.0, fields["market_value"])
	assert.Equal(t, "2026", fields["assessment_year"])
}

func housingResponses() map[string]func(*http.Request) string {
	return map[string]func(*http.Request) string{
		"registrations": func(r *http.Request) string {
			q := r.URL.Query()
			if q.Get("boroid") != "3" || q.Get("block") != "1234" || q.Get("lot") != "56" {
				return `[]`
			}
			return `[{"registrationid":"R100","registrationenddate":"2026-09-30T00:00:00.000"}]`
		},
		"contacts": static(`[
			{"type":"Agent","corporationname":"MGMT CO"},
			{"type":"IndividualOwner","firstname":"JANE","lastname":"ROE"},
			{"type":"CorporateOwner","corporationname":"DEAN HOLDINGS LLC","businesshousenumber":"9","businessstreetname":"ELM ST","businesscity":"BROOKLYN","businessstate":"NY","businesszip":"11201"}
		]`),
		"violations": static(`[{"status":"Open","n":"4"},{"status":"Close","n":"10"},{"status":"Dismissed","n":"1"}]`),
		"complaints": static(`[{"n":"7"}]`),
	}
}

func TestHousing_FullLookup(t *testing.T) {
	client := fakeSocrata(t, housingResponses())

	fields, err := NewHousing(client, testDatasets, nil).Fetch(context.Background(), testBuilding)

	require.NoError(t, err)
	assert.Equal(t, "R100", fields["hpd_registration_id"])
	assert.Equal(t, "DEAN HOLDINGS LLC", fields["hpd_owner_name"])
	assert.Equal(t, "CorporateOwner", fields["hpd_owner_type"])
	assert.Equal(t, "9 ELM ST, BROOKLYN, NY 11201", fields["hpd_owner_address"])
	assert.Equal(t, 15, fields["hpd_violation_count"])
	assert.Equal(t, 4, fields["hpd_open_violation_count"])
	assert.Equal(t, 7, fields["hpd_complaint_count"])
	assert.Equal(t, time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), fields["hpd_registration_end_date"])
}

func TestHousing_ComplaintFailureKeepsViolations(t *testing.T) {
	responses := housingResponses()
	responses["complaints"] = static("500")
	client := fakeSocrata(t, responses)

	fields, err := NewHousing(client, testDatasets, nil).Fetch(context.Background(), testBuilding)

	require.NoError(t, err)
	assert.Equal(t, 15, fields["hpd_violation_count"])
	assert.NotContains(t, fields, "hpd_complaint_count")
}

func TestHousing_AllLookupsFail(t *testing.T) {
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"registrations": static("500"),
		"violations":    static("500"),
		"complaints":    static("500"),
	})

	_, err := NewHousing(client, testDatasets, nil).Fetch(context.Background(), testBuilding)
	assert.ErrorIs(t, err, socrata.ErrSourceUnavailable)
}

func TestPickOwnerContact_Preference(t *testing.T) {
	rows := []contactRow{
		{Type: socrata.NewValue("IndividualOwner"), LastName: socrata.NewValue("ROE")},
		{Type: socrata.NewValue("HeadOfficer"), LastName: socrata.NewValue("DOE")},
		{Type: socrata.NewValue("HeadOfficer"), LastName: socrata.NewValue("LATER")},
	}
	got := pickOwnerContact(rows)
	require.NotNil(t, got)
	assert.Equal(t, "DOE", got.LastName.Raw())

	assert.Nil(t, pickOwnerContact([]contactRow{{Type: socrata.NewValue("Agent")}}))
}

func TestLiens_OnListWithECB(t *testing.T) {
	var ecbBlock, ecbLot string
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"liens": static(`[{"month":"2025-05-01T00:00:00.000","waterdebtonly":"NO"}]`),
		"ecb": func(r *http.Request) string {
			ecbBlock = r.URL.Query().Get("block")
			ecbLot = r.URL.Query().Get("lot")
			return `[{"status":"ACTIVE","n":"2","balance":"1500.50"},{"status":"RESOLVE","n":"5","balance":"0"}]`
		},
	})

	fields, err := NewLiens(client, "liens", "ecb", nil).Fetch(context.Background(), testBuilding)

	require.NoError(t, err)
	assert.Equal(t, "01234", ecbBlock)
	assert.Equal(t, "0056", ecbLot)
	assert.Equal(t, true, fields["has_tax_lien"])
	assert.Equal(t, "2025-05", fields["tax_lien_month"])
	assert.Equal(t, false, fields["tax_lien_water_only"])
	assert.Equal(t, 7, fields["ecb_violation_count"])
	assert.Equal(t, 2, fields["ecb_open_violation_count"])
	assert.Equal(t, 1500.5, fields["ecb_balance_due"])
}

func TestLiens_NotOnListIsData(t *testing.T) {
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"ecb": static("500"),
	})

	fields, err := NewLiens(client, "liens", "ecb", nil).Fetch(context.Background(), testBuilding)

	require.NoError(t, err)
	assert.Equal(t, false, fields["has_tax_lien"])
	assert.Equal(t, models.Cleared, fields["tax_lien_month"])
	assert.Equal(t, models.Cleared, fields["tax_lien_water_only"])
	assert.NotContains(t, fields, "ecb_violation_count")
}

func TestACRIS_DocumentIDsDeduplicated(t *testing.T) {
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"legals": static(`[{"document_id":"D1"},{"document_id":"D1"},{"document_id":"M1"},{"document_id":""}]`),
	})

	parts, _ := bbl.Split("3012340056")
	ids, err := NewACRIS(client, testDatasets).DocumentIDs(context.Background(), parts)

	require.NoError(t, err)
	assert.Equal(t, []string{"D1", "M1"}, ids)
}

func TestACRIS_Document(t *testing.T) {
	client := fakeSocrata(t, map[string]func(*http.Request) string{
		"master": static(`[{"document_id":"D1","doc_type":"DEED","document_amt":"1250000","document_date":"2024-05-01T00:00:00.000","recorded_datetime":"2024-05-09T00:00:00.000","crfn":"2024000123456","percent_trans":"100"}]`),
		"parties": static(`[
			{"party_type":"1","name":"JANE ROE","address_1":"9 ELM ST","city":"BROOKLYN","state":"NY","zip":"11201"},
			{"party_type":"2","name":"DEAN HOLDINGS LLC"},
			{"party_type":"2","name":""}
		]`),
	})

	doc, err := NewACRIS(client, testDatasets).Document(context.Background(), "D1")

	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, models.DocClassDeed, doc.Class)
	assert.Equal(t, 1250000.0, *doc.Amount)
	assert.Equal(t, "2024000123456", *doc.CRFN)
	require.Len(t, doc.Parties, 2)
	assert.Equal(t, models.RoleSeller, doc.Parties[0].Role)
	assert.Equal(t, "BROOKLYN", doc.Parties[0].Address.City)
	assert.Equal(t, "DEAN HOLDINGS LLC", *doc.FirstPartyName(models.RoleBuyer))
}

func TestACRIS_DocumentMissingMaster(t *testing.T) {
	client := fakeSocrata(t, nil)
	doc, err := NewACRIS(client, testDatasets).Document(context.Background(), "GONE")
	assert.NoError(t, err)
	assert.Nil(t, doc)
}
