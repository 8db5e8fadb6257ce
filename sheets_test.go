package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func TestLeadRowValues(t *testing.T) {
	row := LeadRow{
		CalledAt: time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
		Fields: LeadFields{
			LastName:      "Tremblay",
			FirstName:     "Marie",
			Address:       "12 rue Principale",
			City:          "Québec",
			PostalCode:    "G1A 1A1",
			Phone:         "+1 (418) 555-1234",
			ReasonForCall: "rénovation cuisine",
			Budget:        "20000",
		},
		Category:     "Soumission",
		CustomerType: "Nouveau",
	}

	assert.Equal(t, []any{
		"2026-03-04T15:30:00Z", "Tremblay", "Marie", "12 rue Principale", "Québec",
		"G1A 1A1", "4185551234", "rénovation cuisine", "20000", "Soumission", "Nouveau",
	}, row.Values())
	assert.Len(t, sheetHeader, sheetColumns)
}

func TestMatchCustomer(t *testing.T) {
	rows := [][]any{
		{"2026-01-01", "Tremblay", "Marie", "", "", "", "4185551234"},
		{"2026-01-02", "Gagnon", "Luc", "", "", "", "4185550000"},
		{"2026-01-03", "TREMBLAY", "marie", "", "", "", "418-555-1234", "", "", "", "Régulier"},
		{"2026-01-04", "Tremblay"},
	}

	m := matchCustomer(rows, 2, "tremblay", "Marie", "1 418 555 1234")
	require.NotNil(t, m)
	assert.Equal(t, 4, m.RowIndex, "last matching row wins")
	assert.Equal(t, "Régulier", m.Row[colCustomerType])

	assert.Nil(t, matchCustomer(rows, 2, "Tremblay", "Marie", "4185559999"))
	assert.Nil(t, matchCustomer(rows, 2, "Tremblay", "Jean", "4185551234"))
	assert.Nil(t, matchCustomer(nil, 2, "Tremblay", "Marie", "4185551234"))
}

func TestGoogleSheetNotConfigured(t *testing.T) {
	g, err := NewGoogleSheet(context.Background(), "", "", "Prospect", nil)
	require.NoError(t, err)

	_, err = g.FindCustomer(context.Background(), "a", "b", "4185551234")
	assert.True(t, errors.Is(err, errNotConfigured))
	_, err = g.AppendLead(context.Background(), LeadRow{})
	assert.True(t, errors.Is(err, errNotConfigured))
	_, err = g.Header(context.Background())
	assert.True(t, errors.Is(err, errNotConfigured))
}

// fakeSheetsAPI serves the Sheets v4 values endpoints from memory.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	rows     [][]any // data rows, sheet row 2 onwards
	header   []any
	appended [][]any
	options  []string // valueInputOption of each write
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const prefix = "/v4/spreadsheets/sheet-1/values/"
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == prefix+"Prospect!A2:K":
		json.NewEncoder(w).Encode(sheets.ValueRange{Range: "Prospect!A2:K", Values: f.rows})
	case r.Method == http.MethodGet && r.URL.Path == prefix+"Prospect!A1:K1":
		json.NewEncoder(w).Encode(sheets.ValueRange{Range: "Prospect!A1:K1", Values: [][]any{f.header}})
	case r.Method == http.MethodPost && r.URL.Path == prefix+"Prospect!A:K:append":
		var body sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.options = append(f.options, r.URL.Query().Get("valueInputOption"))
		f.appended = append(f.appended, body.Values...)
		json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			SpreadsheetId: "sheet-1",
			Updates:       &sheets.UpdateValuesResponse{UpdatedRange: "Prospect!A5:K5", UpdatedRows: 1},
		})
	case r.Method == http.MethodPut && r.URL.Path == prefix+"Prospect!A1:K1":
		var body sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Values) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		f.options = append(f.options, r.URL.Query().Get("valueInputOption"))
		f.header = body.Values[0]
		json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{UpdatedRange: "Prospect!A1:K1"})
	default:
		http.Error(w, `{"error": {"code": 404, "message": "unexpected `+r.Method+" "+r.URL.Path+`"}}`, http.StatusNotFound)
	}
}

func newTestGoogleSheet(t *testing.T, api *fakeSheetsAPI) *GoogleSheet {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	g, err := NewGoogleSheet(context.Background(), "", "sheet-1", "Prospect", NewMetrics(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return g
}

func TestGoogleSheetFindCustomer(t *testing.T) {
	api := &fakeSheetsAPI{rows: [][]any{
		{"2026-01-01", "Gagnon", "Luc", "", "", "", "4185550000"},
		{"2026-01-02", "Tremblay", "Marie", "", "", "", 4185551234.0, "", "", "", "Régulier"},
		{"2026-01-03"},
	}}
	g := newTestGoogleSheet(t, api)

	m, err := g.FindCustomer(context.Background(), "TREMBLAY", "marie", "(418) 555-1234")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 3, m.RowIndex)
	assert.Equal(t, "4185551234", m.Row[colPhone])
	assert.Equal(t, "Régulier", m.Row[colCustomerType])

	m, err = g.FindCustomer(context.Background(), "Tremblay", "Marie", "4185559999")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestGoogleSheetAppendLead(t *testing.T) {
	api := &fakeSheetsAPI{}
	g := newTestGoogleSheet(t, api)

	updated, err := g.AppendLead(context.Background(), LeadRow{
		CalledAt:     time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
		Fields:       LeadFields{LastName: "Tremblay", FirstName: "Marie", Phone: "418-555-1234"},
		Category:     "Soumission",
		CustomerType: customerTypeNewLead,
	})
	require.NoError(t, err)
	assert.Equal(t, "Prospect!A5:K5", updated)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.appended, 1)
	row := api.appended[0]
	require.Len(t, row, sheetColumns)
	assert.Equal(t, "2026-03-04T15:30:00Z", row[colCallDate])
	assert.Equal(t, "Tremblay", row[colLastName])
	assert.Equal(t, "4185551234", row[colPhone])
	assert.Equal(t, customerTypeNewLead, row[colCustomerType])
	assert.Equal(t, []string{"USER_ENTERED"}, api.options)
}

func TestGoogleSheetHeaderRoundTrip(t *testing.T) {
	api := &fakeSheetsAPI{header: []any{"Date"}}
	g := newTestGoogleSheet(t, api)

	header, err := g.Header(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Date"}, header)

	require.NoError(t, g.WriteHeader(context.Background()))
	header, err = g.Header(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sheetHeader, header)
	assert.Equal(t, []string{"RAW"}, api.options)
}

func TestGoogleSheetAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "denied"}}`, http.StatusForbidden)
	}))
	defer srv.Close()
	g, err := NewGoogleSheet(context.Background(), "", "sheet-1", "Prospect", nil,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	_, err = g.FindCustomer(context.Background(), "a", "b", "4185551234")
	assert.ErrorContains(t, err, "read rows")
	_, err = g.AppendLead(context.Background(), LeadRow{})
	assert.ErrorContains(t, err, "append row")
}

func TestCellStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "4185551234", "12.5", "", "true"},
		cellStrings([]any{"a", 4185551234.0, 12.5, nil, true}))
}
