package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Spreadsheet column order (A–K).
const (
	colCallDate = iota
	colLastName
	colFirstName
	colAddress
	colCity
	colPostalCode
	colPhone
	colReason
	colBudget
	colCategory
	colCustomerType
	sheetColumns
)

// sheetHeader is the expected first row of the lead tab.
var sheetHeader = []string{
	"Date d'appel", "Nom", "Prénom", "Adresse", "Ville", "Code postal",
	"Téléphone", "Raison de l'appel", "Budget", "Catégorie", "Type de client",
}

// CustomerMatch is an existing spreadsheet row matching the caller.
type CustomerMatch struct {
	RowIndex int // 1-based sheet row
	Row      []string
}

// LeadRow is one finalized call as written to the spreadsheet.
type LeadRow struct {
	CalledAt     time.Time
	Fields       LeadFields
	Category     string
	CustomerType string
}

// Values returns the row cells in column order.
func (r LeadRow) Values() []any {
	row := make([]any, sheetColumns)
	row[colCallDate] = r.CalledAt.UTC().Format(time.RFC3339)
	row[colLastName] = r.Fields.LastName
	row[colFirstName] = r.Fields.FirstName
	row[colAddress] = r.Fields.Address
	row[colCity] = r.Fields.City
	row[colPostalCode] = r.Fields.PostalCode
	row[colPhone] = normalizePhone(r.Fields.Phone)
	row[colReason] = r.Fields.ReasonForCall
	row[colBudget] = r.Fields.Budget
	row[colCategory] = r.Category
	row[colCustomerType] = r.CustomerType
	return row
}

// LeadSheet is the spreadsheet collaborator.
type LeadSheet interface {
	FindCustomer(ctx context.Context, lastName, firstName, phone string) (*CustomerMatch, error)
	AppendLead(ctx context.Context, row LeadRow) (string, error)
}

// GoogleSheet implements LeadSheet on a Google Sheets tab.
type GoogleSheet struct {
	svc           *sheets.Service
	spreadsheetID string
	tab           string
	metrics       *Metrics
}

// NewGoogleSheet authenticates with a service-account credentials file. An
// empty spreadsheetID yields a sheet whose calls fail with errNotConfigured.
// extra options are applied after the defaults.
func NewGoogleSheet(ctx context.Context, credentialsFile, spreadsheetID, tab string, metrics *Metrics, extra ...option.ClientOption) (*GoogleSheet, error) {
	g := &GoogleSheet{spreadsheetID: spreadsheetID, tab: tab, metrics: metrics}
	if spreadsheetID == "" {
		log.Println("[Sheets] Warning: GOOGLE_SHEETS_ID not set, leads will not be recorded")
		return g, nil
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	g.svc = svc
	return g, nil
}

// FindCustomer scans the data rows for a name and phone match.
func (g *GoogleSheet) FindCustomer(ctx context.Context, lastName, firstName, phone string) (*CustomerMatch, error) {
	if g.svc == nil {
		return nil, fmt.Errorf("sheets: %w", errNotConfigured)
	}
	start := time.Now()
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.tab+"!A2:K").Context(ctx).Do()
	g.metrics.observeLatency("sheets", start)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return matchCustomer(resp.Values, 2, lastName, firstName, phone), nil
}

// AppendLead appends one row and returns the updated range.
func (g *GoogleSheet) AppendLead(ctx context.Context, row LeadRow) (string, error) {
	if g.svc == nil {
		return "", fmt.Errorf("sheets: %w", errNotConfigured)
	}
	start := time.Now()
	resp, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, g.tab+"!A:K", &sheets.ValueRange{
		Values: [][]any{row.Values()},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	g.metrics.observeLatency("sheets", start)
	if err != nil {
		return "", fmt.Errorf("append row: %w", err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

// Header reads the first row of the tab.
func (g *GoogleSheet) Header(ctx context.Context) ([]string, error) {
	if g.svc == nil {
		return nil, fmt.Errorf("sheets: %w", errNotConfigured)
	}
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.tab+"!A1:K1").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return cellStrings(resp.Values[0]), nil
}

// WriteHeader overwrites the first row with the expected column titles.
func (g *GoogleSheet) WriteHeader(ctx context.Context) error {
	if g.svc == nil {
		return fmt.Errorf("sheets: %w", errNotConfigured)
	}
	header := make([]any, len(sheetHeader))
	for i, h := range sheetHeader {
		header[i] = h
	}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, g.tab+"!A1:K1", &sheets.ValueRange{
		Values: [][]any{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// matchCustomer returns the last row whose names match case-insensitively and
// whose phone matches after normalization. firstRow is the sheet row number of
// rows[0].
func matchCustomer(rows [][]any, firstRow int, lastName, firstName, phone string) *CustomerMatch {
	phone = normalizePhone(phone)
	var found *CustomerMatch
	for i, raw := range rows {
		row := cellStrings(raw)
		if len(row) <= colPhone {
			continue
		}
		if sameName(row[colLastName], lastName) &&
			sameName(row[colFirstName], firstName) &&
			normalizePhone(row[colPhone]) == phone {
			found = &CustomerMatch{RowIndex: firstRow + i, Row: row}
		}
	}
	return found
}

// cellStrings renders a row's cells; numbers print without an exponent.
func cellStrings(raw []any) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		switch v := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
