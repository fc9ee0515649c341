package qalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/curbside-labs/contenthub/engine/domain"
	"github.com/curbside-labs/contenthub/pkg/fn"
	"github.com/curbside-labs/contenthub/pkg/resilience"
)

// DefaultSheetName is the worksheet records are appended to.
const DefaultSheetName = "Q&A Log"

// NewSheetsService builds a Sheets API client from service-account JSON.
func NewSheetsService(ctx context.Context, credentialsJSON []byte) (*sheets.Service, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("qalog: parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("qalog: create sheets service: %w", err)
	}
	return svc, nil
}

// SheetsSink appends records to a Google Spreadsheet. It is the primary
// sink: a circuit breaker shields the rest of the pipeline from a flapping
// Sheets API, sending appends to the next sink while open.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	breaker       *resilience.Breaker

	mu      sync.Mutex
	ensured bool // worksheet and header verified this process
}

var (
	_ Sink         = (*SheetsSink)(nil)
	_ Sink         = (*CSVSink)(nil)
	_ RecordReader = (*SheetsSink)(nil)
	_ RecordReader = (*CSVSink)(nil)
)

// NewSheetsSink creates the primary sink. Missing configuration is
// reported as ErrNotConfigured so callers can degrade to fallback-only
// logging instead of failing.
func NewSheetsSink(svc *sheets.Service, spreadsheetID, sheetName string) (*SheetsSink, error) {
	if svc == nil {
		return nil, fmt.Errorf("qalog: sheets sink: %w: no sheets service", domain.ErrNotConfigured)
	}
	if spreadsheetID == "" {
		return nil, fmt.Errorf("qalog: sheets sink: %w: no spreadsheet id", domain.ErrNotConfigured)
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		breaker:       resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}, nil
}

// Name identifies the sink in logs.
func (s *SheetsSink) Name() string { return "sheets" }

// Append writes one record as a row. The first append of the process
// creates the worksheet and header row if the spreadsheet lacks them.
func (s *SheetsSink) Append(ctx context.Context, rec domain.QARecord) error {
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		if err := s.ensureSheet(ctx); err != nil {
			return err
		}
		row := make([]interface{}, 0, len(rowHeader))
		for _, cell := range recordRow(rec) {
			row = append(row, cell)
		}
		_, err := s.svc.Spreadsheets.Values.
			Append(s.spreadsheetID, s.rangeA1(), &sheets.ValueRange{Values: [][]interface{}{row}}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("qalog: sheets append: %w", err)
		}
		return nil
	})
}

// ReadAll returns every logged record, oldest first. Shares the breaker
// with Append so a dead API fails fast here too.
func (s *SheetsSink) ReadAll(ctx context.Context) ([]domain.QARecord, error) {
	var records []domain.QARecord
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeA1()).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("qalog: sheets read: %w", err)
		}
		records = fn.FilterMap(resp.Values, func(raw []interface{}) (domain.QARecord, bool) {
			row := fn.Map(raw, func(cell interface{}) string { return fmt.Sprint(cell) })
			return parseRow(row)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ensureSheet verifies the worksheet exists, creating it plus the header
// row when missing.
func (s *SheetsSink) ensureSheet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("qalog: get spreadsheet %s: %w", s.spreadsheetID, err)
	}

	found := false
	for _, sheet := range ss.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.sheetName {
			found = true
			break
		}
	}

	if !found {
		_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: s.sheetName},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("qalog: create worksheet %s: %w", s.sheetName, err)
		}

		header := make([]interface{}, len(rowHeader))
		for i, h := range rowHeader {
			header[i] = h
		}
		_, err = s.svc.Spreadsheets.Values.
			Append(s.spreadsheetID, s.rangeA1(), &sheets.ValueRange{Values: [][]interface{}{header}}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("qalog: write header row: %w", err)
		}
	}

	s.ensured = true
	return nil
}

// rangeA1 quotes the worksheet name for A1 notation.
func (s *SheetsSink) rangeA1() string {
	return "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'!A:E"
}
