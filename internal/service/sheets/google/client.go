// Package google provides a Google Sheets row appender.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var (
	ErrMissingSpreadsheetID = errors.New("spreadsheet id is not configured")
	ErrNoSheets             = errors.New("spreadsheet has no sheets")
)

// Config holds the Google Sheets target and credentials.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string // service-account key; empty falls back to application default credentials
	Endpoint        string // API endpoint override
	HTTPClient      *http.Client
	OpenTimeout     time.Duration // bounds the shared spreadsheet lookup; 0 means DefaultOpenTimeout
}

// DefaultOpenTimeout bounds one spreadsheet lookup.
const DefaultOpenTimeout = 30 * time.Second

// Client implements sheets.Appender against the first tab of one spreadsheet.
// The service and tab are resolved on first use and cached after success, so
// credential problems surface per delivery rather than at startup. The cache
// is dropped when the tab it names no longer accepts appends.
type Client struct {
	cfg Config

	mu    sync.Mutex
	sheet *Sheet

	// opens collapses concurrent first opens into one network round trip.
	opens singleflight.Group
}

// New creates a client. No network calls are made until the first append.
func New(cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, ErrMissingSpreadsheetID
	}
	return &Client{cfg: cfg}, nil
}

// AppendRow appends values to the first tab. If the cached tab was renamed,
// deleted or displaced, the tab is resolved again and the append retried once.
func (c *Client) AppendRow(ctx context.Context, values []any) error {
	sheet, err := c.Open(ctx)
	if err != nil {
		return err
	}

	err = sheet.AppendRow(ctx, values)
	if err == nil || !staleRange(err) {
		return err
	}

	c.forget(sheet)
	log.Warn().
		Err(err).
		Str("spreadsheetId", c.cfg.SpreadsheetID).
		Str("sheet", sheet.Title()).
		Msg("Append rejected, resolving first tab again")

	fresh, openErr := c.Open(ctx)
	if openErr != nil {
		return errors.Join(err, openErr)
	}
	return fresh.AppendRow(ctx, values)
}

// Open exchanges credentials and resolves the first tab of the spreadsheet.
// Concurrent callers share one resolution; a caller whose ctx ends first
// stops waiting without cancelling it for the others.
func (c *Client) Open(ctx context.Context) (*Sheet, error) {
	c.mu.Lock()
	sheet := c.sheet
	c.mu.Unlock()
	if sheet != nil {
		return sheet, nil
	}

	ch := c.opens.DoChan("open", func() (any, error) {
		return c.open(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Sheet), nil
	}
}

// open runs detached from any single request; base carries values only.
func (c *Client) open(base context.Context) (*Sheet, error) {
	// The service outlives this request; token refreshes must not inherit its cancellation.
	svc, err := sheets.NewService(base, c.options()...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	ctx, cancel := context.WithTimeout(base, c.openTimeout())
	defer cancel()

	ss, err := svc.Spreadsheets.Get(c.cfg.SpreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", c.cfg.SpreadsheetID, err)
	}

	props := firstSheet(ss.Sheets)
	if props == nil {
		return nil, ErrNoSheets
	}

	sheet := &Sheet{
		svc:           svc,
		spreadsheetID: c.cfg.SpreadsheetID,
		title:         props.Title,
	}

	c.mu.Lock()
	c.sheet = sheet
	c.mu.Unlock()

	log.Info().
		Str("spreadsheetId", c.cfg.SpreadsheetID).
		Str("sheet", props.Title).
		Msg("Spreadsheet opened")

	return sheet, nil
}

// forget drops the cached tab if it is still the stale one.
func (c *Client) forget(stale *Sheet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheet == stale {
		c.sheet = nil
	}
}

// staleRange reports whether an append failed because its range no longer
// resolves: 400 for an unparseable range, 404 for a missing one.
func staleRange(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusBadRequest || gerr.Code == http.StatusNotFound
}

func (c *Client) openTimeout() time.Duration {
	if c.cfg.OpenTimeout > 0 {
		return c.cfg.OpenTimeout
	}
	return DefaultOpenTimeout
}

func (c *Client) options() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case c.cfg.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(c.cfg.HTTPClient))
	case c.cfg.CredentialsJSON != "":
		opts = append(opts,
			option.WithCredentialsJSON([]byte(c.cfg.CredentialsJSON)),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	default:
		opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))
	}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}
	return opts
}

// firstSheet returns the properties of the lowest-index tab.
func firstSheet(list []*sheets.Sheet) *sheets.SheetProperties {
	var first *sheets.SheetProperties
	for _, s := range list {
		if s == nil || s.Properties == nil {
			continue
		}
		if first == nil || s.Properties.Index < first.Index {
			first = s.Properties
		}
	}
	return first
}

// Sheet is an opened tab.
type Sheet struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string
}

// Title returns the tab name.
func (s *Sheet) Title() string {
	return s.title
}

// AppendRow inserts values as a new row after the tab's existing data.
// Values are stored as given; strings starting with = are not evaluated.
func (s *Sheet) AppendRow(ctx context.Context, values []any) error {
	vr := &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]interface{}{values},
	}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, quoteTitle(s.title), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", s.title, err)
	}
	return nil
}

// quoteTitle renders a tab name as an A1 range covering the whole tab.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
