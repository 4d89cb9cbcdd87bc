package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
)

// dateLayouts are tried in order when parsing shipping dates
var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

// Loader reads already-normalized allocation tables from CSV exports
type Loader struct {
	columns Columns
}

// NewLoader creates a new CSV loader using the given column mapping
func NewLoader(columns Columns) *Loader {
	return &Loader{columns: columns}
}

// LoadRequests loads the sales programme from a CSV file
func (l *Loader) LoadRequests(filename string) ([]*entities.Request, error) {
	var requests []*entities.Request
	err := withFile(filename, "requests", func(r io.Reader) error {
		var err error
		requests, err = l.ReadRequests(r)
		return err
	})
	return requests, err
}

// LoadBatches loads the stock report from a CSV file
func (l *Loader) LoadBatches(filename string) ([]*entities.Batch, error) {
	var batches []*entities.Batch
	err := withFile(filename, "stock", func(r io.Reader) error {
		var err error
		batches, err = l.ReadBatches(r)
		return err
	})
	return batches, err
}

// LoadPriorities loads client importance from a CSV file
func (l *Loader) LoadPriorities(filename string) ([]*entities.Priority, error) {
	var priorities []*entities.Priority
	err := withFile(filename, "priorities", func(r io.Reader) error {
		var err error
		priorities, err = l.ReadPriorities(r)
		return err
	})
	return priorities, err
}

// ReadRequests parses request rows, skipping rows without a quantity
func (l *Loader) ReadRequests(r io.Reader) ([]*entities.Request, error) {
	cols := l.columns.Requests
	t, err := readTable(r, "requests", cols.ClientID, cols.Location, cols.Product, cols.Quantity)
	if err != nil {
		return nil, err
	}

	var requests []*entities.Request
	for i, record := range t.rows {
		row := i + 2
		qtyStr := t.get(record, cols.Quantity)
		if qtyStr == "" {
			continue
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, fmt.Errorf("requests CSV row %d: invalid quantity %q", row, qtyStr)
		}

		req, err := entities.NewRequest(
			entities.NormalizeClientID(t.get(record, cols.ClientID)),
			entities.NormalizeLocation(t.get(record, cols.Location)),
			entities.NormalizeProductID(t.get(record, cols.Product)),
			qty,
		)
		if err != nil {
			return nil, fmt.Errorf("requests CSV row %d: %w", row, err)
		}
		req.ClientName = entities.NormalizeName(t.get(record, cols.ClientName))
		req.ClientGroup = entities.NormalizeName(t.get(record, cols.ClientGroup))
		requests = append(requests, req)
	}
	return requests, nil
}

// ReadBatches parses stock rows, skipping rows without a batch id
func (l *Loader) ReadBatches(r io.Reader) ([]*entities.Batch, error) {
	cols := l.columns.Stock
	t, err := readTable(r, "stock", cols.Batch, cols.Product, cols.ShippedAt, cols.Arrived, cols.InTransit)
	if err != nil {
		return nil, err
	}

	var clientColumns []string
	for _, name := range t.header {
		if isClientCode(name) {
			clientColumns = append(clientColumns, name)
		}
	}

	var batches []*entities.Batch
	for i, record := range t.rows {
		row := i + 2
		id := t.get(record, cols.Batch)
		if id == "" {
			continue
		}

		shippedStr := t.get(record, cols.ShippedAt)
		shipped, err := parseDate(shippedStr)
		if err != nil {
			return nil, fmt.Errorf("stock CSV row %d: invalid shipping date %q", row, shippedStr)
		}
		arrived, err := parseMass(t.get(record, cols.Arrived))
		if err != nil {
			return nil, fmt.Errorf("stock CSV row %d: invalid arrived mass: %w", row, err)
		}
		inTransit, err := parseMass(t.get(record, cols.InTransit))
		if err != nil {
			return nil, fmt.Errorf("stock CSV row %d: invalid in-transit mass: %w", row, err)
		}

		sellable := make(map[entities.ClientID]bool, len(clientColumns))
		for _, code := range clientColumns {
			sellable[entities.ClientID(code)] = strings.IndexFunc(t.get(record, code), unicode.IsDigit) >= 0
		}

		batch, err := entities.NewBatch(
			entities.NormalizeBatchID(id),
			entities.NormalizeProductID(t.get(record, cols.Product)),
			arrived,
			inTransit,
			shipped,
			entities.NormalizeLocation(t.get(record, cols.Mill)),
			sellable,
		)
		if err != nil {
			return nil, fmt.Errorf("stock CSV row %d: %w", row, err)
		}
		batch.Center = entities.NormalizeName(t.get(record, cols.Center))
		batches = append(batches, batch)
	}
	return batches, nil
}

// ReadPriorities parses client importance rows, skipping rows without a client
func (l *Loader) ReadPriorities(r io.Reader) ([]*entities.Priority, error) {
	cols := l.columns.Priorities
	t, err := readTable(r, "priorities", cols.Client, cols.Importance)
	if err != nil {
		return nil, err
	}

	var priorities []*entities.Priority
	for i, record := range t.rows {
		row := i + 2
		client := entities.NormalizeClientID(t.get(record, cols.Client))
		if client == "" {
			continue
		}
		importance := decimal.Zero
		if s := t.get(record, cols.Importance); s != "" {
			importance, err = decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("priorities CSV row %d: invalid importance %q", row, s)
			}
		}
		if importance.IsNegative() {
			return nil, fmt.Errorf("priorities CSV row %d: importance cannot be negative, got %s", row, importance)
		}
		priorities = append(priorities, &entities.Priority{Client: client, Importance: importance.InexactFloat64()})
	}
	return priorities, nil
}

type table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

func (t *table) get(record []string, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func readTable(r io.Reader, kind string, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", kind, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%s CSV must have a header row", kind)
	}

	t := &table{header: make([]string, len(records[0])), index: make(map[string]int), rows: records[1:]}
	for i, name := range records[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		t.header[i] = name
		t.index[name] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := t.index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s CSV header mismatch. Missing: %v, Got: %v", kind, missing, t.header)
	}
	return t, nil
}

func withFile(filename, kind string, read func(io.Reader) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open %s file %s: %w", kind, filename, err)
	}
	defer file.Close()
	return read(file)
}

func isClientCode(header string) bool {
	if header == "" {
		return false
	}
	for _, r := range header {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseMass(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
