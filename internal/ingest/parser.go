// Package ingest reads raw retail transaction extracts and applies the cleaning rules
// that every downstream stage relies on.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// ErrMissingColumn is returned when the extract header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

type column int

const (
	colInvoice column = iota
	colProduct
	colDescription
	colQuantity
	colTimestamp
	colPrice
	colCustomer
	colCountry
	numColumns
)

var columnNames = [numColumns]string{
	"invoice", "product_id", "description", "quantity", "timestamp", "unit_price", "customer_id", "country",
}

// headerAliases maps lowercased header names onto canonical columns.
var headerAliases = map[string]column{
	"invoiceno":    colInvoice,
	"invoice":      colInvoice,
	"invoice_no":   colInvoice,
	"invoice_id":   colInvoice,
	"invoiceid":    colInvoice,
	"stockcode":    colProduct,
	"stock_code":   colProduct,
	"product_id":   colProduct,
	"productid":    colProduct,
	"sku":          colProduct,
	"description":  colDescription,
	"product_name": colDescription,
	"productname":  colDescription,
	"quantity":     colQuantity,
	"qty":          colQuantity,
	"invoicedate":  colTimestamp,
	"invoice_date": colTimestamp,
	"date":         colTimestamp,
	"timestamp":    colTimestamp,
	"unitprice":    colPrice,
	"unit_price":   colPrice,
	"price":        colPrice,
	"customerid":   colCustomer,
	"customer_id":  colCustomer,
	"customer":     colCustomer,
	"country":      colCountry,
}

var requiredColumns = []column{colInvoice, colDescription, colQuantity, colTimestamp, colPrice, colCustomer}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02",
}

// Parser implements retail CSV extract parsing.
type Parser struct {
	latin1 bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLatin1 decodes the input as ISO-8859-1, the encoding of the public Online Retail extract.
func WithLatin1() ParserOption {
	return func(p *Parser) {
		p.latin1 = true
	}
}

// NewParser creates a new CSV parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile parses a CSV extract. Rows whose numeric or date fields cannot be parsed are
// skipped and counted as malformed in the returned report; nothing else is filtered here.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, Report, error) {
	var report Report

	if p.latin1 {
		reader = charmap.ISO8859_1.NewDecoder().Reader(reader)
	}

	rd := csv.NewReader(reader)
	rd.FieldsPerRecord = -1
	rd.LazyQuotes = true
	rd.ReuseRecord = true

	header, err := rd.Read()
	if err != nil {
		return nil, report, fmt.Errorf("failed to read header: %w", err)
	}
	index, err := mapHeader(header)
	if err != nil {
		return nil, report, err
	}

	var transactions []model.Transaction
	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
		}

		record, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.Rows++
				report.Malformed++
				continue
			}
			return nil, report, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		report.Rows++
		tx, err := parseRecord(record, index)
		if err != nil {
			report.Malformed++
			slog.Debug("Skipping malformed row", "line", line, "error", err)
			continue
		}
		transactions = append(transactions, tx)
	}

	slog.Info("Parsed transaction extract",
		"rows", report.Rows,
		"parsed", len(transactions),
		"malformed", report.Malformed)

	return transactions, report, nil
}

func mapHeader(header []string) ([columnsLen]int, error) {
	var index [columnsLen]int
	for i := range index {
		index[i] = -1
	}

	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if col, ok := headerAliases[key]; ok && index[col] == -1 {
			index[col] = i
		}
	}

	for _, col := range requiredColumns {
		if index[col] == -1 {
			return index, fmt.Errorf("%w: %s", ErrMissingColumn, columnNames[col])
		}
	}
	return index, nil
}

const columnsLen = int(numColumns)

func field(record []string, index [columnsLen]int, col column) string {
	i := index[col]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRecord(record []string, index [columnsLen]int) (model.Transaction, error) {
	invoice := field(record, index, colInvoice)
	if invoice == "" {
		return model.Transaction{}, errors.New("empty invoice")
	}

	quantity, err := parseQuantity(field(record, index, colQuantity))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("quantity: %w", err)
	}

	price, err := strconv.ParseFloat(field(record, index, colPrice), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return model.Transaction{}, fmt.Errorf("unit price: %q", field(record, index, colPrice))
	}

	ts, err := parseTimestamp(field(record, index, colTimestamp))
	if err != nil {
		return model.Transaction{}, err
	}

	return model.Transaction{
		Timestamp:   ts,
		InvoiceID:   invoice,
		ProductID:   field(record, index, colProduct),
		Description: NormalizeDescription(field(record, index, colDescription)),
		CustomerID:  NormalizeCustomerID(field(record, index, colCustomer)),
		Country:     field(record, index, colCountry),
		Quantity:    quantity,
		UnitPrice:   price,
	}, nil
}

func parseQuantity(s string) (int, error) {
	if q, err := strconv.Atoi(s); err == nil {
		return q, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NormalizeDescription trims a product description and collapses internal whitespace.
// Case is preserved: product lookup is case-sensitive.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeCustomerID strips the ".0" suffix spreadsheets add to numeric ids.
func NormalizeCustomerID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return ""
	}
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		return whole
	}
	return s
}
