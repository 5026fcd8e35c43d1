package ingest

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// Report counts what happened to each input row.
type Report struct {
	Rows                int `json:"rows"`
	Malformed           int `json:"malformed"`
	Cancelled           int `json:"cancelled"`
	NonPositiveQuantity int `json:"non_positive_quantity"`
	NonPositivePrice    int `json:"non_positive_price"`
	Invalid             int `json:"invalid"`
	Kept                int `json:"kept"`

	// Flags on kept rows.
	Anonymous          int `json:"anonymous"`
	MissingDescription int `json:"missing_description"`
}

// Dropped is the number of rows removed by parsing and cleaning.
func (r Report) Dropped() int {
	return r.Malformed + r.Cancelled + r.NonPositiveQuantity + r.NonPositivePrice + r.Invalid
}

// Merge adds the counters of other into r.
func (r *Report) Merge(other Report) {
	r.Rows += other.Rows
	r.Malformed += other.Malformed
	r.Cancelled += other.Cancelled
	r.NonPositiveQuantity += other.NonPositiveQuantity
	r.NonPositivePrice += other.NonPositivePrice
	r.Invalid += other.Invalid
	r.Kept += other.Kept
	r.Anonymous += other.Anonymous
	r.MissingDescription += other.MissingDescription
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Clean drops cancelled invoices and lines with a non-positive quantity or price, and
// normalizes descriptions. Anonymous lines are kept; the RFM builder ignores them.
// The input slice is not modified. Clean is idempotent.
func Clean(transactions []model.Transaction) ([]model.Transaction, Report) {
	report := Report{Rows: len(transactions)}
	cleaned := make([]model.Transaction, 0, len(transactions))
	hasher := model.NewLineHasher()

	for _, tx := range transactions {
		switch {
		case tx.IsCancelled():
			report.Cancelled++
			continue
		case tx.Quantity <= 0:
			report.NonPositiveQuantity++
			continue
		case tx.UnitPrice <= 0:
			report.NonPositivePrice++
			continue
		}

		tx.Description = NormalizeDescription(tx.Description)
		tx.CustomerID = NormalizeCustomerID(tx.CustomerID)

		if err := validate.Struct(&tx); err != nil {
			report.Invalid++
			slog.Debug("Dropping invalid transaction", "invoice", tx.InvoiceID, "error", err)
			continue
		}

		if tx.Hash == "" {
			tx.Hash = hasher.Hash(&tx)
		}
		if tx.IsAnonymous() {
			report.Anonymous++
		}
		if tx.Description == "" {
			report.MissingDescription++
		}

		report.Kept++
		cleaned = append(cleaned, tx)
	}

	common.LogInfo("Cleaned transactions", common.Fields{
		"rows":                  report.Rows,
		"cancelled":             report.Cancelled,
		"non_positive_quantity": report.NonPositiveQuantity,
		"non_positive_price":    report.NonPositivePrice,
		"invalid":               report.Invalid,
		"kept":                  report.Kept,
		"anonymous":             report.Anonymous,
	})

	return cleaned, report
}
