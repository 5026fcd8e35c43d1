// Package rfm aggregates cleaned transactions into per-customer Recency, Frequency and
// Monetary features.
package rfm

import (
	"math"
	"sort"
	"time"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

type accumulator struct {
	last     time.Time
	invoices map[string]struct{}
	monetary float64
}

// DefaultSnapshot returns the latest transaction timestamp plus one day.
func DefaultSnapshot(transactions []model.Transaction) time.Time {
	var latest time.Time
	for i := range transactions {
		if transactions[i].Timestamp.After(latest) {
			latest = transactions[i].Timestamp
		}
	}
	return latest.Add(24 * time.Hour)
}

// Build computes one CustomerRFM row per identified customer, sorted by customer id.
// A zero snapshot means DefaultSnapshot. Anonymous lines are ignored.
//
// Recency is whole days between the snapshot and the customer's latest purchase,
// Frequency counts distinct invoices and Monetary sums quantity × unit price.
func Build(transactions []model.Transaction, snapshot time.Time) ([]model.CustomerRFM, error) {
	if len(transactions) == 0 {
		return nil, common.NewDataQualityError("rfm", "transaction set is empty")
	}
	if snapshot.IsZero() {
		snapshot = DefaultSnapshot(transactions)
	}

	customers := make(map[string]*accumulator)
	for i := range transactions {
		tx := &transactions[i]
		if tx.IsAnonymous() {
			continue
		}

		acc, ok := customers[tx.CustomerID]
		if !ok {
			acc = &accumulator{invoices: make(map[string]struct{})}
			customers[tx.CustomerID] = acc
		}
		if tx.Timestamp.After(acc.last) {
			acc.last = tx.Timestamp
		}
		acc.invoices[tx.InvoiceID] = struct{}{}
		acc.monetary += tx.LineTotal()
	}

	if len(customers) == 0 {
		return nil, common.NewDataQualityError("rfm", "no transactions with a customer id")
	}

	rows := make([]model.CustomerRFM, 0, len(customers))
	for id, acc := range customers {
		rows = append(rows, model.CustomerRFM{
			CustomerID: id,
			Recency:    recencyDays(snapshot, acc.last),
			Frequency:  len(acc.invoices),
			Monetary:   acc.monetary,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CustomerID < rows[j].CustomerID
	})

	return rows, nil
}

// recencyDays floors the gap to whole days and clamps purchases after the snapshot to 0.
func recencyDays(snapshot, last time.Time) int {
	days := math.Floor(snapshot.Sub(last).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// Matrix returns the feature vectors of rows in row order.
func Matrix(rows []model.CustomerRFM) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Vector()
	}
	return out
}
