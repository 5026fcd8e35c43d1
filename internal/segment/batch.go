package segment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

// Batch is a scored upload. Header and every row's Fields are the uploaded columns as read.
type Batch struct {
	Header []string
	Rows   []BatchRow
}

// BatchRow is the prediction for one uploaded row. Err is set when the row could not be
// scored; the remaining rows are still processed.
type BatchRow struct {
	Err        error
	CustomerID string
	Fields     []string
	Segment    model.Segment
	Line       int
	Recency    float64
	Frequency  float64
	Monetary   float64
}

// Failed counts the rows that could not be scored.
func (b *Batch) Failed() int {
	n := 0
	for _, row := range b.Rows {
		if row.Err != nil {
			n++
		}
	}
	return n
}

var batchColumns = map[string][]string{
	"customer_id": {"customerid", "customer_id", "customer"},
	"recency":     {"recency", "r"},
	"frequency":   {"frequency", "f"},
	"monetary":    {"monetary", "m", "monetary_value"},
}

// PredictBatch scores every row of a CSV with Recency, Frequency and Monetary columns.
// Every uploaded column is carried through to the result. Missing columns fail the whole
// batch; bad values only fail their row.
func (p *Predictor) PredictBatch(ctx context.Context, r io.Reader) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, common.NewValidationError("file", "", "empty CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	names := make([]string, len(header))
	cols := make(map[string]int)
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		h = strings.ToLower(names[i])
		for key, aliases := range batchColumns {
			for _, alias := range aliases {
				if h == alias {
					if _, dup := cols[key]; !dup {
						cols[key] = i
					}
				}
			}
		}
	}
	for _, key := range model.FeatureNames {
		if _, ok := cols[key]; !ok {
			return nil, common.NewValidationError("file", strings.Join(header, ","),
				fmt.Sprintf("missing %q column", key))
		}
	}

	batch := &Batch{Header: names}
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row := BatchRow{Line: line, Fields: append([]string(nil), record...)}
		if i, ok := cols["customer_id"]; ok && i < len(record) {
			row.CustomerID = strings.TrimSpace(record[i])
		}

		values := make([]float64, len(model.FeatureNames))
		for j, key := range model.FeatureNames {
			values[j], row.Err = parseField(key, record, cols[key])
			if row.Err != nil {
				break
			}
		}
		if row.Err == nil {
			row.Recency, row.Frequency, row.Monetary = values[0], values[1], values[2]
			row.Segment, row.Err = p.Predict(row.Recency, row.Frequency, row.Monetary)
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func parseField(name string, record []string, i int) (float64, error) {
	if i >= len(record) {
		return 0, common.NewValidationError(name, "", "missing value")
	}
	raw := strings.TrimSpace(record[i])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, common.NewValidationError(name, raw, "not a number")
	}
	return v, nil
}

// WriteBatch writes the uploaded columns with Cluster, Segment and Error appended. Rows
// that failed carry their error in the Error column.
func WriteBatch(w io.Writer, batch *Batch) error {
	width := len(batch.Header)
	out := csv.NewWriter(w)
	header := append(append([]string(nil), batch.Header...), "Cluster", "Segment", "Error")
	if err := out.Write(header); err != nil {
		return err
	}
	for _, row := range batch.Rows {
		record := make([]string, width+3)
		copy(record[:width], row.Fields)
		if row.Err != nil {
			record[width+2] = row.Err.Error()
		} else {
			record[width] = strconv.Itoa(row.Segment.ClusterID)
			record[width+1] = row.Segment.Label
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
