package model

import "time"

// FitRun records one published pipeline run.
type FitRun struct {
	CreatedAt      time.Time
	RunID          string
	Criterion      string
	Weighting      string
	K              int
	Customers      int
	Products       int
	Transactions   int
	CriterionValue float64
}
