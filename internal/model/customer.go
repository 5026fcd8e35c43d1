package model

// CustomerRFM holds the Recency/Frequency/Monetary features of one customer.
type CustomerRFM struct {
	CustomerID string  `json:"customer_id"`
	Recency    int     `json:"recency"`   // Days since last purchase, relative to the snapshot
	Frequency  int     `json:"frequency"` // Distinct invoices
	Monetary   float64 `json:"monetary"`  // Total spend
}

// Vector returns the features in canonical order [Recency, Frequency, Monetary].
func (c CustomerRFM) Vector() []float64 {
	return []float64{float64(c.Recency), float64(c.Frequency), c.Monetary}
}

// FeatureNames is the canonical feature order used by every artifact.
var FeatureNames = []string{"recency", "frequency", "monetary"}

// Segment is the serving result for one customer.
type Segment struct {
	Label     string `json:"label"`
	ClusterID int    `json:"cluster_id"`
}

// Recommendation is one ranked product suggestion.
type Recommendation struct {
	Product string  `json:"product"`
	Score   float64 `json:"score"`
}

// CustomerSegment is one row of the per-customer segmentation export.
type CustomerSegment struct {
	CustomerRFM
	Label     string `json:"label"`
	ClusterID int    `json:"cluster_id"`
}
