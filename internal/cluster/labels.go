package cluster

import (
	"fmt"
	"sort"
)

const (
	// LabelBest names the cluster with the best combined RFM ranking.
	LabelBest = "High-Value Loyal"
	// LabelWorst names the cluster with the worst combined RFM ranking.
	LabelWorst = "At-Risk"
)

var middleTiers = []string{"Regular", "Occasional", "Promising", "Needs Attention", "Hibernating", "Dormant"}

// Profile describes one cluster in feature units.
type Profile struct {
	Label     string  `json:"label"`
	ClusterID int     `json:"cluster_id"`
	Rank      int     `json:"rank"` // 0 is best
	Size      int     `json:"size"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
	Monetary  float64 `json:"monetary"`
}

// TierNames returns k segment names ordered from best to worst.
func TierNames(k int) []string {
	switch {
	case k <= 0:
		return nil
	case k == 1:
		return []string{LabelBest}
	}

	names := make([]string, 0, k)
	names = append(names, LabelBest)
	for i := range k - 2 {
		name := middleTiers[i%len(middleTiers)]
		if round := i / len(middleTiers); round > 0 {
			name = fmt.Sprintf("%s %d", name, round+1)
		}
		names = append(names, name)
	}
	return append(names, LabelWorst)
}

// DeriveLabels ranks clusters by their unscaled centroids and names them from best to worst.
// centroids[c] is [recency, frequency, monetary] in feature units; sizes may be nil.
//
// Each cluster gets a competition rank per feature (recency ascending, frequency and
// monetary descending; equal values share a rank). Clusters are ordered by the sum of those
// ranks, then by higher monetary, higher frequency and lower recency. Only clusters with
// identical centroids fall back to the cluster id.
func DeriveLabels(centroids [][]float64, sizes []int) []Profile {
	k := len(centroids)
	profiles := make([]Profile, k)
	for c, centroid := range centroids {
		profiles[c] = Profile{
			ClusterID: c,
			Recency:   centroid[0],
			Frequency: centroid[1],
			Monetary:  centroid[2],
		}
		if c < len(sizes) {
			profiles[c].Size = sizes[c]
		}
	}

	score := make([]int, k)
	addRanks := func(better func(a, b Profile) bool) {
		// Competition ranking: tied clusters share the rank of the first of them.
		for a := range profiles {
			for b := range profiles {
				if better(profiles[b], profiles[a]) {
					score[a]++
				}
			}
		}
	}
	addRanks(func(a, b Profile) bool { return a.Recency < b.Recency })
	addRanks(func(a, b Profile) bool { return a.Frequency > b.Frequency })
	addRanks(func(a, b Profile) bool { return a.Monetary > b.Monetary })

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := profiles[order[i]], profiles[order[j]]
		switch {
		case score[a.ClusterID] != score[b.ClusterID]:
			return score[a.ClusterID] < score[b.ClusterID]
		case a.Monetary != b.Monetary:
			return a.Monetary > b.Monetary
		case a.Frequency != b.Frequency:
			return a.Frequency > b.Frequency
		case a.Recency != b.Recency:
			return a.Recency < b.Recency
		}
		return a.ClusterID < b.ClusterID
	})

	names := TierNames(k)
	for rank, c := range order {
		profiles[c].Rank = rank
		profiles[c].Label = names[rank]
	}
	return profiles
}

// LabelMap extracts cluster id → label from profiles.
func LabelMap(profiles []Profile) map[int]string {
	out := make(map[int]string, len(profiles))
	for _, p := range profiles {
		out[p.ClusterID] = p.Label
	}
	return out
}
