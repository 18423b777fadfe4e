// Package demand converts a marketplace sales rank into an estimated
// monthly sales volume via log-log interpolation over per-category
// anchor tables, plus a coarse demand bucket label.
package demand

import (
	"math"
	"strings"
)

// anchor is one calibration point: at this rank, roughly this many
// sales per month.
type anchor struct {
	rank  float64
	sales float64
}

// Anchor tables per category cluster, sorted by rank ascending.
// Ranks below the first anchor clamp to its sales value; ranks above
// the last clamp to the last. No extrapolation.
var clusters = map[string][]anchor{
	"default": {
		{1, 3000}, {100, 800}, {1_000, 300}, {5_000, 120},
		{20_000, 50}, {100_000, 10}, {500_000, 2},
	},
	"electronics": {
		{1, 5000}, {100, 1200}, {1_000, 400}, {10_000, 90},
		{100_000, 12}, {500_000, 2},
	},
	"home": {
		{1, 4000}, {100, 1000}, {1_000, 350}, {10_000, 80},
		{100_000, 12}, {500_000, 2},
	},
	"toys": {
		{1, 2500}, {100, 700}, {1_000, 250}, {10_000, 60},
		{100_000, 8}, {500_000, 1},
	},
	"pet": {
		{1, 3000}, {100, 900}, {1_000, 300}, {10_000, 70},
		{100_000, 10}, {500_000, 2},
	},
	"books": {
		{1, 1500}, {100, 350}, {1_000, 120}, {10_000, 30},
		{100_000, 5}, {500_000, 1},
	},
	"grocery": {
		{1, 6000}, {100, 1500}, {1_000, 500}, {10_000, 110},
		{100_000, 15}, {500_000, 2},
	},
}

// Cluster resolution is keyword containment on the raw category
// string; order matters, first hit wins.
var clusterKeywords = []struct {
	substr  string
	cluster string
}{
	{"electronic", "electronics"},
	{"computer", "electronics"},
	{"cell phone", "electronics"},
	{"home", "home"},
	{"kitchen", "home"},
	{"garden", "home"},
	{"toy", "toys"},
	{"game", "toys"},
	{"pet", "pet"},
	{"book", "books"},
	{"grocery", "grocery"},
	{"gourmet", "grocery"},
	{"food", "grocery"},
}

// ResolveCluster maps a raw sales-rank category string to one of the
// anchor table keys, falling back to "default".
func ResolveCluster(category string) string {
	lowered := strings.ToLower(category)
	for _, kw := range clusterKeywords {
		if strings.Contains(lowered, kw.substr) {
			return kw.cluster
		}
	}
	return "default"
}

// Estimate maps (rank, category) to estimated monthly sales. A nil or
// non-positive rank yields nil. The result is floored at 1: any rank
// inside the table corresponds to at least one observed sale.
func Estimate(rank *int, category *string) *int {
	if rank == nil || *rank <= 0 {
		return nil
	}
	cat := ""
	if category != nil {
		cat = *category
	}
	sales := estimate(float64(*rank), ResolveCluster(cat))
	result := int(math.Round(sales))
	if result < 1 {
		result = 1
	}
	return &result
}

func estimate(rank float64, cluster string) float64 {
	anchors := clusters[cluster]
	if len(anchors) == 0 {
		anchors = clusters["default"]
	}

	if rank <= anchors[0].rank {
		return anchors[0].sales
	}
	last := anchors[len(anchors)-1]
	if rank >= last.rank {
		return last.sales
	}

	for i := 1; i < len(anchors); i++ {
		if rank > anchors[i].rank {
			continue
		}
		lo, hi := anchors[i-1], anchors[i]
		frac := (math.Log(rank) - math.Log(lo.rank)) / (math.Log(hi.rank) - math.Log(lo.rank))
		logSales := math.Log(lo.sales) + frac*(math.Log(hi.sales)-math.Log(lo.sales))
		return math.Exp(logSales)
	}

	return last.sales
}

// Bucket labels an estimated monthly sales volume. Returns nil for
// nil or non-positive estimates.
func Bucket(monthlySales *int) *string {
	if monthlySales == nil || *monthlySales <= 0 {
		return nil
	}
	var label string
	switch {
	case *monthlySales >= 300:
		label = "very-high"
	case *monthlySales >= 100:
		label = "high"
	case *monthlySales >= 30:
		label = "medium"
	case *monthlySales >= 10:
		label = "moderate"
	case *monthlySales >= 3:
		label = "low"
	default:
		label = "very-low"
	}
	return &label
}
