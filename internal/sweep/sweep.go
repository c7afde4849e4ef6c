// Package sweep ranks the thresholds of a report's curves by a weighted
// blend of precision and recall, to pick operating thresholds per class.
package sweep

import (
	"sort"

	segmetrics "github.com/jamesainslie/go-segmetrics"
)

// Config holds the ranking weights.
type Config struct {
	PrecisionWeight float64
	RecallWeight    float64
}

// DefaultConfig weighs precision and recall equally.
func DefaultConfig() Config {
	return Config{
		PrecisionWeight: 1.0,
		RecallWeight:    1.0,
	}
}

// Metrics holds the scores of one threshold.
type Metrics struct {
	Precision     float64
	Recall        float64
	FPR           float64
	F1            float64
	WeightedScore float64
}

// Result holds metrics for one class at one threshold.
type Result struct {
	Class     string
	Threshold float64
	Metrics   Metrics
}

// Score derives F1 and the weighted score from precision and recall.
func Score(precision, recall float64, cfg Config) Metrics {
	m := Metrics{Precision: precision, Recall: recall}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	wp := cfg.PrecisionWeight
	wr := cfg.RecallWeight
	if wp+wr > 0 {
		m.WeightedScore = (wp*m.Precision + wr*m.Recall) / (wp + wr)
	}
	return m
}

// Sweep scores every threshold of c and returns the results sorted by
// weighted score, best first. Ties keep ascending threshold order.
func Sweep(c segmetrics.ClassCurve, cfg Config) []Result {
	results := make([]Result, 0, len(c.Thresholds))
	for i, t := range c.Thresholds {
		m := Score(c.Precision[i], c.Recall[i], cfg)
		m.FPR = c.FPR[i]
		results = append(results, Result{Class: c.Class, Threshold: t, Metrics: m})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Metrics.WeightedScore > results[j].Metrics.WeightedScore
	})
	return results
}

// Best returns the top result of every class, in class order. Classes
// without thresholds are skipped.
func Best(curves []segmetrics.ClassCurve, cfg Config) []Result {
	var out []Result
	for _, c := range curves {
		if rs := Sweep(c, cfg); len(rs) > 0 {
			out = append(out, rs[0])
		}
	}
	return out
}
