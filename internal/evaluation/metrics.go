// Package evaluation computes holdout metrics for a trained classifier and
// decides the pass/fail verdict that gates promotion.
package evaluation

import (
	"sort"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Overall computes precision/recall/f1 weighted by class support, matching
// the task's aggregate reporting convention.
func Overall(yTrue, yPred []string) domain.Metrics {
	total := len(yTrue)
	if total == 0 {
		return domain.Metrics{}
	}
	perClass := perClassCounts(yTrue, yPred)

	var precision, recall, f1 float64
	for _, c := range perClass {
		weight := float64(c.support) / float64(total)
		precision += weight * c.precision()
		recall += weight * c.recall()
		f1 += weight * c.f1()
	}
	return domain.Metrics{
		Precision:  precision,
		Recall:     recall,
		F1:         f1,
		NumSamples: total,
	}
}

// PerClass computes metrics for each class, sorted by descending f1 so the
// weakest classes sit at the bottom of the report.
func PerClass(yTrue, yPred []string) []domain.ClassMetrics {
	counts := perClassCounts(yTrue, yPred)
	out := make([]domain.ClassMetrics, 0, len(counts))
	for _, c := range counts {
		out = append(out, domain.ClassMetrics{
			Class: c.class,
			Metrics: domain.Metrics{
				Precision:  c.precision(),
				Recall:     c.recall(),
				F1:         c.f1(),
				NumSamples: c.support,
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Metrics.F1 != out[j].Metrics.F1 {
			return out[i].Metrics.F1 > out[j].Metrics.F1
		}
		return out[i].Class < out[j].Class
	})
	return out
}

// Micro computes micro-averaged metrics over a subset; for single-label
// classification micro precision, recall, and f1 all equal accuracy.
func Micro(yTrue, yPred []string) domain.Metrics {
	if len(yTrue) == 0 {
		return domain.Metrics{}
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	acc := float64(correct) / float64(len(yTrue))
	return domain.Metrics{
		Precision:  acc,
		Recall:     acc,
		F1:         acc,
		NumSamples: len(yTrue),
	}
}

type classCounts struct {
	class   string
	tp      int
	fp      int
	fn      int
	support int
}

func (c classCounts) precision() float64 {
	if c.tp+c.fp == 0 {
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fp)
}

func (c classCounts) recall() float64 {
	if c.tp+c.fn == 0 {
		return 0
	}
	return float64(c.tp) / float64(c.tp+c.fn)
}

func (c classCounts) f1() float64 {
	p, r := c.precision(), c.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func perClassCounts(yTrue, yPred []string) []classCounts {
	byClass := map[string]*classCounts{}
	ensure := func(class string) *classCounts {
		c, ok := byClass[class]
		if !ok {
			c = &classCounts{class: class}
			byClass[class] = c
		}
		return c
	}
	for i := range yTrue {
		truth := ensure(yTrue[i])
		truth.support++
		if yTrue[i] == yPred[i] {
			truth.tp++
			continue
		}
		truth.fn++
		ensure(yPred[i]).fp++
	}

	out := make([]classCounts, 0, len(byClass))
	for _, c := range byClass {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].class < out[j].class })
	return out
}
