// Package scoring computes the evaluation metrics used to rank and report
// classifiers.
package scoring

import (
	"fmt"
	"strings"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
)

// Metric names a scalar score where higher is better.
type Metric string

const (
	MetricR2       Metric = "r2"
	MetricAccuracy Metric = "accuracy"
	MetricF1       Metric = "f1"
)

func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MetricR2, MetricAccuracy, MetricF1:
		return m, nil
	case "":
		return MetricR2, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

func (m Metric) Score(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("score: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, fmt.Errorf("score: no samples")
	}
	switch m {
	case MetricR2:
		return R2(yTrue, yPred), nil
	case MetricAccuracy:
		return Accuracy(yTrue, yPred), nil
	case MetricF1:
		return F1(yTrue, yPred), nil
	}
	return 0, fmt.Errorf("unknown metric %q", string(m))
}

// R2 is the coefficient of determination. A constant target scores 1 when
// predicted exactly and 0 otherwise.
func R2(yTrue, yPred []float64) float64 {
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))
	var ssRes, ssTot float64
	for i, v := range yTrue {
		d := v - yPred[i]
		ssRes += d * d
		t := v - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func Accuracy(yTrue, yPred []float64) float64 {
	var ok int
	for i, v := range yTrue {
		if v == yPred[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(yTrue))
}

type confusion struct {
	tp, fp, fn float64
}

func count(yTrue, yPred []float64) confusion {
	var c confusion
	for i, v := range yTrue {
		switch {
		case v == 1 && yPred[i] == 1:
			c.tp++
		case v != 1 && yPred[i] == 1:
			c.fp++
		case v == 1 && yPred[i] != 1:
			c.fn++
		}
	}
	return c
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Precision, Recall and F1 treat label 1 as positive and score 0 when the
// denominator is empty.
func Precision(yTrue, yPred []float64) float64 {
	c := count(yTrue, yPred)
	return ratio(c.tp, c.tp+c.fp)
}

func Recall(yTrue, yPred []float64) float64 {
	c := count(yTrue, yPred)
	return ratio(c.tp, c.tp+c.fn)
}

func F1(yTrue, yPred []float64) float64 {
	c := count(yTrue, yPred)
	return ratio(2*c.tp, 2*c.tp+c.fp+c.fn)
}

func Classification(yTrue, yPred []float64) artifact.ClassificationMetric {
	return artifact.ClassificationMetric{
		F1:        F1(yTrue, yPred),
		Precision: Precision(yTrue, yPred),
		Recall:    Recall(yTrue, yPred),
	}
}
