package validation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Samples up to exactMaxN values per side, with at most exactMaxCells
// lattice points, get the exact p-value.
const (
	exactMaxN     = 10000
	exactMaxCells = 25_000_000
)

// KSTest runs the two-sample Kolmogorov-Smirnov test on x and y, ignoring
// NaN values. It returns the statistic and the two-sided p-value, exact for
// small samples and asymptotic otherwise. ok is false when either sample
// has no values.
func KSTest(x, y []float64) (d, p float64, ok bool) {
	xs := sortedFinite(x)
	ys := sortedFinite(y)
	if len(xs) == 0 || len(ys) == 0 {
		return 0, 0, false
	}
	d = stat.KolmogorovSmirnov(xs, nil, ys, nil)
	n, m := len(xs), len(ys)
	if max(n, m) <= exactMaxN && n*m <= exactMaxCells {
		return d, ksExactP(d, n, m), true
	}
	en := math.Sqrt(float64(n) * float64(m) / float64(n+m))
	return d, kolmogorovQ((en + 0.12 + 0.11/en) * d), true
}

// ksExactP is P(D >= d) for samples of n and m values under the null. It
// walks every merge order of the two samples as a lattice path from (0, 0)
// to (n, m) and sums the probability of paths that reach |i/n - j/m| >= d.
// Ties are treated as distinct values.
func ksExactP(d float64, n, m int) float64 {
	h := int64(math.Round(d * float64(n) * float64(m)))
	if h <= 0 {
		return 1
	}
	nn, mm := int64(n), int64(m)
	row := make([]float64, m+1)
	var outside float64
	for i := 0; i <= n; i++ {
		for j := 0; j <= m; j++ {
			var mass float64
			switch {
			case i == 0 && j == 0:
				mass = 1
			default:
				if i > 0 {
					mass += row[j] * float64(n-i+1) / float64(n+m-i-j+1)
				}
				if j > 0 {
					mass += row[j-1] * float64(m-j+1) / float64(n+m-i-j+1)
				}
			}
			diff := int64(i)*mm - int64(j)*nn
			if diff < 0 {
				diff = -diff
			}
			if diff >= h {
				outside += mass
				mass = 0
			}
			row[j] = mass
		}
	}
	return clamp01(outside)
}

func sortedFinite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	sort.Float64s(out)
	return out
}

// kolmogorovQ is the complementary Kolmogorov distribution function.
func kolmogorovQ(z float64) float64 {
	if z <= 0 {
		return 1
	}
	if z < 1.18 {
		y := math.Exp(-math.Pi * math.Pi / (8 * z * z))
		cdf := math.Sqrt(2*math.Pi) / z * (y + math.Pow(y, 9) + math.Pow(y, 25) + math.Pow(y, 49))
		return clamp01(1 - cdf)
	}
	x := math.Exp(-2 * z * z)
	return clamp01(2 * (x - math.Pow(x, 4) + math.Pow(x, 9)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
