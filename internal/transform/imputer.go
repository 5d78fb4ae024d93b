package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

var ErrNotFitted = errors.New("imputer is not fitted")

// ImputerConfig holds the KNN imputer hyperparameters.
type ImputerConfig struct {
	NNeighbors int    `json:"n_neighbors" mapstructure:"n_neighbors" yaml:"n_neighbors"`
	Weights    string `json:"weights" mapstructure:"weights" yaml:"weights"`
}

func DefaultImputerConfig() ImputerConfig {
	return ImputerConfig{NNeighbors: 3, Weights: WeightsUniform}
}

func (c ImputerConfig) Validate() error {
	if c.NNeighbors < 1 {
		return fmt.Errorf("n_neighbors must be >= 1, got %d", c.NNeighbors)
	}
	if c.Weights != WeightsUniform && c.Weights != WeightsDistance {
		return fmt.Errorf("weights must be %q or %q, got %q", WeightsUniform, WeightsDistance, c.Weights)
	}
	return nil
}

// KNNImputer fills each missing cell with the mean of that column over the
// nearest fitted rows that have the column present. Distances use the
// NaN-aware Euclidean metric, scaled up by the share of coordinates that
// were comparable.
type KNNImputer struct {
	cfg      ImputerConfig
	features []string
	fit      *mat.Dense
	means    []float64
}

func NewKNNImputer(cfg ImputerConfig) (*KNNImputer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &KNNImputer{cfg: cfg}, nil
}

func (im *KNNImputer) Config() ImputerConfig { return im.cfg }

// Features returns the column names the imputer was fitted on.
func (im *KNNImputer) Features() []string { return append([]string(nil), im.features...) }

// Fit stores a copy of x as the donor pool. A column with no observed value
// is imputed as zero so the output keeps the input width.
func (im *KNNImputer) Fit(features []string, x *mat.Dense) error {
	r, c := x.Dims()
	if len(features) != c {
		return fmt.Errorf("got %d feature names for %d columns", len(features), c)
	}
	if r == 0 {
		return pkgerrors.New("cannot fit imputer on zero rows")
	}
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		var sum float64
		var n int
		for i := 0; i < r; i++ {
			if v := x.At(i, j); !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n > 0 {
			means[j] = sum / float64(n)
		}
	}
	im.features = append([]string(nil), features...)
	im.fit = mat.DenseCopyOf(x)
	im.means = means
	return nil
}

// Transform returns a copy of x with every NaN imputed.
func (im *KNNImputer) Transform(x *mat.Dense) (*mat.Dense, error) {
	if im.fit == nil {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	r, c := x.Dims()
	_, fc := im.fit.Dims()
	if c != fc {
		return nil, fmt.Errorf("input has %d columns, imputer was fitted on %d", c, fc)
	}
	out := mat.DenseCopyOf(x)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		if !hasNaN(row) {
			continue
		}
		dist := im.distances(x.RawRowView(i))
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = im.impute(j, dist)
			}
		}
	}
	return out, nil
}

func (im *KNNImputer) FitTransform(features []string, x *mat.Dense) (*mat.Dense, error) {
	if err := im.Fit(features, x); err != nil {
		return nil, err
	}
	return im.Transform(x)
}

// distances holds the NaN-aware Euclidean distance from row to every fitted
// row, NaN when no coordinate is comparable.
func (im *KNNImputer) distances(row []float64) []float64 {
	r, c := im.fit.Dims()
	out := make([]float64, r)
	for k := 0; k < r; k++ {
		donor := im.fit.RawRowView(k)
		var sum float64
		var present int
		for j := 0; j < c; j++ {
			a, b := row[j], donor[j]
			if math.IsNaN(a) || math.IsNaN(b) {
				continue
			}
			d := a - b
			sum += d * d
			present++
		}
		if present == 0 {
			out[k] = math.NaN()
			continue
		}
		out[k] = math.Sqrt(float64(c) / float64(present) * sum)
	}
	return out
}

type neighbor struct {
	dist  float64
	value float64
}

func (im *KNNImputer) impute(col int, dist []float64) float64 {
	r, _ := im.fit.Dims()
	donors := make([]neighbor, 0, r)
	for k := 0; k < r; k++ {
		v := im.fit.At(k, col)
		if math.IsNaN(v) || math.IsNaN(dist[k]) {
			continue
		}
		donors = append(donors, neighbor{dist: dist[k], value: v})
	}
	if len(donors) == 0 {
		return im.means[col]
	}
	sort.SliceStable(donors, func(a, b int) bool { return donors[a].dist < donors[b].dist })
	if len(donors) > im.cfg.NNeighbors {
		donors = donors[:im.cfg.NNeighbors]
	}

	if im.cfg.Weights == WeightsDistance {
		var exact []float64
		for _, n := range donors {
			if n.dist == 0 {
				exact = append(exact, n.value)
			}
		}
		if len(exact) > 0 {
			return mean(exact)
		}
		var num, den float64
		for _, n := range donors {
			w := 1 / n.dist
			num += w * n.value
			den += w
		}
		return num / den
	}

	var sum float64
	for _, n := range donors {
		sum += n.value
	}
	return sum / float64(len(donors))
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

type imputerState struct {
	Config   ImputerConfig `json:"config"`
	Features []string      `json:"features"`
	Means    []float64     `json:"column_means"`
	Fit      []byte        `json:"fit_matrix"`
}

// MarshalJSON stores the donor pool in gonum's binary encoding so NaN cells
// survive the round trip.
func (im *KNNImputer) MarshalJSON() ([]byte, error) {
	if im.fit == nil {
		return nil, pkgerrors.WithStack(ErrNotFitted)
	}
	raw, err := im.fit.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(imputerState{Config: im.cfg, Features: im.features, Means: im.means, Fit: raw})
}

func (im *KNNImputer) UnmarshalJSON(data []byte) error {
	var st imputerState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if err := st.Config.Validate(); err != nil {
		return fmt.Errorf("imputer config: %w", err)
	}
	var fit mat.Dense
	if err := fit.UnmarshalBinary(st.Fit); err != nil {
		return fmt.Errorf("imputer fit matrix: %w", err)
	}
	_, c := fit.Dims()
	if len(st.Features) != c || len(st.Means) != c {
		return fmt.Errorf("imputer state has %d features and %d means for %d columns", len(st.Features), len(st.Means), c)
	}
	*im = KNNImputer{cfg: st.Config, features: st.Features, fit: &fit, means: st.Means}
	return nil
}
