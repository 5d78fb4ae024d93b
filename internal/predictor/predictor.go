// Package predictor bundles the fitted imputer with the winning classifier
// so raw feature rows can be scored in one call.
package predictor

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/saadabdullah098/networksecurity/internal/dataset"
	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/persist"
	"github.com/saadabdullah098/networksecurity/internal/transform"
)

const predictorSchemaV1 = "networksecurity.predictor.v1"

// PredictionColumn is appended to scored frames.
const PredictionColumn = "predicted_column"

type Predictor struct {
	imputer *transform.KNNImputer
	model   model.Estimator
}

// New composes a fitted imputer and a fitted classifier.
func New(imputer *transform.KNNImputer, est model.Estimator) (*Predictor, error) {
	if imputer == nil || est == nil {
		return nil, errors.New("predictor needs an imputer and a model")
	}
	if len(imputer.Features()) == 0 {
		return nil, transform.ErrNotFitted
	}
	return &Predictor{imputer: imputer, model: est}, nil
}

func (p *Predictor) Features() []string { return p.imputer.Features() }

func (p *Predictor) Model() model.Estimator { return p.model }

// Predict imputes x, whose columns follow Features, and classifies it.
// Labels are 0 for legitimate and 1 for phishing.
func (p *Predictor) Predict(x *mat.Dense) ([]float64, error) {
	filled, err := p.imputer.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	return p.model.Predict(filled)
}

// PredictFrame selects the fitted feature columns by name, so column order
// and extra columns in f do not matter.
func (p *Predictor) PredictFrame(f *dataset.Frame) ([]float64, error) {
	inputs, err := f.Select(p.Features())
	if err != nil {
		return nil, err
	}
	x, err := inputs.Dense()
	if err != nil {
		return nil, err
	}
	return p.Predict(x)
}

type document struct {
	Schema       string          `json:"schema"`
	Preprocessor json.RawMessage `json:"preprocessor"`
	Model        json.RawMessage `json:"model"`
}

func (p *Predictor) MarshalJSON() ([]byte, error) {
	pre, err := json.Marshal(p.imputer)
	if err != nil {
		return nil, err
	}
	est, err := model.Encode(p.model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(document{Schema: predictorSchemaV1, Preprocessor: pre, Model: est})
}

func (p *Predictor) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Schema != predictorSchemaV1 {
		return fmt.Errorf("unsupported predictor schema %q", doc.Schema)
	}
	var imputer transform.KNNImputer
	if err := json.Unmarshal(doc.Preprocessor, &imputer); err != nil {
		return fmt.Errorf("preprocessor: %w", err)
	}
	est, err := model.Decode(doc.Model)
	if err != nil {
		return err
	}
	*p = Predictor{imputer: &imputer, model: est}
	return nil
}

func Save(path string, p *Predictor) error {
	return persist.SaveObject(path, p)
}

func Load(path string) (*Predictor, error) {
	var p Predictor
	if err := persist.LoadObject(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
