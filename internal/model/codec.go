package model

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Family Family          `json:"family"`
	Model  json.RawMessage `json:"model"`
}

// Encode serialises a fitted estimator together with its family tag.
func Encode(e Estimator) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Family(), err)
	}
	return json.Marshal(envelope{Family: e.Family(), Model: body})
}

// Decode restores an estimator written by Encode.
func Decode(raw []byte) (Estimator, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	var e Estimator
	switch env.Family {
	case LogisticRegression:
		e = &LogisticRegressionModel{}
	case KNeighbors:
		e = &KNeighborsModel{}
	case DecisionTree:
		e = &DecisionTreeModel{}
	case RandomForest:
		e = &RandomForestModel{}
	case AdaBoost:
		e = &AdaBoostModel{}
	case GradientBoosting:
		e = &GradientBoostingModel{}
	default:
		return nil, fmt.Errorf("decode model: unknown family %d", int(env.Family))
	}
	if err := json.Unmarshal(env.Model, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Family, err)
	}
	if err := e.Params().Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Family, err)
	}
	return e, nil
}
