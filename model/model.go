// Package model holds the fixed linear risk model and its plaintext reference scoring.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/utils"
)

// Linear is a linear model x -> Weights·x + Bias over named features.
type Linear struct {
	Weights      []float64
	Bias         float64
	FeatureNames []string `json:",omitempty"`
}

// FeatureCount returns the number of features of the model.
func (m Linear) FeatureCount() int {
	return len(m.Weights)
}

// Validate returns an error wrapping [herrors.ErrDimension] if the model has no weight or if
// the feature names do not match the weights, and an error wrapping [herrors.ErrParameter]
// if a coefficient is not finite.
func (m Linear) Validate() error {

	if len(m.Weights) == 0 {
		return fmt.Errorf("invalid model: %w: no weights", herrors.ErrDimension)
	}

	if len(m.FeatureNames) != 0 && len(m.FeatureNames) != len(m.Weights) {
		return fmt.Errorf("invalid model: %w: %d feature names for %d weights", herrors.ErrDimension, len(m.FeatureNames), len(m.Weights))
	}

	if !utils.AllFinite(m.Weights) || !utils.IsFinite(m.Bias) {
		return fmt.Errorf("invalid model: %w: coefficients must be finite", herrors.ErrParameter)
	}

	return nil
}

// Name returns the name of the i-th feature, or "x<i>" if the model has no feature names.
func (m Linear) Name(i int) string {
	if i < len(m.FeatureNames) {
		return m.FeatureNames[i]
	}
	return fmt.Sprintf("x%d", i)
}

// Score returns Weights·features + Bias in plaintext.
//
// Returns an error wrapping [herrors.ErrDimension] if len(features) differs from the feature count.
func (m Linear) Score(features []float64) (float64, error) {
	if len(features) != len(m.Weights) || len(features) == 0 {
		return 0, fmt.Errorf("cannot Score: %w: %d features for %d weights", herrors.ErrDimension, len(features), len(m.Weights))
	}
	w := mat.NewVecDense(len(m.Weights), m.Weights)
	x := mat.NewVecDense(len(features), features)
	return mat.Dot(w, x) + m.Bias, nil
}

// ScoreBatch returns the plaintext scores of every row of features.
func (m Linear) ScoreBatch(features [][]float64) ([]float64, error) {

	if len(features) == 0 {
		return nil, nil
	}

	n := len(m.Weights)
	if n == 0 {
		return nil, fmt.Errorf("cannot ScoreBatch: %w: no weights", herrors.ErrDimension)
	}

	data := make([]float64, 0, len(features)*n)
	for i, row := range features {
		if len(row) != n {
			return nil, fmt.Errorf("cannot ScoreBatch: %w: row %d has %d features for %d weights", herrors.ErrDimension, i, len(row), n)
		}
		data = append(data, row...)
	}

	var scores mat.VecDense
	scores.MulVec(mat.NewDense(len(features), n, data), mat.NewVecDense(n, m.Weights))
	scores.AddVec(&scores, constVec(len(features), m.Bias))

	return scores.RawVector().Data, nil
}

// Vector orders named feature values by the feature names of the model.
//
// Returns an error wrapping [herrors.ErrDimension] if the model has no feature names or
// if a feature is missing.
func (m Linear) Vector(named map[string]float64) ([]float64, error) {

	if len(m.FeatureNames) == 0 {
		return nil, fmt.Errorf("cannot Vector: %w: model has no feature names", herrors.ErrDimension)
	}

	x := make([]float64, len(m.FeatureNames))
	for i, name := range m.FeatureNames {
		v, ok := named[name]
		if !ok {
			return nil, fmt.Errorf("cannot Vector: %w: missing feature %q", herrors.ErrDimension, name)
		}
		x[i] = v
	}

	if len(named) != len(m.FeatureNames) {
		return nil, fmt.Errorf("cannot Vector: %w: %d features given for %d expected", herrors.ErrDimension, len(named), len(m.FeatureNames))
	}

	return x, nil
}

func constVec(n int, v float64) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return mat.NewVecDense(n, data)
}
