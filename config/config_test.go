package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hcanalytics/riskhe/circuits/activation"
	"github.com/hcanalytics/riskhe/circuits/linear"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/params"
	"github.com/hcanalytics/riskhe/model"
)

func TestDefault(t *testing.T) {

	want := Config{
		Parameters: params.Literal{
			LogFirstPrime:   60,
			LogSpecialPrime: 60,
			LogDefaultScale: 40,
		},
		Model: model.Linear{
			Weights:      []float64{0.01685, 0.2947},
			Bias:         -10.2735,
			FeatureNames: []string{"glucose", "bmi"},
		},
		Activation: activation.Affine{
			Intercept: 0.5,
			Slope:     0.125,
			DomainMin: -4,
			DomainMax: 4,
		},
		Strategy:         "encrypted-model",
		ScaleTolerance:   1e-6,
		DecryptionMargin: 0.05,
	}

	cfg := Default()
	require.Empty(t, cmp.Diff(want, cfg))
	require.Equal(t, linear.EncryptedModel, cfg.LinearStrategy())

	p, err := cfg.GenerateParameters()
	require.NoError(t, err)
	require.Equal(t, CircuitDepth, p.MaxLevel())
	require.Equal(t, 13, p.LogN())
}

func TestLoad(t *testing.T) {

	dir := t.TempDir()

	t.Run("RoundTrip", func(t *testing.T) {
		cfg := Default()
		cfg.Strategy = linear.PlaintextModel.String()
		cfg.Parameters.LogN = 14

		data, err := cfg.MarshalIndent()
		require.NoError(t, err)

		path := filepath.Join(dir, "plaintext.json")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		have, err := Load(path)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(cfg, have))
		require.Equal(t, linear.PlaintextModel, have.LinearStrategy())
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.json"))
		require.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("Invalid", func(t *testing.T) {
		for name, doc := range map[string]string{
			"syntax":    `{"Model":`,
			"unknown":   `{"Modle": {}}`,
			"strategy":  `{"Model":{"Weights":[1]},"Activation":{"Slope":1,"DomainMin":-1,"DomainMax":1},"Strategy":"hybrid"}`,
			"domain":    `{"Model":{"Weights":[1]},"Activation":{"Slope":1,"DomainMin":1,"DomainMax":-1}}`,
			"tolerance": `{"Model":{"Weights":[1]},"Activation":{"Slope":1,"DomainMin":-1,"DomainMax":1},"ScaleTolerance":-1}`,
		} {
			_, err := Parse([]byte(doc))
			require.True(t, errors.Is(err, herrors.ErrParameter), name)
		}

		_, err := Parse([]byte(`{"Model":{"Weights":[]},"Activation":{"Slope":1,"DomainMin":-1,"DomainMax":1}}`))
		require.True(t, errors.Is(err, herrors.ErrDimension))
	})
}
