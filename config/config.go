// Package config loads the configuration of a scoring session: the encryption parameters,
// the model coefficients and the activation calibration.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/hcanalytics/riskhe/circuits/activation"
	"github.com/hcanalytics/riskhe/circuits/linear"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/params"
	"github.com/hcanalytics/riskhe/model"
)

// CircuitDepth is the number of levels consumed by the scoring circuit:
// one by the linear layer and one by the activation.
const CircuitDepth = 2

//go:embed default.json
var defaultJSON []byte

// Config is the configuration of a scoring session.
type Config struct {
	Parameters params.Literal
	Model      model.Linear
	Activation activation.Affine

	// Strategy is either "encrypted-model" or "plaintext-model".
	Strategy string `json:",omitempty"`

	// ScaleTolerance is the largest accepted difference, in log2 bits,
	// between the scales of two added operands.
	ScaleTolerance float64 `json:",omitempty"`

	// DecryptionMargin widens the image of the activation domain when checking
	// the plausibility of a decrypted score. A negative margin disables the check.
	DecryptionMargin float64 `json:",omitempty"`
}

// Default returns the diabetes risk calibration.
func Default() Config {
	cfg, err := Parse(defaultJSON)
	// Sanity check, this error should not happen unless default.json was tampered with.
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates the configuration stored at path.
func Load(path string) (cfg Config, err error) {

	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		return cfg, fmt.Errorf("cannot Load: %w", err)
	}

	if cfg, err = Parse(data); err != nil {
		return cfg, fmt.Errorf("cannot Load %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes and validates a JSON configuration. Unknown fields are rejected.
func Parse(data []byte) (cfg Config, err error) {

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err = dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("cannot Parse: %w: %w", herrors.ErrParameter, err)
	}

	if err = cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("cannot Parse: %w", err)
	}

	return cfg, nil
}

// Validate checks the consistency of the configuration. It does not generate the parameters.
func (c Config) Validate() error {

	if err := c.Model.Validate(); err != nil {
		return err
	}

	if err := c.Activation.Validate(); err != nil {
		return err
	}

	if _, err := linear.ParseStrategy(c.Strategy); err != nil {
		return err
	}

	if c.ScaleTolerance < 0 || math.IsNaN(c.ScaleTolerance) || math.IsInf(c.ScaleTolerance, 0) {
		return fmt.Errorf("invalid configuration: %w: ScaleTolerance must be a non-negative number", herrors.ErrParameter)
	}

	if math.IsNaN(c.DecryptionMargin) || math.IsInf(c.DecryptionMargin, 0) {
		return fmt.Errorf("invalid configuration: %w: DecryptionMargin must be finite", herrors.ErrParameter)
	}

	return nil
}

// LinearStrategy returns the parsed multiplication strategy.
func (c Config) LinearStrategy() linear.Strategy {
	s, _ := linear.ParseStrategy(c.Strategy)
	return s
}

// GenerateParameters generates the encryption parameters for the scoring circuit.
func (c Config) GenerateParameters() (params.Parameters, error) {
	return params.GenerateParameters(CircuitDepth, c.Parameters)
}

// MarshalIndent returns the indented JSON encoding of the configuration.
func (c Config) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
