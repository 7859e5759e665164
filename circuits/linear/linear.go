// Package linear evaluates the affine part of the scoring circuit, w·x + b, on an
// encrypted feature vector.
package linear

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/core/heval"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/encoding"
	"github.com/hcanalytics/riskhe/utils"
)

// Strategy selects how the model coefficients enter the circuit.
type Strategy int

const (
	// EncryptedModel encrypts the weights and the bias under the session key and
	// multiplies ciphertext by ciphertext, which requires a relinearization.
	EncryptedModel Strategy = iota
	// PlaintextModel keeps the weights and the bias as plaintexts and multiplies
	// ciphertext by plaintext.
	PlaintextModel
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case EncryptedModel:
		return "encrypted-model"
	case PlaintextModel:
		return "plaintext-model"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy returns the [Strategy] of the given configuration name.
// The empty string selects [EncryptedModel].
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "encrypted-model":
		return EncryptedModel, nil
	case "plaintext-model":
		return PlaintextModel, nil
	default:
		return 0, fmt.Errorf("cannot ParseStrategy: %w: unknown strategy %q", herrors.ErrParameter, name)
	}
}

// Evaluator evaluates w·x + b for feature vectors of a fixed length.
type Evaluator struct {
	*heval.Evaluator
	encoder      *encoding.Encoder
	strategy     Strategy
	featureCount int
}

// NewEvaluator instantiates a new [Evaluator] for featureCount features.
//
// Returns an error wrapping [herrors.ErrNotInitialized] if eval is nil, and an error wrapping
// [herrors.ErrDimension] if featureCount is not in [1, slot capacity].
func NewEvaluator(eval *heval.Evaluator, featureCount int, strategy Strategy) (*Evaluator, error) {

	if eval == nil {
		return nil, fmt.Errorf("cannot NewEvaluator: %w: evaluator is nil", herrors.ErrNotInitialized)
	}

	p := eval.Parameters()

	if featureCount < 1 || featureCount > p.SlotCapacity() {
		return nil, fmt.Errorf("cannot NewEvaluator: %w: feature count %d must be in [1, %d]", herrors.ErrDimension, featureCount, p.SlotCapacity())
	}

	if strategy != EncryptedModel && strategy != PlaintextModel {
		return nil, fmt.Errorf("cannot NewEvaluator: %w: invalid strategy %v", herrors.ErrParameter, strategy)
	}

	return &Evaluator{
		Evaluator:    eval,
		encoder:      encoding.NewEncoder(p, eval.Encoder()),
		strategy:     strategy,
		featureCount: featureCount,
	}, nil
}

// Strategy returns the multiplication strategy of the evaluator.
func (e *Evaluator) Strategy() Strategy {
	return e.strategy
}

// FeatureCount returns the number of features the evaluator aggregates.
func (e *Evaluator) FeatureCount() int {
	return e.featureCount
}

// DotProductPlusBias returns a ciphertext whose slot 0 encrypts Σ weights[i]·x[i] + bias,
// where x is the vector encrypted in the first slots of ct. The other slots hold partial sums.
//
// The input must be at the nominal scale with at least one level left. The output is at the
// nominal scale, one level below the input.
//
// Returns an error wrapping:
//   - [herrors.ErrDimension] if len(weights) differs from the feature count
//   - [herrors.ErrScaleMismatch] if ct is not at the nominal scale
//   - [herrors.ErrLevelExhausted] if ct has no level left to rescale
func (e *Evaluator) DotProductPlusBias(ct *rlwe.Ciphertext, weights []float64, bias float64) (*rlwe.Ciphertext, error) {

	if ct == nil {
		return nil, fmt.Errorf("cannot DotProductPlusBias: ciphertext is nil")
	}

	if len(weights) != e.featureCount {
		return nil, fmt.Errorf("cannot DotProductPlusBias: %w: %d weights for %d features", herrors.ErrDimension, len(weights), e.featureCount)
	}

	if err := e.CheckNominal(ct); err != nil {
		return nil, fmt.Errorf("cannot DotProductPlusBias: input %w", err)
	}

	p := e.Parameters()

	if ct.Level() < p.LevelsConsumedPerRescaling() {
		return nil, fmt.Errorf("cannot DotProductPlusBias: %w: input is at level %d", herrors.ErrLevelExhausted, ct.Level())
	}

	acc, err := e.weightedSlots(ct, weights)
	if err != nil {
		return nil, fmt.Errorf("cannot DotProductPlusBias: %w", err)
	}

	for _, k := range utils.RotationOffsets(len(weights)) {

		var rot *rlwe.Ciphertext
		if rot, err = e.Rotate(acc, k); err != nil {
			return nil, fmt.Errorf("cannot DotProductPlusBias: %w", err)
		}

		if acc, err = e.Add(acc, rot); err != nil {
			return nil, fmt.Errorf("cannot DotProductPlusBias: %w", err)
		}
	}

	if acc, err = e.addBias(acc, bias); err != nil {
		return nil, fmt.Errorf("cannot DotProductPlusBias: %w", err)
	}

	return acc, nil
}

// weightedSlots returns the rescaled slot-wise product of ct with the weights.
// The weights are encoded at the last prime of the input level, so that the rescale
// brings the product back to the nominal scale.
func (e *Evaluator) weightedSlots(ct *rlwe.Ciphertext, weights []float64) (*rlwe.Ciphertext, error) {

	level := ct.Level()

	w, err := e.encoder.EncodeAt(weights, level, e.Parameters().RescaleFactor(level))
	if err != nil {
		return nil, err
	}

	var prod *rlwe.Ciphertext

	switch e.strategy {
	case EncryptedModel:

		var wct *rlwe.Ciphertext
		if wct, err = e.Encrypt(w.Plaintext); err != nil {
			return nil, err
		}

		if prod, err = e.Mul(ct, wct); err != nil {
			return nil, err
		}

		if prod, err = e.Relinearize(prod); err != nil {
			return nil, err
		}

	default:
		if prod, err = e.MulPlain(ct, w.Plaintext); err != nil {
			return nil, err
		}
	}

	return e.Rescale(prod)
}

func (e *Evaluator) addBias(acc *rlwe.Ciphertext, bias float64) (*rlwe.Ciphertext, error) {

	p := e.Parameters()

	b, err := e.encoder.NewConstant(p.NominalScale(), bias)
	if err != nil {
		return nil, err
	}

	if e.strategy == EncryptedModel {

		var pt *rlwe.Plaintext
		if pt, err = b.At(p.MaxLevel()); err != nil {
			return nil, err
		}

		var bct *rlwe.Ciphertext
		if bct, err = e.Encrypt(pt); err != nil {
			return nil, err
		}

		// The encrypted bias is switched down to the accumulator level.
		return e.Add(acc, bct)
	}

	pt, err := b.At(acc.Level())
	if err != nil {
		return nil, err
	}

	return e.AddPlain(acc, pt)
}
