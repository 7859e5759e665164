package activation

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/circuits/linear"
	"github.com/hcanalytics/riskhe/core/heval"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/encoding"
)

// Evaluator applies an [Affine] activation on ciphertexts.
type Evaluator struct {
	*heval.Evaluator
	encoder  *encoding.Encoder
	affine   Affine
	strategy linear.Strategy
}

// NewEvaluator instantiates a new [Evaluator]. With [linear.EncryptedModel], the intercept
// is encrypted before being added; with [linear.PlaintextModel], it is added as a plaintext.
//
// Returns an error wrapping [herrors.ErrNotInitialized] if eval is nil, and the error of
// [Affine.Validate] if the activation is invalid.
func NewEvaluator(eval *heval.Evaluator, a Affine, strategy linear.Strategy) (*Evaluator, error) {

	if eval == nil {
		return nil, fmt.Errorf("cannot NewEvaluator: %w: evaluator is nil", herrors.ErrNotInitialized)
	}

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("cannot NewEvaluator: %w", err)
	}

	return &Evaluator{
		Evaluator: eval,
		encoder:   encoding.NewEncoder(eval.Parameters(), eval.Encoder()),
		affine:    a,
		strategy:  strategy,
	}, nil
}

// Affine returns the activation applied by the evaluator.
func (e *Evaluator) Affine() Affine {
	return e.affine
}

// Apply returns a ciphertext encrypting Intercept + Slope·x slot-wise, where x is encrypted in ct.
// The slope multiplies ct as a plaintext, so no relinearization is needed. The output is at
// the nominal scale, one level below the input.
//
// Returns an error wrapping [herrors.ErrScaleMismatch] if ct is not at the nominal scale and
// an error wrapping [herrors.ErrLevelExhausted] if ct has no level left to rescale.
func (e *Evaluator) Apply(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	if ct == nil {
		return nil, fmt.Errorf("cannot Apply: ciphertext is nil")
	}

	if err := e.CheckNominal(ct); err != nil {
		return nil, fmt.Errorf("cannot Apply: input %w", err)
	}

	p := e.Parameters()

	if ct.Level() < p.LevelsConsumedPerRescaling() {
		return nil, fmt.Errorf("cannot Apply: %w: input is at level %d", herrors.ErrLevelExhausted, ct.Level())
	}

	slope, err := e.encoder.NewConstant(p.RescaleFactor(ct.Level()), fill(p.SlotCapacity(), e.affine.Slope)...)
	if err != nil {
		return nil, fmt.Errorf("cannot Apply: %w", err)
	}

	pt, err := slope.At(ct.Level())
	if err != nil {
		return nil, fmt.Errorf("cannot Apply: %w", err)
	}

	out, err := e.MulPlain(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("cannot Apply: %w", err)
	}

	if out, err = e.Rescale(out); err != nil {
		return nil, fmt.Errorf("cannot Apply: %w", err)
	}

	if out, err = e.addIntercept(out); err != nil {
		return nil, fmt.Errorf("cannot Apply: %w", err)
	}

	return out, nil
}

func (e *Evaluator) addIntercept(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	p := e.Parameters()

	intercept, err := e.encoder.NewConstant(p.NominalScale(), fill(p.SlotCapacity(), e.affine.Intercept)...)
	if err != nil {
		return nil, err
	}

	if e.strategy == linear.EncryptedModel {

		var pt *rlwe.Plaintext
		if pt, err = intercept.At(p.MaxLevel()); err != nil {
			return nil, err
		}

		var ict *rlwe.Ciphertext
		if ict, err = e.Encrypt(pt); err != nil {
			return nil, err
		}

		return e.Add(ct, ict)
	}

	pt, err := intercept.At(ct.Level())
	if err != nil {
		return nil, err
	}

	return e.AddPlain(ct, pt)
}

func fill(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}
