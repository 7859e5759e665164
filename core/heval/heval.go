// Package heval adapts the CKKS evaluator of lattigo to the bookkeeping rules of a
// leveled scoring circuit.
//
// Every primitive returns a new ciphertext and checks, before delegating, that:
//   - operands of an addition share a level and a scale (up to the configured tolerance)
//   - a multiplication never takes a ciphertext of size 3 as input
//   - a rescale is only applied on a relinearized ciphertext with a level left to consume
//   - levels only ever decrease
package heval

import (
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/keys"
	"github.com/hcanalytics/riskhe/core/params"
)

// DefaultScaleTolerance is the default largest difference, in log2 bits, between
// the scales of two operands of an addition.
const DefaultScaleTolerance = 1e-6

// Evaluator is a per-caller evaluator bound to a [keys.Session].
// It is not safe for concurrent use: each pipeline creates its own.
type Evaluator struct {
	params    params.Parameters
	encoder   *ckks.Encoder
	encryptor *rlwe.Encryptor
	eval      *ckks.Evaluator
	tolerance float64
}

// NewEvaluator creates a new [Evaluator] from shallow copies of the session's evaluation objects.
// A non-positive tolerance is replaced by [DefaultScaleTolerance].
//
// Returns an error wrapping [herrors.ErrNotInitialized] if sess is nil.
func NewEvaluator(sess *keys.Session, scaleTolerance float64) (*Evaluator, error) {

	if sess == nil {
		return nil, fmt.Errorf("cannot NewEvaluator: %w: session is nil", herrors.ErrNotInitialized)
	}

	if scaleTolerance <= 0 || math.IsNaN(scaleTolerance) {
		scaleTolerance = DefaultScaleTolerance
	}

	return &Evaluator{
		params:    sess.Parameters(),
		encoder:   sess.Encoder(),
		encryptor: sess.Encryptor(),
		eval:      sess.Evaluator(),
		tolerance: scaleTolerance,
	}, nil
}

// Parameters returns the parameters of the evaluator.
func (e *Evaluator) Parameters() params.Parameters {
	return e.params
}

// ScaleTolerance returns the scale tolerance of the evaluator, in log2 bits.
func (e *Evaluator) ScaleTolerance() float64 {
	return e.tolerance
}

// Encoder returns the encoder of the evaluator.
func (e *Evaluator) Encoder() *ckks.Encoder {
	return e.encoder
}

// Encrypt encrypts pt under the public key of the session.
// The ciphertext inherits the level and scale of pt.
func (e *Evaluator) Encrypt(pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {
	if pt == nil {
		return nil, fmt.Errorf("cannot Encrypt: plaintext is nil")
	}
	ct, err := e.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("cannot Encrypt: %w", err)
	}
	return ct, nil
}

// Add returns ct0 + ct1. If the levels differ, the deeper operand is switched down first.
//
// Returns an error wrapping [herrors.ErrScaleMismatch] if the scales differ by more than the tolerance.
func (e *Evaluator) Add(ct0, ct1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	if ct0 == nil || ct1 == nil {
		return nil, fmt.Errorf("cannot Add: operand is nil")
	}

	if err := e.CheckScale(ct1, ct0.Scale); err != nil {
		return nil, fmt.Errorf("cannot Add: %w", err)
	}

	op0, op1, err := e.AlignLevels(ct0, ct1)
	if err != nil {
		return nil, fmt.Errorf("cannot Add: %w", err)
	}

	out, err := e.eval.AddNew(op0, op1)
	if err != nil {
		return nil, fmt.Errorf("cannot Add: %w", err)
	}

	return out, nil
}

// AddPlain returns ct + pt. The plaintext must already be at the level of ct:
// plaintexts are switched down by encoding them at the target level.
//
// Returns an error wrapping [herrors.ErrScaleMismatch] if the scales differ by more than the tolerance.
func (e *Evaluator) AddPlain(ct *rlwe.Ciphertext, pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {

	if err := e.checkPlainOperand(ct, pt); err != nil {
		return nil, fmt.Errorf("cannot AddPlain: %w", err)
	}

	if err := e.CheckScale(pt, ct.Scale); err != nil {
		return nil, fmt.Errorf("cannot AddPlain: %w", err)
	}

	out, err := e.eval.AddNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("cannot AddPlain: %w", err)
	}

	return out, nil
}

// Sub returns ct0 - ct1, with the same level and scale rules as [Evaluator.Add].
func (e *Evaluator) Sub(ct0, ct1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	if ct0 == nil || ct1 == nil {
		return nil, fmt.Errorf("cannot Sub: operand is nil")
	}

	if err := e.CheckScale(ct1, ct0.Scale); err != nil {
		return nil, fmt.Errorf("cannot Sub: %w", err)
	}

	op0, op1, err := e.AlignLevels(ct0, ct1)
	if err != nil {
		return nil, fmt.Errorf("cannot Sub: %w", err)
	}

	out, err := e.eval.SubNew(op0, op1)
	if err != nil {
		return nil, fmt.Errorf("cannot Sub: %w", err)
	}

	return out, nil
}

// Mul returns ct0 * ct1 without relinearization: the result has size 3 and
// its scale is the product of the operand scales.
// Both operands must have size 2 and be at the same level.
func (e *Evaluator) Mul(ct0, ct1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	if ct0 == nil || ct1 == nil {
		return nil, fmt.Errorf("cannot Mul: operand is nil")
	}

	if ct0.Degree() != 1 || ct1.Degree() != 1 {
		return nil, fmt.Errorf("cannot Mul: operands must be relinearized but have sizes %d and %d", ct0.Degree()+1, ct1.Degree()+1)
	}

	if ct0.Level() != ct1.Level() {
		return nil, fmt.Errorf("cannot Mul: operands must share a level but are at levels %d and %d", ct0.Level(), ct1.Level())
	}

	out, err := e.eval.MulNew(ct0, ct1)
	if err != nil {
		return nil, fmt.Errorf("cannot Mul: %w", err)
	}

	return out, nil
}

// MulPlain returns ct * pt. The result keeps the size of ct and its scale is
// the product of the operand scales. The plaintext must be at the level of ct.
func (e *Evaluator) MulPlain(ct *rlwe.Ciphertext, pt *rlwe.Plaintext) (*rlwe.Ciphertext, error) {

	if err := e.checkPlainOperand(ct, pt); err != nil {
		return nil, fmt.Errorf("cannot MulPlain: %w", err)
	}

	if ct.Degree() != 1 {
		return nil, fmt.Errorf("cannot MulPlain: ciphertext must be relinearized but has size %d", ct.Degree()+1)
	}

	out, err := e.eval.MulNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("cannot MulPlain: %w", err)
	}

	return out, nil
}

// Relinearize returns a ciphertext of size 2 encrypting the same message as ct.
// Ciphertexts already of size 2 are returned unchanged.
func (e *Evaluator) Relinearize(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	if ct == nil {
		return nil, fmt.Errorf("cannot Relinearize: ciphertext is nil")
	}

	if ct.Degree() == 1 {
		return ct, nil
	}

	out, err := e.eval.RelinearizeNew(ct)
	if err != nil {
		return nil, fmt.Errorf("cannot Relinearize: %w", err)
	}

	return out, nil
}

// Rescale divides ct by the last prime of its modulus, consuming one level.
//
// Returns an error wrapping [herrors.ErrLevelExhausted] if ct is at level 0.
func (e *Evaluator) Rescale(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {

	if ct == nil {
		return nil, fmt.Errorf("cannot Rescale: ciphertext is nil")
	}

	if ct.Degree() != 1 {
		return nil, fmt.Errorf("cannot Rescale: ciphertext must be relinearized but has size %d", ct.Degree()+1)
	}

	if consumed := e.params.LevelsConsumedPerRescaling(); ct.Level() < consumed {
		return nil, fmt.Errorf("cannot Rescale: %w: ciphertext is at level %d", herrors.ErrLevelExhausted, ct.Level())
	}

	out := ckks.NewCiphertext(e.params.Parameters, ct.Degree(), ct.Level())
	if err := e.eval.Rescale(ct, out); err != nil {
		return nil, fmt.Errorf("cannot Rescale: %w", err)
	}

	return out, nil
}

// ModSwitchDown returns a copy of ct at the given level, without changing its scale.
//
// Returns an error if level is above the level of ct, and an error wrapping
// [herrors.ErrLevelExhausted] if level is negative.
func (e *Evaluator) ModSwitchDown(ct *rlwe.Ciphertext, level int) (*rlwe.Ciphertext, error) {

	if ct == nil {
		return nil, fmt.Errorf("cannot ModSwitchDown: ciphertext is nil")
	}

	if level < 0 {
		return nil, fmt.Errorf("cannot ModSwitchDown: %w: target level %d", herrors.ErrLevelExhausted, level)
	}

	if level > ct.Level() {
		return nil, fmt.Errorf("cannot ModSwitchDown: target level %d is above ciphertext level %d", level, ct.Level())
	}

	return e.eval.DropLevelNew(ct, ct.Level()-level), nil
}

// AlignLevels returns ct0 and ct1 at the smallest of their two levels.
// The operand already at that level is returned as is.
func (e *Evaluator) AlignLevels(ct0, ct1 *rlwe.Ciphertext) (op0, op1 *rlwe.Ciphertext, err error) {

	level := min(ct0.Level(), ct1.Level())

	if op0, err = e.alignTo(ct0, level); err != nil {
		return
	}

	op1, err = e.alignTo(ct1, level)

	return
}

func (e *Evaluator) alignTo(ct *rlwe.Ciphertext, level int) (*rlwe.Ciphertext, error) {
	if ct.Level() == level {
		return ct, nil
	}
	return e.ModSwitchDown(ct, level)
}

// Rotate returns ct with its slots cyclically rotated k positions to the left.
// A rotation key for k must have been generated with the session.
func (e *Evaluator) Rotate(ct *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error) {

	if ct == nil {
		return nil, fmt.Errorf("cannot Rotate: ciphertext is nil")
	}

	if ct.Degree() != 1 {
		return nil, fmt.Errorf("cannot Rotate: ciphertext must be relinearized but has size %d", ct.Degree()+1)
	}

	out, err := e.eval.RotateNew(ct, k)
	if err != nil {
		return nil, fmt.Errorf("cannot Rotate: %w", err)
	}

	return out, nil
}

// CheckScale returns an error wrapping [herrors.ErrScaleMismatch] if the scale of op
// differs from want by more than the tolerance of the evaluator, in log2 bits.
func (e *Evaluator) CheckScale(op rlwe.ElementInterface[ring.Poly], want rlwe.Scale) error {
	have := op.El().Scale
	if diff := math.Abs(Log2(have) - Log2(want)); !(diff <= e.tolerance) {
		return fmt.Errorf("%w: scale 2^%.6f differs from 2^%.6f", herrors.ErrScaleMismatch, Log2(have), Log2(want))
	}
	return nil
}

// CheckNominal returns an error wrapping [herrors.ErrScaleMismatch] if ct is not at the nominal scale.
func (e *Evaluator) CheckNominal(ct *rlwe.Ciphertext) error {
	return e.CheckScale(ct, e.params.NominalScale())
}

func (e *Evaluator) checkPlainOperand(ct *rlwe.Ciphertext, pt *rlwe.Plaintext) error {
	if ct == nil || pt == nil {
		return fmt.Errorf("operand is nil")
	}
	if pt.Level() != ct.Level() {
		return fmt.Errorf("plaintext level %d does not match ciphertext level %d", pt.Level(), ct.Level())
	}
	return nil
}

// Log2 returns the base-2 logarithm of a scale.
func Log2(scale rlwe.Scale) float64 {
	return math.Log2(scale.Float64())
}
