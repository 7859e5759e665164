// Package encoding packs real feature vectors into CKKS plaintexts.
package encoding

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/params"
	"github.com/hcanalytics/riskhe/utils"
)

// EncodedVector is a plaintext holding Len real values in its first slots.
// The remaining slots are zero.
type EncodedVector struct {
	Plaintext *rlwe.Plaintext
	Len       int
}

// Level returns the level of the encoded vector.
func (v EncodedVector) Level() int {
	return v.Plaintext.Level()
}

// Scale returns the scale of the encoded vector.
func (v EncodedVector) Scale() rlwe.Scale {
	return v.Plaintext.Scale
}

// Encoder encodes real vectors on plaintexts. It is not safe for concurrent use,
// see [Encoder.ShallowCopy].
type Encoder struct {
	params  params.Parameters
	encoder *ckks.Encoder
}

// NewEncoder returns a new [Encoder]. If ecd is nil, a new CKKS encoder is instantiated.
func NewEncoder(p params.Parameters, ecd *ckks.Encoder) *Encoder {
	if ecd == nil {
		ecd = ckks.NewEncoder(p.Parameters)
	}
	return &Encoder{params: p, encoder: ecd}
}

// ShallowCopy returns a new [Encoder] sharing the read-only data of the receiver.
func (e *Encoder) ShallowCopy() *Encoder {
	return &Encoder{params: e.params, encoder: e.encoder.ShallowCopy()}
}

// Parameters returns the parameters of the encoder.
func (e *Encoder) Parameters() params.Parameters {
	return e.params
}

// Encode encodes values at the top level of the modulus chain and at the given scale.
func (e *Encoder) Encode(values []float64, scale rlwe.Scale) (*EncodedVector, error) {
	return e.EncodeAt(values, e.params.MaxLevel(), scale)
}

// EncodeAt encodes values at the given level and scale.
//
// Returns an error wrapping [herrors.ErrDimension] if values is empty or longer than the
// slot capacity, and an error wrapping [herrors.ErrParameter] if a value is not finite
// or if the level is outside of the modulus chain.
func (e *Encoder) EncodeAt(values []float64, level int, scale rlwe.Scale) (*EncodedVector, error) {

	if len(values) == 0 || len(values) > e.params.SlotCapacity() {
		return nil, fmt.Errorf("cannot EncodeAt: %w: %d values for %d slots", herrors.ErrDimension, len(values), e.params.SlotCapacity())
	}

	if !utils.AllFinite(values) {
		return nil, fmt.Errorf("cannot EncodeAt: %w: values must be finite", herrors.ErrParameter)
	}

	if level < 0 || level > e.params.MaxLevel() {
		return nil, fmt.Errorf("cannot EncodeAt: %w: level %d is outside of [0, %d]", herrors.ErrParameter, level, e.params.MaxLevel())
	}

	if scale.Float64() <= 0 {
		return nil, fmt.Errorf("cannot EncodeAt: %w: scale must be positive", herrors.ErrParameter)
	}

	pt := ckks.NewPlaintext(e.params.Parameters, level)
	pt.Scale = scale

	if err := e.encoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("cannot EncodeAt: %w", err)
	}

	return &EncodedVector{Plaintext: pt, Len: len(values)}, nil
}

// Decode returns the real parts of the first n slots of pt.
//
// Returns an error wrapping [herrors.ErrDimension] if n is not in [1, slot capacity].
func (e *Encoder) Decode(pt *rlwe.Plaintext, n int) ([]float64, error) {

	if n < 1 || n > e.params.SlotCapacity() {
		return nil, fmt.Errorf("cannot Decode: %w: %d values for %d slots", herrors.ErrDimension, n, e.params.SlotCapacity())
	}

	values := make([]float64, e.params.SlotCapacity())
	if err := e.encoder.Decode(pt, values); err != nil {
		return nil, fmt.Errorf("cannot Decode: %w", err)
	}

	return values[:n], nil
}

// DecodeComplex returns the first n slots of pt.
func (e *Encoder) DecodeComplex(pt *rlwe.Plaintext, n int) ([]complex128, error) {

	if n < 1 || n > e.params.SlotCapacity() {
		return nil, fmt.Errorf("cannot DecodeComplex: %w: %d values for %d slots", herrors.ErrDimension, n, e.params.SlotCapacity())
	}

	values := make([]complex128, e.params.SlotCapacity())
	if err := e.encoder.Decode(pt, values); err != nil {
		return nil, fmt.Errorf("cannot DecodeComplex: %w", err)
	}

	return values[:n], nil
}
