package encoding

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/core/herrors"
)

// Constant is a plaintext constant that can be materialised at any level of the modulus chain.
// Switching a plaintext down a level amounts to encoding it again at the lower level.
type Constant struct {
	Values []float64
	Scale  rlwe.Scale

	encoder *Encoder
}

// NewConstant returns a new [Constant] encoding values at the given scale.
func (e *Encoder) NewConstant(scale rlwe.Scale, values ...float64) (*Constant, error) {
	if len(values) == 0 || len(values) > e.params.SlotCapacity() {
		return nil, fmt.Errorf("cannot NewConstant: %w: %d values for %d slots", herrors.ErrDimension, len(values), e.params.SlotCapacity())
	}
	return &Constant{
		Values:  append([]float64{}, values...),
		Scale:   scale,
		encoder: e,
	}, nil
}

// At returns the constant encoded at the given level.
func (c *Constant) At(level int) (*rlwe.Plaintext, error) {
	v, err := c.encoder.EncodeAt(c.Values, level, c.Scale)
	if err != nil {
		return nil, fmt.Errorf("cannot At: %w", err)
	}
	return v.Plaintext, nil
}
