// Package decoding decrypts and decodes the result of a scoring circuit.
package decoding

import (
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/keys"
	"github.com/hcanalytics/riskhe/encoding"
)

// Decoder decrypts ciphertexts with the secret key of a session.
//
// When bounds are set, [Decoder.Decrypt] also checks that the decoded value is plausible:
// a ciphertext decrypted under the wrong key decodes to values that are uniformly spread
// over the whole modulus, far outside of any expected range.
type Decoder struct {
	sess    *keys.Session
	encoder *encoding.Encoder

	bounded bool
	lo, hi  float64
	margin  float64
}

// NewDecoder instantiates a new [Decoder] without plausibility bounds.
//
// Returns an error wrapping [herrors.ErrNotInitialized] if sess is nil.
func NewDecoder(sess *keys.Session) (*Decoder, error) {
	if sess == nil {
		return nil, fmt.Errorf("cannot NewDecoder: %w: session is nil", herrors.ErrNotInitialized)
	}
	return &Decoder{
		sess:    sess,
		encoder: encoding.NewEncoder(sess.Parameters(), sess.Encoder()),
	}, nil
}

// WithBounds returns a copy of the decoder rejecting decrypted values whose real part is
// outside of [lo-margin, hi+margin] or whose imaginary part exceeds margin in absolute value.
func (d *Decoder) WithBounds(lo, hi, margin float64) *Decoder {
	return &Decoder{
		sess:    d.sess,
		encoder: d.encoder.ShallowCopy(),
		bounded: true,
		lo:      lo,
		hi:      hi,
		margin:  math.Abs(margin),
	}
}

// Decrypt decrypts ct and returns the real part of its first slot.
//
// Returns an error wrapping [herrors.ErrNotInitialized] if the session was closed, and an
// error wrapping [herrors.ErrDecryptionFailure] if the decoded value is not finite or
// falls outside of the bounds of the decoder.
func (d *Decoder) Decrypt(ct *rlwe.Ciphertext) (float64, error) {

	values, err := d.decrypt(ct, 1)
	if err != nil {
		return 0, fmt.Errorf("cannot Decrypt: %w", err)
	}

	if err = d.check(values[0]); err != nil {
		return 0, fmt.Errorf("cannot Decrypt: %w", err)
	}

	return real(values[0]), nil
}

// DecryptVector decrypts ct and returns the real parts of its first n slots.
// The plausibility bounds are not applied.
func (d *Decoder) DecryptVector(ct *rlwe.Ciphertext, n int) ([]float64, error) {

	values, err := d.decrypt(ct, n)
	if err != nil {
		return nil, fmt.Errorf("cannot DecryptVector: %w", err)
	}

	out := make([]float64, n)
	for i := range values {
		if v := real(values[i]); !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		} else {
			return nil, fmt.Errorf("cannot DecryptVector: %w: slot %d is not finite", herrors.ErrDecryptionFailure, i)
		}
	}

	return out, nil
}

func (d *Decoder) decrypt(ct *rlwe.Ciphertext, n int) ([]complex128, error) {

	pt, err := d.sess.Decrypt(ct)
	if err != nil {
		return nil, err
	}

	return d.encoder.DecodeComplex(pt, n)
}

func (d *Decoder) check(v complex128) error {

	re, im := real(v), imag(v)

	if math.IsNaN(re) || math.IsInf(re, 0) || math.IsNaN(im) || math.IsInf(im, 0) {
		return fmt.Errorf("%w: decoded value is not finite", herrors.ErrDecryptionFailure)
	}

	if !d.bounded {
		return nil
	}

	if re < d.lo-d.margin || re > d.hi+d.margin || math.Abs(im) > d.margin {
		return fmt.Errorf("%w: decoded value %.4g%+.4gi is outside of [%v, %v] (margin %v)", herrors.ErrDecryptionFailure, re, im, d.lo, d.hi, d.margin)
	}

	return nil
}
