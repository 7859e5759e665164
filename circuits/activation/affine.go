// Package activation evaluates the degree-one approximation a + b·x of the logistic
// function on an encrypted linear score.
package activation

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/utils"
)

// referencePrec is the precision, in bits, of the reference logistic function.
const referencePrec = 128

// Affine is the approximation x -> Intercept + Slope·x of the logistic function,
// valid on [DomainMin, DomainMax].
type Affine struct {
	Intercept float64
	Slope     float64
	DomainMin float64
	DomainMax float64
}

// Validate returns an error wrapping [herrors.ErrParameter] if a coefficient or a domain
// bound is not finite, or if the domain is empty.
func (a Affine) Validate() error {
	if !utils.AllFinite([]float64{a.Intercept, a.Slope, a.DomainMin, a.DomainMax}) {
		return fmt.Errorf("invalid activation: %w: coefficients and domain must be finite", herrors.ErrParameter)
	}
	if a.DomainMin >= a.DomainMax {
		return fmt.Errorf("invalid activation: %w: empty domain [%v, %v]", herrors.ErrParameter, a.DomainMin, a.DomainMax)
	}
	return nil
}

// Eval evaluates the approximation on x.
func (a Affine) Eval(x float64) float64 {
	return a.Intercept + a.Slope*x
}

// InDomain reports whether x lies in the validity domain of the approximation.
func (a Affine) InDomain(x float64) bool {
	return x >= a.DomainMin && x <= a.DomainMax
}

// Image returns the bounds of the image of the validity domain.
func (a Affine) Image() (lo, hi float64) {
	return utils.MinMax([]float64{a.Eval(a.DomainMin), a.Eval(a.DomainMax)})
}

// ReferenceError returns |a + b·x - 1/(1+e^{-x})|, with the logistic function
// evaluated in 128-bit precision.
func (a Affine) ReferenceError(x float64) float64 {
	approx := new(big.Float).SetPrec(referencePrec).SetFloat64(a.Eval(x))
	diff := new(big.Float).SetPrec(referencePrec).Sub(approx, logistic(x))
	f, _ := diff.Abs(diff).Float64()
	return f
}

// MaxError returns the largest [Affine.ReferenceError] over samples evenly spaced
// points of the domain, and the point where it is reached.
func (a Affine) MaxError(samples int) (maxErr, at float64) {

	samples = max(samples, 2)

	step := (a.DomainMax - a.DomainMin) / float64(samples-1)

	for i := 0; i < samples; i++ {
		x := a.DomainMin + float64(i)*step
		if e := a.ReferenceError(x); e > maxErr {
			maxErr, at = e, x
		}
	}

	return
}

// Logistic returns 1/(1+e^{-x}) computed in 128-bit precision.
func Logistic(x float64) float64 {
	f, _ := logistic(x).Float64()
	return f
}

func logistic(x float64) *big.Float {
	if math.IsInf(x, 1) {
		return new(big.Float).SetPrec(referencePrec).SetInt64(1)
	}
	if math.IsInf(x, -1) {
		return new(big.Float).SetPrec(referencePrec)
	}
	one := new(big.Float).SetPrec(referencePrec).SetInt64(1)
	e := bigfloat.Exp(new(big.Float).SetPrec(referencePrec).SetFloat64(-x))
	e.Add(e, one)
	return e.Quo(one, e)
}
