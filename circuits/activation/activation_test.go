package activation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/circuits/linear"
	"github.com/hcanalytics/riskhe/core/heval"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/keys"
	"github.com/hcanalytics/riskhe/core/params"
	"github.com/hcanalytics/riskhe/encoding"
)

var testAffine = Affine{Intercept: 0.5, Slope: 0.125, DomainMin: -4, DomainMax: 4}

type testContext struct {
	sess    *keys.Session
	eval    *heval.Evaluator
	encoder *encoding.Encoder
}

func newTestContext(t *testing.T, depth int) *testContext {

	p, err := params.GenerateParameters(depth, params.Literal{
		LogFirstPrime:   60,
		LogSpecialPrime: 60,
		LogDefaultScale: 40,
	})
	require.NoError(t, err)

	m, err := keys.NewManager(p, 2, nil)
	require.NoError(t, err)

	sess, err := m.GenerateKeys()
	require.NoError(t, err)

	eval, err := heval.NewEvaluator(sess, 0)
	require.NoError(t, err)

	return &testContext{sess: sess, eval: eval, encoder: encoding.NewEncoder(p, eval.Encoder())}
}

func (tc *testContext) encrypt(t *testing.T, values []float64, level int) *rlwe.Ciphertext {
	v, err := tc.encoder.EncodeAt(values, level, tc.eval.Parameters().NominalScale())
	require.NoError(t, err)
	ct, err := tc.eval.Encrypt(v.Plaintext)
	require.NoError(t, err)
	return ct
}

func (tc *testContext) decrypt(t *testing.T, ct *rlwe.Ciphertext, n int) []float64 {
	pt, err := tc.sess.Decrypt(ct)
	require.NoError(t, err)
	have, err := tc.encoder.Decode(pt, n)
	require.NoError(t, err)
	return have
}

func TestAffine(t *testing.T) {

	t.Run("Eval", func(t *testing.T) {
		require.InDelta(t, 0.1, testAffine.Eval(-3.2), 1e-12)
		require.InDelta(t, 0.5, testAffine.Eval(0), 1e-12)
		require.InDelta(t, 0.8, testAffine.Eval(2.4), 1e-12)
	})

	t.Run("InDomain", func(t *testing.T) {
		require.True(t, testAffine.InDomain(-4))
		require.True(t, testAffine.InDomain(4))
		require.False(t, testAffine.InDomain(4.01))
		require.False(t, testAffine.InDomain(math.NaN()))
	})

	t.Run("Image", func(t *testing.T) {
		lo, hi := testAffine.Image()
		require.InDelta(t, 0, lo, 1e-12)
		require.InDelta(t, 1, hi, 1e-12)

		lo, hi = Affine{Intercept: 1, Slope: -1, DomainMin: 0, DomainMax: 2}.Image()
		require.Equal(t, -1.0, lo)
		require.Equal(t, 1.0, hi)
	})

	t.Run("Logistic", func(t *testing.T) {
		require.Equal(t, 0.5, Logistic(0))
		require.InDelta(t, 1/(1+math.Exp(-2.4)), Logistic(2.4), 1e-15)
		require.Equal(t, 1.0, Logistic(math.Inf(1)))
		require.Equal(t, 0.0, Logistic(math.Inf(-1)))
	})

	t.Run("ReferenceError", func(t *testing.T) {
		require.InDelta(t, 0, testAffine.ReferenceError(0), 1e-15)
		require.InDelta(t, math.Abs(0.8-1/(1+math.Exp(-2.4))), testAffine.ReferenceError(2.4), 1e-12)

		maxErr, at := testAffine.MaxError(801)
		// sigmoid'(x) = 1/8 at |x| = ln(3+2√2)
		require.InDelta(t, 0.1333, maxErr, 1e-3)
		require.InDelta(t, 1.7627, math.Abs(at), 1e-2)
		require.Equal(t, testAffine.ReferenceError(at), maxErr)
	})

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, testAffine.Validate())

		for _, a := range []Affine{
			{Intercept: 0.5, Slope: 0.125, DomainMin: 4, DomainMax: -4},
			{Intercept: 0.5, Slope: 0.125, DomainMin: 1, DomainMax: 1},
			{Intercept: math.NaN(), Slope: 0.125, DomainMin: -4, DomainMax: 4},
			{Intercept: 0.5, Slope: math.Inf(1), DomainMin: -4, DomainMax: 4},
			{Intercept: 0.5, Slope: 0.125, DomainMin: math.Inf(-1), DomainMax: 4},
		} {
			require.True(t, errors.Is(a.Validate(), herrors.ErrParameter), "%+v", a)
		}
	})
}

func TestApply(t *testing.T) {

	tc := newTestContext(t, 2)
	p := tc.eval.Parameters()

	for _, strategy := range []linear.Strategy{linear.EncryptedModel, linear.PlaintextModel} {

		eval, err := NewEvaluator(tc.eval, testAffine, strategy)
		require.NoError(t, err)

		t.Run(strategy.String()+"/Scenarios", func(t *testing.T) {
			x := []float64{-3.2, 0, 2.4, -4, 4}
			ct := tc.encrypt(t, x, p.MaxLevel())

			out, err := eval.Apply(ct)
			require.NoError(t, err)
			require.Equal(t, p.MaxLevel()-1, out.Level())
			require.NoError(t, eval.CheckNominal(out))

			have := tc.decrypt(t, out, len(x))
			for i := range x {
				require.InDelta(t, testAffine.Eval(x[i]), have[i], 1e-6)
			}
		})

		t.Run(strategy.String()+"/Linearity", func(t *testing.T) {
			x1, x2 := []float64{1.25, -2}, []float64{-0.5, 3.5}
			sum := []float64{x1[0] + x2[0], x1[1] + x2[1]}

			apply := func(x []float64) *rlwe.Ciphertext {
				out, err := eval.Apply(tc.encrypt(t, x, p.MaxLevel()))
				require.NoError(t, err)
				return out
			}

			lhs, err := tc.eval.Add(apply(x1), apply(x2))
			require.NoError(t, err)
			lhs, err = tc.eval.Sub(lhs, apply([]float64{0, 0}))
			require.NoError(t, err)

			rhs := apply(sum)

			require.InDeltaSlice(t, tc.decrypt(t, rhs, 2), tc.decrypt(t, lhs, 2), 1e-6)
		})
	}

	t.Run("Errors", func(t *testing.T) {

		_, err := NewEvaluator(nil, testAffine, linear.EncryptedModel)
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))

		_, err = NewEvaluator(tc.eval, Affine{Slope: 1}, linear.EncryptedModel)
		require.True(t, errors.Is(err, herrors.ErrParameter))

		eval, err := NewEvaluator(tc.eval, testAffine, linear.PlaintextModel)
		require.NoError(t, err)

		v, err := tc.encoder.Encode([]float64{1}, p.NominalScale().Mul(rlwe.NewScale(8)))
		require.NoError(t, err)
		off, err := tc.eval.Encrypt(v.Plaintext)
		require.NoError(t, err)
		_, err = eval.Apply(off)
		require.True(t, errors.Is(err, herrors.ErrScaleMismatch))

		_, err = eval.Apply(tc.encrypt(t, []float64{1}, 0))
		require.True(t, errors.Is(err, herrors.ErrLevelExhausted))
	})
}

// A depth-2 circuit on a chain holding a single level: the linear layer
// consumes it and the activation has nothing left to rescale.
func TestLevelExhaustion(t *testing.T) {

	tc := newTestContext(t, 1)
	p := tc.eval.Parameters()
	require.Equal(t, 1, p.MaxLevel())

	lin, err := linear.NewEvaluator(tc.eval, 2, linear.EncryptedModel)
	require.NoError(t, err)

	act, err := NewEvaluator(tc.eval, testAffine, linear.EncryptedModel)
	require.NoError(t, err)

	score, err := lin.DotProductPlusBias(tc.encrypt(t, []float64{70, 20}, p.MaxLevel()), []float64{0.01685, 0.2947}, -10.2735)
	require.NoError(t, err)
	require.Equal(t, 0, score.Level())

	_, err = act.Apply(score)
	require.True(t, errors.Is(err, herrors.ErrLevelExhausted))
}
