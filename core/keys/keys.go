// Package keys manages the key lifecycle of a scoring session.
//
// A [Manager] generates the key set once per session. The resulting [Session] exposes the
// public key material, which is read-only and safely shared across concurrent pipelines,
// while the secret key stays confined to the session and is zeroized when the session is closed.
package keys

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// PublicKeySet is the public half of a [KeySet]: it enables encryption and evaluation,
// but not decryption. It is immutable after generation.
type PublicKeySet struct {
	PublicKey          *rlwe.PublicKey
	RelinearizationKey *rlwe.RelinearizationKey
	GaloisKeys         []*rlwe.GaloisKey

	// Rotations are the left-rotation offsets the Galois keys were generated for.
	Rotations []int
}

// EvaluationKeySet returns the evaluation keys in the format expected by the evaluators.
func (pks PublicKeySet) EvaluationKeySet() *rlwe.MemEvaluationKeySet {
	return rlwe.NewMemEvaluationKeySet(pks.RelinearizationKey, pks.GaloisKeys...)
}

// KeySet is the full key set of a session. The secret key is unexported:
// it is only reachable through the decryption methods of the owning [Session].
type KeySet struct {
	PublicKeySet
	secret *rlwe.SecretKey
}

// zeroize overwrites the coefficients of the secret key.
func zeroize(sk *rlwe.SecretKey) {
	if sk == nil {
		return
	}
	for _, c := range sk.Value.Q.Coeffs {
		clear(c)
	}
	for _, c := range sk.Value.P.Coeffs {
		clear(c)
	}
}

// isZero reports whether every coefficient of the secret key is zero.
func isZero(sk *rlwe.SecretKey) bool {
	for _, c := range sk.Value.Q.Coeffs {
		for _, v := range c {
			if v != 0 {
				return false
			}
		}
	}
	for _, c := range sk.Value.P.Coeffs {
		for _, v := range c {
			if v != 0 {
				return false
			}
		}
	}
	return true
}
