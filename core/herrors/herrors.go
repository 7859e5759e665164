// Package herrors defines the error taxonomy shared by every layer of the scoring circuit.
// Errors are wrapped with the failing operation and matched with [errors.Is].
package herrors

import (
	"errors"
)

var (
	// ErrParameter is returned when the modulus chain is too short for the requested
	// circuit depth or when the parameter literal is malformed.
	ErrParameter = errors.New("parameter error")

	// ErrLevelExhausted is returned when a rescale or a modulus switch is attempted
	// with no remaining level in the modulus chain.
	ErrLevelExhausted = errors.New("level exhausted")

	// ErrScaleMismatch is returned when an addition or subtraction is attempted on
	// operands whose scales differ by more than the configured tolerance.
	ErrScaleMismatch = errors.New("scale mismatch")

	// ErrDimension is returned when a feature or weight vector exceeds the slot
	// capacity or when their lengths do not match.
	ErrDimension = errors.New("dimension error")

	// ErrNotInitialized is returned when an operation is invoked before the keys
	// were generated, or before the preceding step of the pipeline completed.
	ErrNotInitialized = errors.New("not initialized")

	// ErrDecryptionFailure is returned when a decrypted value is not plausible for the
	// known input domain, which signals a key mismatch or a corrupted ciphertext.
	ErrDecryptionFailure = errors.New("decryption failure")
)
