// Package params generates the CKKS parameters of a scoring session: the ring degree,
// the modulus chain sized for the depth of the circuit and the nominal scale.
package params

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/hcanalytics/riskhe/core/herrors"
)

const (
	// MinLogN is the smallest ring degree (in log2) considered by [GenerateParameters].
	MinLogN = 10
	// MaxLogN is the largest ring degree (in log2) considered by [GenerateParameters].
	MaxLogN = 16
	// MaxLogPrime is the largest prime size supported by the collaborator library.
	MaxLogPrime = 61
)

// maxLogQP is the largest total modulus size, indexed by LogN, offering 128 bits of security
// for a uniform ternary secret and a discrete Gaussian error of standard deviation 3.2.
var maxLogQP = map[int]float64{
	10: 27,
	11: 54,
	12: 109,
	13: 218,
	14: 438,
	15: 881,
	16: 1761,
}

// Literal is a literal representation of the parameters of a session.
// Unless LogQ is given, the modulus chain is built as one prime of LogFirstPrime bits
// followed by one prime of LogDefaultScale bits per level of the circuit. Unless LogN
// is given, the smallest ring degree of at least 2^{MinLogN} offering 128 bits of security
// is selected.
type Literal struct {
	LogN            int   `json:",omitempty"`
	MinLogN         int   `json:",omitempty"`
	LogQ            []int `json:",omitempty"`
	LogP            []int `json:",omitempty"`
	LogFirstPrime   int   `json:",omitempty"`
	LogSpecialPrime int   `json:",omitempty"`
	LogDefaultScale int
}

// Parameters are the checked parameters of a session, generated for a given circuit depth.
type Parameters struct {
	ckks.Parameters
	depth int
}

// GenerateParameters returns parameters whose modulus chain holds at least targetDepth+1 levels:
// one level is consumed per multiply-then-rescale step of the circuit, and level 0 holds the output.
//
// Returns an error wrapping [herrors.ErrParameter] if:
//   - the literal is malformed
//   - the chain is shorter than targetDepth+1 primes
//   - no ring degree offers 128 bits of security for the resulting modulus
func GenerateParameters(targetDepth int, lit Literal) (p Parameters, err error) {

	if targetDepth < 0 {
		return p, fmt.Errorf("cannot GenerateParameters: %w: negative target depth %d", herrors.ErrParameter, targetDepth)
	}

	var logQ, logP []int
	if logQ, logP, err = lit.chain(targetDepth); err != nil {
		return p, fmt.Errorf("cannot GenerateParameters: %w", err)
	}

	if len(logQ) < targetDepth+1 {
		return p, fmt.Errorf("cannot GenerateParameters: %w: modulus chain has %d levels but depth %d requires %d", herrors.ErrParameter, len(logQ), targetDepth, targetDepth+1)
	}

	logQP := float64(sum(logQ) + sum(logP))

	var logN int
	if logN, err = lit.ringDegree(logQP); err != nil {
		return p, fmt.Errorf("cannot GenerateParameters: %w", err)
	}

	var ckksParams ckks.Parameters
	if ckksParams, err = ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            logQ,
		LogP:            logP,
		LogDefaultScale: lit.LogDefaultScale,
	}); err != nil {
		return p, fmt.Errorf("cannot GenerateParameters: %w: %w", herrors.ErrParameter, err)
	}

	return Parameters{Parameters: ckksParams, depth: targetDepth}, nil
}

func (lit Literal) chain(targetDepth int) (logQ, logP []int, err error) {

	if lit.LogDefaultScale <= 0 || lit.LogDefaultScale > MaxLogPrime-1 {
		return nil, nil, fmt.Errorf("%w: LogDefaultScale must be in [1, %d] but is %d", herrors.ErrParameter, MaxLogPrime-1, lit.LogDefaultScale)
	}

	switch {
	case len(lit.LogQ) != 0:
		logQ = append([]int{}, lit.LogQ...)
	case lit.LogFirstPrime != 0:
		if lit.LogFirstPrime <= lit.LogDefaultScale {
			return nil, nil, fmt.Errorf("%w: LogFirstPrime=%d leaves no room above LogDefaultScale=%d", herrors.ErrParameter, lit.LogFirstPrime, lit.LogDefaultScale)
		}
		logQ = make([]int, targetDepth+1)
		logQ[0] = lit.LogFirstPrime
		for i := 1; i < len(logQ); i++ {
			logQ[i] = lit.LogDefaultScale
		}
	default:
		return nil, nil, fmt.Errorf("%w: either LogQ or LogFirstPrime must be set", herrors.ErrParameter)
	}

	switch {
	case len(lit.LogP) != 0:
		logP = append([]int{}, lit.LogP...)
	case lit.LogSpecialPrime != 0:
		logP = []int{lit.LogSpecialPrime}
	default:
		return nil, nil, fmt.Errorf("%w: either LogP or LogSpecialPrime must be set", herrors.ErrParameter)
	}

	for _, bits := range append(append([]int{}, logQ...), logP...) {
		if bits <= 0 || bits > MaxLogPrime {
			return nil, nil, fmt.Errorf("%w: prime size must be in [1, %d] but is %d", herrors.ErrParameter, MaxLogPrime, bits)
		}
	}

	return
}

func (lit Literal) ringDegree(logQP float64) (logN int, err error) {

	if lit.LogN != 0 {
		bound, ok := maxLogQP[lit.LogN]
		if !ok {
			return 0, fmt.Errorf("%w: LogN must be in [%d, %d] but is %d", herrors.ErrParameter, MinLogN, MaxLogN, lit.LogN)
		}
		if logQP > bound {
			return 0, fmt.Errorf("%w: LogQP=%.0f exceeds the 128-bit security bound %.0f of LogN=%d", herrors.ErrParameter, logQP, bound, lit.LogN)
		}
		return lit.LogN, nil
	}

	start := max(lit.MinLogN, MinLogN)
	for logN = start; logN <= MaxLogN; logN++ {
		if logQP <= maxLogQP[logN] {
			return logN, nil
		}
	}

	return 0, fmt.Errorf("%w: no ring degree offers 128-bit security for LogQP=%.0f", herrors.ErrParameter, logQP)
}

// Depth returns the multiplicative depth the parameters were generated for.
func (p Parameters) Depth() int {
	return p.depth
}

// SlotCapacity returns the number of real values a single plaintext can hold, i.e. N/2.
func (p Parameters) SlotCapacity() int {
	return p.MaxSlots()
}

// NominalScale returns the working scale every ciphertext at a pipeline boundary must carry.
func (p Parameters) NominalScale() rlwe.Scale {
	return p.DefaultScale()
}

// RescaleFactor returns the scale that a multiplicand at the given level must be encoded at,
// so that rescaling the product of a nominal-scale ciphertext with it lands exactly on the nominal scale.
func (p Parameters) RescaleFactor(level int) rlwe.Scale {
	return p.GetOptimalScalingFactor(p.NominalScale(), p.NominalScale(), level)
}

// Literal returns a literal that regenerates these parameters.
func (p Parameters) Literal() Literal {
	return Literal{
		LogN:            p.LogN(),
		LogQ:            p.LogQi(),
		LogP:            p.LogPi(),
		LogDefaultScale: p.LogDefaultScale(),
	}
}

// String returns a human readable summary of the parameters.
func (p Parameters) String() string {
	return fmt.Sprintf("LogN=%d/LogQP=%d/Qi=%d/Pi=%d/LogScale=%d/Depth=%d",
		p.LogN(),
		int(math.Round(p.LogQP())),
		p.QCount(),
		p.PCount(),
		p.LogDefaultScale(),
		p.depth)
}

// MarshalJSON encodes the parameters as their regenerating [Literal].
func (p Parameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Literal
		Depth int
	}{p.Literal(), p.depth})
}

func sum(s []int) (total int) {
	for _, v := range s {
		total += v
	}
	return
}
