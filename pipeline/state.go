package pipeline

import "fmt"

// State is the stage reached by a [Pipeline].
type State int

const (
	Init State = iota
	KeysGenerated
	FeaturesEncrypted
	LinearEvaluated
	ActivationApplied
	Decrypted
	Aborted
)

var stateNames = [...]string{
	Init:              "Init",
	KeysGenerated:     "KeysGenerated",
	FeaturesEncrypted: "FeaturesEncrypted",
	LinearEvaluated:   "LinearEvaluated",
	ActivationApplied: "ActivationApplied",
	Decrypted:         "Decrypted",
	Aborted:           "Aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no operation can be applied in the state.
func (s State) Terminal() bool {
	return s == Decrypted || s == Aborted
}
