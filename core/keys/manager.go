package keys

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/params"
	"github.com/hcanalytics/riskhe/utils"
)

// Manager owns the parameters of a session and generates its key set.
// Key generation replaces the current [Session]: ciphertexts produced under a previous
// session cannot be decrypted by the new one.
type Manager struct {
	params       params.Parameters
	featureCount int
	logger       *slog.Logger

	mu         sync.Mutex
	session    *Session
	generation int
}

// NewManager creates a new [Manager] for circuits aggregating featureCount slots.
// A nil logger discards all records.
//
// Returns an error wrapping [herrors.ErrDimension] if featureCount is not in [1, params.SlotCapacity()].
func NewManager(p params.Parameters, featureCount int, logger *slog.Logger) (*Manager, error) {

	if featureCount < 1 || featureCount > p.SlotCapacity() {
		return nil, fmt.Errorf("cannot NewManager: %w: feature count %d must be in [1, %d]", herrors.ErrDimension, featureCount, p.SlotCapacity())
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		params:       p,
		featureCount: featureCount,
		logger:       logger,
	}, nil
}

// Parameters returns the parameters of the manager.
func (m *Manager) Parameters() params.Parameters {
	return m.params
}

// GenerateKeys generates a fresh key set and returns the new [Session].
// If a session already exists, it is closed and its secret key zeroized.
func (m *Manager) GenerateKeys() (*Session, error) {

	rotations := utils.RotationOffsets(m.featureCount)

	kgen := rlwe.NewKeyGenerator(m.params)

	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)

	var gks []*rlwe.GaloisKey
	if len(rotations) != 0 {
		gks = kgen.GenGaloisKeysNew(m.params.GaloisElements(rotations), sk)
	}

	ks := KeySet{
		PublicKeySet: PublicKeySet{
			PublicKey:          pk,
			RelinearizationKey: rlk,
			GaloisKeys:         gks,
			Rotations:          rotations,
		},
		secret: sk,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := newSession(m.params, ks, m.generation+1)
	if err != nil {
		zeroize(sk)
		return nil, fmt.Errorf("cannot GenerateKeys: %w", err)
	}

	if m.session != nil {
		m.session.Close()
		m.logger.Info("session replaced", "session", m.session.ShortFingerprint(), "generation", m.session.Generation())
	}

	m.generation++
	m.session = sess

	m.logger.Info("keys generated",
		"session", sess.ShortFingerprint(),
		"generation", sess.Generation(),
		"params", m.params.String(),
		"rotations", rotations)

	return sess, nil
}

// Session returns the current session.
//
// Returns an error wrapping [herrors.ErrNotInitialized] if the keys were never generated
// or if the manager was closed.
func (m *Manager) Session() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, fmt.Errorf("cannot Session: %w: keys were not generated", herrors.ErrNotInitialized)
	}
	return m.session, nil
}

// Close closes the current session, if any. A closed manager can generate keys again.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Close()
		m.logger.Info("session closed", "session", m.session.ShortFingerprint(), "generation", m.session.Generation())
		m.session = nil
	}
}
