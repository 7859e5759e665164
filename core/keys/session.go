package keys

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"github.com/zeebo/blake3"

	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/params"
)

// Session is the immutable product of a key generation: the parameters, the public key
// material and the evaluator templates built from them. Each caller obtains its own shallow
// copies of the encoder, encryptor and evaluator, so that sessions can be shared by reference
// among concurrent pipelines without locking.
//
// The secret key never leaves the session: decryption goes through [Session.Decrypt], and
// [Session.Close] zeroizes it.
type Session struct {
	params      params.Parameters
	keys        PublicKeySet
	fingerprint [32]byte
	generation  int

	encoder   *ckks.Encoder
	encryptor *rlwe.Encryptor
	evaluator *ckks.Evaluator

	mu        sync.RWMutex
	secret    *rlwe.SecretKey
	decryptor *rlwe.Decryptor
}

func newSession(p params.Parameters, ks KeySet, generation int) (sess *Session, err error) {

	var fingerprint [32]byte
	if fingerprint, err = fingerprintKeys(ks.PublicKeySet); err != nil {
		return nil, err
	}

	return &Session{
		params:      p,
		keys:        ks.PublicKeySet,
		fingerprint: fingerprint,
		generation:  generation,
		encoder:     ckks.NewEncoder(p.Parameters),
		encryptor:   rlwe.NewEncryptor(p, ks.PublicKey),
		evaluator:   ckks.NewEvaluator(p.Parameters, ks.EvaluationKeySet()),
		secret:      ks.secret,
		decryptor:   rlwe.NewDecryptor(p, ks.secret),
	}, nil
}

// fingerprintKeys returns the BLAKE3 digest of the public key and of the Galois elements.
func fingerprintKeys(pks PublicKeySet) (digest [32]byte, err error) {

	h := blake3.New()

	var data []byte
	if data, err = pks.PublicKey.MarshalBinary(); err != nil {
		return digest, fmt.Errorf("cannot fingerprint public key: %w", err)
	}

	if _, err = h.Write(data); err != nil {
		return digest, fmt.Errorf("cannot fingerprint public key: %w", err)
	}

	for _, rot := range pks.Rotations {
		if _, err = fmt.Fprintf(h, "rot:%d;", rot); err != nil {
			return digest, fmt.Errorf("cannot fingerprint rotations: %w", err)
		}
	}

	copy(digest[:], h.Sum(nil))

	return
}

// Parameters returns the parameters of the session.
func (s *Session) Parameters() params.Parameters {
	return s.params
}

// PublicKeys returns the public key material of the session.
func (s *Session) PublicKeys() PublicKeySet {
	return s.keys
}

// Generation returns the 1-based index of the key generation that produced the session.
func (s *Session) Generation() int {
	return s.generation
}

// Fingerprint returns the hexadecimal BLAKE3 digest identifying the public key material of the session.
func (s *Session) Fingerprint() string {
	return hex.EncodeToString(s.fingerprint[:])
}

// ShortFingerprint returns the first 8 bytes of [Session.Fingerprint], for logging.
func (s *Session) ShortFingerprint() string {
	return hex.EncodeToString(s.fingerprint[:8])
}

// Encoder returns a new encoder sharing the read-only data of the session.
func (s *Session) Encoder() *ckks.Encoder {
	return s.encoder.ShallowCopy()
}

// Encryptor returns a new public-key encryptor sharing the read-only data of the session.
func (s *Session) Encryptor() *rlwe.Encryptor {
	return s.encryptor.ShallowCopy()
}

// Evaluator returns a new evaluator holding the relinearization and rotation keys of the session.
func (s *Session) Evaluator() *ckks.Evaluator {
	return s.evaluator.ShallowCopy()
}

// Decrypt decrypts ct with the secret key of the session.
// Decryption is a pure function of the ciphertext and the secret key, so concurrent calls are safe.
//
// Returns an error wrapping [herrors.ErrNotInitialized] if the session was closed.
func (s *Session) Decrypt(ct *rlwe.Ciphertext) (*rlwe.Plaintext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.decryptor == nil {
		return nil, fmt.Errorf("cannot Decrypt: %w: session %s is closed", herrors.ErrNotInitialized, s.ShortFingerprint())
	}

	if ct == nil {
		return nil, fmt.Errorf("cannot Decrypt: ciphertext is nil")
	}

	return s.decryptor.ShallowCopy().DecryptNew(ct), nil
}

// Closed returns true if the secret key of the session was released.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decryptor == nil
}

// Close zeroizes the secret key and releases the decryptor. Encryption and
// evaluation remain possible, decryption does not. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	zeroize(s.secret)
	s.secret = nil
	s.decryptor = nil
}
