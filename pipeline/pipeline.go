// Package pipeline implements the per-request scoring state machine:
//
//	Init -> KeysGenerated -> FeaturesEncrypted -> LinearEvaluated -> ActivationApplied -> Decrypted
//
// Any failure moves the pipeline to Aborted, after which every operation fails with
// [ErrPipelineAborted]. A failed request is retried on a fresh pipeline.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/hcanalytics/riskhe/circuits/activation"
	"github.com/hcanalytics/riskhe/circuits/linear"
	"github.com/hcanalytics/riskhe/config"
	"github.com/hcanalytics/riskhe/core/heval"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/keys"
	"github.com/hcanalytics/riskhe/decoding"
	"github.com/hcanalytics/riskhe/encoding"
)

// ErrPipelineAborted is returned by every operation of a pipeline that previously failed.
var ErrPipelineAborted = errors.New("pipeline aborted")

// Pipeline carries one scoring request through the circuit. It is not safe for
// concurrent use, but any number of pipelines can share a [keys.Session].
type Pipeline struct {
	id     uuid.UUID
	cfg    config.Config
	sess   *keys.Session
	logger *slog.Logger

	state State
	cause error

	encoder    *encoding.Encoder
	eval       *heval.Evaluator
	linear     *linear.Evaluator
	activation *activation.Evaluator
	decoder    *decoding.Decoder

	ct    *rlwe.Ciphertext
	score float64
}

// New returns a new [Pipeline] in the Init state with a fresh request ID.
// A nil logger discards all records.
func New(sess *keys.Session, cfg config.Config, logger *slog.Logger) *Pipeline {

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	id := uuid.New()

	attrs := []any{"request", id.String()}
	if sess != nil {
		attrs = append(attrs, "session", sess.ShortFingerprint())
	}

	return &Pipeline{
		id:     id,
		cfg:    cfg,
		sess:   sess,
		logger: logger.With(attrs...),
		state:  Init,
	}
}

// ID returns the request ID of the pipeline.
func (p *Pipeline) ID() string {
	return p.id.String()
}

// State returns the current state of the pipeline.
func (p *Pipeline) State() State {
	return p.state
}

// Err returns the error that aborted the pipeline, or nil.
func (p *Pipeline) Err() error {
	return p.cause
}

// Ciphertext returns the ciphertext produced by the last operation, or nil before
// the features are encrypted.
func (p *Pipeline) Ciphertext() *rlwe.Ciphertext {
	return p.ct
}

// Score returns the decrypted score. It fails with [herrors.ErrNotInitialized]
// unless the pipeline reached Decrypted.
func (p *Pipeline) Score() (float64, error) {
	if p.state != Decrypted {
		return 0, fmt.Errorf("cannot Score: %w: pipeline is in state %s", herrors.ErrNotInitialized, p.state)
	}
	return p.score, nil
}

// Start binds the pipeline to the key material of its session: Init -> KeysGenerated.
func (p *Pipeline) Start() (err error) {

	if err = p.enter("Start", Init); err != nil {
		return
	}

	if p.sess == nil || p.sess.Closed() {
		return p.abort("Start", fmt.Errorf("%w: no live session", herrors.ErrNotInitialized))
	}

	strategy, err := linear.ParseStrategy(p.cfg.Strategy)
	if err != nil {
		return p.abort("Start", err)
	}

	if p.eval, err = heval.NewEvaluator(p.sess, p.cfg.ScaleTolerance); err != nil {
		return p.abort("Start", err)
	}

	if p.linear, err = linear.NewEvaluator(p.eval, p.cfg.Model.FeatureCount(), strategy); err != nil {
		return p.abort("Start", err)
	}

	if p.activation, err = activation.NewEvaluator(p.eval, p.cfg.Activation, strategy); err != nil {
		return p.abort("Start", err)
	}

	if p.decoder, err = decoding.NewDecoder(p.sess); err != nil {
		return p.abort("Start", err)
	}

	p.encoder = encoding.NewEncoder(p.sess.Parameters(), p.eval.Encoder())

	p.transition(KeysGenerated, "strategy", strategy.String())

	return nil
}

// EncryptFeatures encodes and encrypts the feature vector: KeysGenerated -> FeaturesEncrypted.
func (p *Pipeline) EncryptFeatures(features []float64) (err error) {

	if err = p.enter("EncryptFeatures", KeysGenerated); err != nil {
		return
	}

	if n := p.cfg.Model.FeatureCount(); len(features) != n {
		return p.abort("EncryptFeatures", fmt.Errorf("%w: %d features for a model of %d", herrors.ErrDimension, len(features), n))
	}

	params := p.eval.Parameters()

	v, err := p.encoder.Encode(features, params.NominalScale())
	if err != nil {
		return p.abort("EncryptFeatures", err)
	}

	if p.ct, err = p.eval.Encrypt(v.Plaintext); err != nil {
		return p.abort("EncryptFeatures", err)
	}

	p.transition(FeaturesEncrypted)

	return nil
}

// EvaluateLinear computes the encrypted linear score: FeaturesEncrypted -> LinearEvaluated.
func (p *Pipeline) EvaluateLinear() (err error) {

	if err = p.enter("EvaluateLinear", FeaturesEncrypted); err != nil {
		return
	}

	ct, err := p.linear.DotProductPlusBias(p.ct, p.cfg.Model.Weights, p.cfg.Model.Bias)
	if err != nil {
		return p.abort("EvaluateLinear", err)
	}

	p.ct = ct
	p.transition(LinearEvaluated)

	return nil
}

// ApplyActivation applies the activation on the linear score: LinearEvaluated -> ActivationApplied.
func (p *Pipeline) ApplyActivation() (err error) {

	if err = p.enter("ApplyActivation", LinearEvaluated); err != nil {
		return
	}

	ct, err := p.activation.Apply(p.ct)
	if err != nil {
		return p.abort("ApplyActivation", err)
	}

	p.ct = ct
	p.transition(ActivationApplied)

	return nil
}

// Decrypt decrypts the activated score: ActivationApplied -> Decrypted.
// Unless the configured margin is negative, a score outside of the image of the activation
// domain, widened by the margin, fails with [herrors.ErrDecryptionFailure].
func (p *Pipeline) Decrypt() (score float64, err error) {

	if err = p.enter("Decrypt", ActivationApplied); err != nil {
		return
	}

	decoder := p.decoder
	if p.cfg.DecryptionMargin >= 0 {
		lo, hi := p.cfg.Activation.Image()
		decoder = decoder.WithBounds(lo, hi, p.cfg.DecryptionMargin)
	}

	if score, err = decoder.Decrypt(p.ct); err != nil {
		return 0, p.abort("Decrypt", err)
	}

	p.score = score
	p.transition(Decrypted)

	return score, nil
}

// DecryptLinear decrypts the linear score, skipping the activation: LinearEvaluated -> Decrypted.
func (p *Pipeline) DecryptLinear() (score float64, err error) {

	if err = p.enter("DecryptLinear", LinearEvaluated); err != nil {
		return
	}

	if score, err = p.decoder.Decrypt(p.ct); err != nil {
		return 0, p.abort("DecryptLinear", err)
	}

	p.score = score
	p.transition(Decrypted)

	return score, nil
}

// Run carries the features through every state and returns the decrypted score.
func (p *Pipeline) Run(features []float64) (float64, error) {

	if p.state == Init {
		if err := p.Start(); err != nil {
			return 0, err
		}
	}

	if err := p.EncryptFeatures(features); err != nil {
		return 0, err
	}

	if err := p.EvaluateLinear(); err != nil {
		return 0, err
	}

	if err := p.ApplyActivation(); err != nil {
		return 0, err
	}

	return p.Decrypt()
}

// enter checks that the pipeline is in the state expected by op.
func (p *Pipeline) enter(op string, want State) error {

	if p.state == Aborted {
		return fmt.Errorf("cannot %s: %w: request %s: %w", op, ErrPipelineAborted, p.ID(), p.cause)
	}

	if p.state != want {
		return p.abort(op, fmt.Errorf("%w: pipeline is in state %s but %s requires %s", herrors.ErrNotInitialized, p.state, op, want))
	}

	return nil
}

func (p *Pipeline) abort(op string, err error) error {
	err = fmt.Errorf("cannot %s: %w", op, err)
	p.logger.Warn("pipeline aborted", "state", p.state.String(), "err", err)
	p.cause = err
	p.state = Aborted
	p.ct = nil
	return err
}

func (p *Pipeline) transition(to State, attrs ...any) {
	if p.ct != nil {
		attrs = append(attrs, "level", p.ct.Level(), "scale", heval.Log2(p.ct.Scale))
	}
	p.logger.Debug("transition", append([]any{"from", p.state.String(), "to", to.String()}, attrs...)...)
	p.state = to
}
