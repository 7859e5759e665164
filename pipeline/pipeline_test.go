package pipeline

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hcanalytics/riskhe/circuits/linear"
	"github.com/hcanalytics/riskhe/config"
	"github.com/hcanalytics/riskhe/core/herrors"
	"github.com/hcanalytics/riskhe/core/keys"
)

var scenarios = []struct {
	name     string
	features []float64
	want     float64
}{
	{"low", []float64{70, 20}, 0.1},
	{"medium", []float64{120, 28}, 0.5},
	{"high", []float64{140, 35}, 0.8},
}

func newTestSession(t *testing.T, cfg config.Config) (*keys.Manager, *keys.Session) {
	p, err := cfg.GenerateParameters()
	require.NoError(t, err)

	m, err := keys.NewManager(p, cfg.Model.FeatureCount(), nil)
	require.NoError(t, err)

	sess, err := m.GenerateKeys()
	require.NoError(t, err)
	return m, sess
}

func TestState(t *testing.T) {
	require.Equal(t, "ActivationApplied", ActivationApplied.String())
	require.Equal(t, "State(42)", State(42).String())
	require.True(t, Decrypted.Terminal())
	require.True(t, Aborted.Terminal())
	require.False(t, Init.Terminal())
}

func TestPipeline(t *testing.T) {

	cfg := config.Default()
	_, sess := newTestSession(t, cfg)

	for _, strategy := range []linear.Strategy{linear.EncryptedModel, linear.PlaintextModel} {

		cfg := cfg
		cfg.Strategy = strategy.String()

		for _, sc := range scenarios {
			t.Run(strategy.String()+"/"+sc.name, func(t *testing.T) {

				p := New(sess, cfg, nil)
				require.Equal(t, Init, p.State())

				require.NoError(t, p.Start())
				require.Equal(t, KeysGenerated, p.State())

				require.NoError(t, p.EncryptFeatures(sc.features))
				require.Equal(t, FeaturesEncrypted, p.State())
				require.Equal(t, 2, p.Ciphertext().Level())

				require.NoError(t, p.EvaluateLinear())
				require.Equal(t, LinearEvaluated, p.State())
				require.Equal(t, 1, p.Ciphertext().Level())

				require.NoError(t, p.ApplyActivation())
				require.Equal(t, ActivationApplied, p.State())
				require.Equal(t, 0, p.Ciphertext().Level())

				score, err := p.Decrypt()
				require.NoError(t, err)
				require.Equal(t, Decrypted, p.State())
				require.InDelta(t, sc.want, score, 0.01)

				have, err := p.Score()
				require.NoError(t, err)
				require.Equal(t, score, have)
			})
		}
	}

	t.Run("Run", func(t *testing.T) {
		score, err := New(sess, cfg, nil).Run([]float64{140, 35})
		require.NoError(t, err)
		require.InDelta(t, 0.8, score, 0.01)
	})

	t.Run("DecryptLinear", func(t *testing.T) {
		p := New(sess, cfg, nil)
		require.NoError(t, p.Start())
		require.NoError(t, p.EncryptFeatures([]float64{70, 20}))
		require.NoError(t, p.EvaluateLinear())
		score, err := p.DecryptLinear()
		require.NoError(t, err)
		require.InDelta(t, -3.2, score, 1e-4)
		require.Equal(t, Decrypted, p.State())
	})

	t.Run("OutOfOrder", func(t *testing.T) {
		p := New(sess, cfg, nil)

		_, err := p.Score()
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))

		err = p.EvaluateLinear()
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))
		require.Equal(t, Aborted, p.State())
		require.Nil(t, p.Ciphertext())

		err = p.Start()
		require.True(t, errors.Is(err, ErrPipelineAborted))
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))
		require.Error(t, p.Err())
	})

	t.Run("Decrypted/Terminal", func(t *testing.T) {
		p := New(sess, cfg, nil)
		_, err := p.Run([]float64{70, 20})
		require.NoError(t, err)
		err = p.EncryptFeatures([]float64{70, 20})
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))
	})

	t.Run("Dimension", func(t *testing.T) {
		p := New(sess, cfg, nil)
		require.NoError(t, p.Start())
		err := p.EncryptFeatures([]float64{70, 20, 1})
		require.True(t, errors.Is(err, herrors.ErrDimension))
		require.Equal(t, Aborted, p.State())

		_, err = p.Run([]float64{70, 20})
		require.True(t, errors.Is(err, ErrPipelineAborted))
	})

	t.Run("OutOfDomain", func(t *testing.T) {
		_, err := New(sess, cfg, nil).Run([]float64{300, 60})
		require.True(t, errors.Is(err, herrors.ErrDecryptionFailure))

		unchecked := cfg
		unchecked.DecryptionMargin = -1
		score, err := New(sess, unchecked, nil).Run([]float64{300, 60})
		require.NoError(t, err)
		require.InDelta(t, cfg.Activation.Eval(0.01685*300+0.2947*60-10.2735), score, 1e-3)
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		scores := make([]float64, 3*len(scenarios))
		errs := make([]error, len(scores))
		for i := range scores {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				scores[i], errs[i] = New(sess, cfg, nil).Run(scenarios[i%len(scenarios)].features)
			}(i)
		}
		wg.Wait()
		for i := range scores {
			require.NoError(t, errs[i])
			require.InDelta(t, scenarios[i%len(scenarios)].want, scores[i], 0.01)
		}
	})
}

func TestPipelineSession(t *testing.T) {

	cfg := config.Default()

	t.Run("Nil", func(t *testing.T) {
		p := New(nil, cfg, nil)
		err := p.Start()
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))
		require.Equal(t, Aborted, p.State())
	})

	t.Run("Closed", func(t *testing.T) {
		m, sess := newTestSession(t, cfg)
		m.Close()
		err := New(sess, cfg, nil).Start()
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))
	})

	t.Run("Replaced", func(t *testing.T) {
		m, sess := newTestSession(t, cfg)

		p := New(sess, cfg, nil)
		require.NoError(t, p.Start())
		require.NoError(t, p.EncryptFeatures([]float64{70, 20}))
		require.NoError(t, p.EvaluateLinear())
		require.NoError(t, p.ApplyActivation())

		_, err := m.GenerateKeys()
		require.NoError(t, err)

		_, err = p.Decrypt()
		require.True(t, errors.Is(err, herrors.ErrNotInitialized))
		require.Equal(t, Aborted, p.State())
	})
}

func TestPipelineLogging(t *testing.T) {

	cfg := config.Default()
	_, sess := newTestSession(t, cfg)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := New(sess, cfg, logger)
	_, err := p.Run([]float64{120, 28})
	require.NoError(t, err)

	logs := buf.String()
	require.Contains(t, logs, `"request":"`+p.ID()+`"`)
	require.Contains(t, logs, `"session":"`+sess.ShortFingerprint()+`"`)
	require.Contains(t, logs, `"to":"Decrypted"`)
	require.Equal(t, 5, bytes.Count(buf.Bytes(), []byte(`"msg":"transition"`)))
}
