// Package predictor is the entry point of the scoring service: it generates the parameters
// and the keys of a session once, and scores feature vectors on per-request pipelines.
package predictor

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/hcanalytics/riskhe/config"
	"github.com/hcanalytics/riskhe/core/keys"
	"github.com/hcanalytics/riskhe/core/params"
	"github.com/hcanalytics/riskhe/pipeline"
)

// Predictor scores feature vectors with the model and activation of its configuration.
// It is safe for concurrent use.
type Predictor struct {
	cfg     config.Config
	params  params.Parameters
	manager *keys.Manager
	logger  *slog.Logger
}

// NewPredictor validates the configuration, generates the parameters and the keys of a
// new session. A nil logger discards all records.
func NewPredictor(cfg config.Config, logger *slog.Logger) (*Predictor, error) {

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cannot NewPredictor: %w", err)
	}

	p, err := cfg.GenerateParameters()
	if err != nil {
		return nil, fmt.Errorf("cannot NewPredictor: %w", err)
	}

	manager, err := keys.NewManager(p, cfg.Model.FeatureCount(), logger)
	if err != nil {
		return nil, fmt.Errorf("cannot NewPredictor: %w", err)
	}

	if _, err = manager.GenerateKeys(); err != nil {
		return nil, fmt.Errorf("cannot NewPredictor: %w", err)
	}

	maxErr, at := cfg.Activation.MaxError(1024)
	logger.Info("predictor ready",
		"params", p.String(),
		"strategy", cfg.LinearStrategy().String(),
		"features", cfg.Model.FeatureCount(),
		"activation_max_error", maxErr,
		"activation_max_error_at", at)

	return &Predictor{
		cfg:     cfg,
		params:  p,
		manager: manager,
		logger:  logger,
	}, nil
}

// Config returns the configuration of the predictor.
func (p *Predictor) Config() config.Config {
	return p.cfg
}

// Parameters returns the encryption parameters of the predictor.
func (p *Predictor) Parameters() params.Parameters {
	return p.params
}

// Session returns the current key session.
func (p *Predictor) Session() (*keys.Session, error) {
	return p.manager.Session()
}

// NewPipeline returns a new pipeline bound to the current session, in the Init state.
func (p *Predictor) NewPipeline() (*pipeline.Pipeline, error) {
	sess, err := p.manager.Session()
	if err != nil {
		return nil, fmt.Errorf("cannot NewPipeline: %w", err)
	}
	return pipeline.New(sess, p.cfg, p.logger), nil
}

// Predict returns the activated risk score of the features.
func (p *Predictor) Predict(features ...float64) (float64, error) {

	pl, err := p.NewPipeline()
	if err != nil {
		return 0, fmt.Errorf("cannot Predict: %w", err)
	}

	score, err := pl.Run(features)
	if err != nil {
		return 0, fmt.Errorf("cannot Predict: %w", err)
	}

	p.logger.Info("prediction", "request", pl.ID(), "score", score)

	return score, nil
}

// PredictNamed returns the activated risk score of features given by name.
func (p *Predictor) PredictNamed(named map[string]float64) (float64, error) {
	features, err := p.cfg.Model.Vector(named)
	if err != nil {
		return 0, fmt.Errorf("cannot PredictNamed: %w", err)
	}
	return p.Predict(features...)
}

// PredictLinear returns the linear risk score of the features, before the activation.
func (p *Predictor) PredictLinear(features ...float64) (float64, error) {

	pl, err := p.NewPipeline()
	if err != nil {
		return 0, fmt.Errorf("cannot PredictLinear: %w", err)
	}

	if err = pl.Start(); err != nil {
		return 0, fmt.Errorf("cannot PredictLinear: %w", err)
	}

	if err = pl.EncryptFeatures(features); err != nil {
		return 0, fmt.Errorf("cannot PredictLinear: %w", err)
	}

	if err = pl.EvaluateLinear(); err != nil {
		return 0, fmt.Errorf("cannot PredictLinear: %w", err)
	}

	score, err := pl.DecryptLinear()
	if err != nil {
		return 0, fmt.Errorf("cannot PredictLinear: %w", err)
	}

	if !p.cfg.Activation.InDomain(score) {
		p.logger.Warn("linear score outside of the activation domain",
			"request", pl.ID(),
			"score", score,
			"domain_min", p.cfg.Activation.DomainMin,
			"domain_max", p.cfg.Activation.DomainMax)
	}

	return score, nil
}

// RotateKeys generates a fresh session. Pipelines started on the previous session
// can no longer decrypt.
func (p *Predictor) RotateKeys() error {
	if _, err := p.manager.GenerateKeys(); err != nil {
		return fmt.Errorf("cannot RotateKeys: %w", err)
	}
	return nil
}

// Close zeroizes the secret key of the current session.
func (p *Predictor) Close() {
	p.manager.Close()
}

// BatchResult holds the outcome of [Predictor.PredictBatch]. Scores[i] is only
// meaningful if Errors[i] is nil.
type BatchResult struct {
	Scores  []float64
	Errors  []error
	Elapsed []time.Duration
	Wall    time.Duration
}

// Failed returns the number of failed requests.
func (r BatchResult) Failed() (n int) {
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return
}

// PredictBatch scores every feature vector of batch on its own pipeline, spreading the
// requests over the given number of workers. A non-positive number of workers uses
// runtime.NumCPU(). Failed requests do not stop the batch.
func (p *Predictor) PredictBatch(batch [][]float64, workers int) BatchResult {

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	res := BatchResult{
		Scores:  make([]float64, len(batch)),
		Errors:  make([]error, len(batch)),
		Elapsed: make([]time.Duration, len(batch)),
	}

	tasks := make(chan int)
	wg := &sync.WaitGroup{}
	wg.Add(workers)

	start := time.Now()

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				res.Elapsed[i] = runTimed(func() {
					res.Scores[i], res.Errors[i] = p.Predict(batch[i]...)
				})
			}
		}()
	}

	for i := range batch {
		tasks <- i
	}
	close(tasks)

	wg.Wait()

	res.Wall = time.Since(start)

	if stats, err := SummarizeLatency(res.Elapsed); err == nil {
		p.logger.Info("batch scored",
			"requests", len(batch),
			"failed", res.Failed(),
			"workers", workers,
			"wall", res.Wall,
			"latency", stats.String())
	}

	return res
}

func runTimed(f func()) time.Duration {
	start := time.Now()
	f()
	return time.Since(start)
}
