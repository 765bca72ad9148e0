package learning

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Predictor serves price estimates from the persisted model. The loaded model
// is cached and reloaded whenever a new generation is persisted.
type Predictor struct {
	artifacts *ArtifactStore

	mu     sync.Mutex
	loaded *TrainedModel
}

// NewPredictor returns a Predictor over artifacts.
func NewPredictor(artifacts *ArtifactStore) *Predictor {
	return &Predictor{artifacts: artifacts}
}

// Generation returns the generation id of the currently persisted model.
func (p *Predictor) Generation() (string, error) {
	meta, err := p.artifacts.LoadMetadata()
	if err != nil {
		return "", err
	}
	return meta.Generation, nil
}

func (p *Predictor) current() (*TrainedModel, error) {
	meta, err := p.artifacts.LoadMetadata()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded != nil && p.loaded.Metadata.Generation == meta.Generation {
		return p.loaded, nil
	}
	tm, err := p.artifacts.Load()
	if err != nil {
		return nil, err
	}
	p.loaded = tm
	return tm, nil
}

// Predict encodes the query against the model's persisted columns and returns
// a non-negative price estimate.
func (p *Predictor) Predict(crop, district string, date time.Time) (float64, error) {
	tm, err := p.current()
	if err != nil {
		return 0, err
	}

	vec, err := tm.Schema.Encode(crop, district, date)
	if err != nil {
		return 0, err
	}
	x, err := tm.Schema.Reindex(vec)
	if err != nil {
		return 0, err
	}

	v, err := infer(tm.Model, x)
	if err != nil {
		return 0, err
	}
	return math.Max(0, v), nil
}

func infer(model Regressor, x []float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInference, r)
		}
	}()
	v, err = model.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite estimate %v", ErrInference, v)
	}
	return v, nil
}
