package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// RecordSource supplies the full price table for training.
type RecordSource interface {
	Load() ([]datastore.PriceRecord, error)
}

// TrainingReport describes a completed training run.
type TrainingReport struct {
	Metadata Metadata
	Columns  []string
	Rows     int
	Dropped  int
	Train    Score
	Test     Score
	Duration time.Duration
}

// Trainer fits a regressor on the whole price table and persists it.
type Trainer struct {
	source    RecordSource
	artifacts *ArtifactStore
	logger    *zap.Logger
	now       func() time.Time
	newModel  func() Regressor
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithTrainerClock overrides the clock stamped into training metadata.
func WithTrainerClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

// WithForestConfig replaces the forest hyperparameters.
func WithForestConfig(cfg ForestConfig) TrainerOption {
	return func(t *Trainer) {
		t.newModel = func() Regressor { return NewForest(cfg) }
	}
}

// WithModelFactory supplies the regressor constructor.
func WithModelFactory(f func() Regressor) TrainerOption {
	return func(t *Trainer) { t.newModel = f }
}

// NewTrainer creates a Trainer reading from source and writing to artifacts.
func NewTrainer(source RecordSource, artifacts *ArtifactStore, logger *zap.Logger, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		source:    source,
		artifacts: artifacts,
		logger:    logger,
		now:       time.Now,
		newModel:  func() Regressor { return NewForest(DefaultForestConfig()) },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train runs one full training pass. Any failure aborts the run before
// anything is persisted and is reported as ErrTraining, wrapping the cause.
func (t *Trainer) Train(ctx context.Context) (*TrainingReport, error) {
	start := time.Now()

	records, err := t.source.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	t.logger.Info("Loaded price records for training", zap.Int("records", len(records)))

	ds, err := BuildDataset(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	if ds.Dropped > 0 {
		t.logger.Warn("Dropped unusable rows", zap.Int("dropped", ds.Dropped))
	}

	trainIdx, testIdx := Split(len(ds.Y))
	Xtr, ytr := gather(ds, trainIdx)
	Xte, yte := gather(ds, testIdx)

	model := t.newModel()
	t.logger.Info("Fitting model",
		zap.String("kind", model.Kind()),
		zap.Int("features", ds.Schema.Len()),
		zap.Int("train_rows", len(ytr)),
		zap.Int("test_rows", len(yte)))
	if err := model.Fit(ctx, Xtr, ytr); err != nil {
		return nil, fmt.Errorf("%w: fit: %w", ErrTraining, err)
	}

	trainScore, err := Evaluate(model, Xtr, ytr)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate: %w", ErrTraining, err)
	}
	testScore, err := Evaluate(model, Xte, yte)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate: %w", ErrTraining, err)
	}
	t.logger.Info("Model performance",
		zap.Float64("train_mae", trainScore.MAE),
		zap.Float64("train_r2", trainScore.R2),
		zap.Float64("test_mae", testScore.MAE),
		zap.Float64("test_r2", testScore.R2))

	meta := Metadata{
		TrainingDate: t.now().Format(TrainingDateLayout),
		ModelKind:    model.Kind(),
		FeatureCount: ds.Schema.Len(),
		Generation:   uuid.NewString(),
	}
	if err := t.artifacts.Save(model, ds.Schema, meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	report := &TrainingReport{
		Metadata: meta,
		Columns:  ds.Schema.Columns(),
		Rows:     len(ds.Y),
		Dropped:  ds.Dropped,
		Train:    trainScore,
		Test:     testScore,
		Duration: time.Since(start),
	}
	t.logger.Info("Model trained and saved",
		zap.String("generation", meta.Generation),
		zap.String("dir", t.artifacts.Dir()),
		zap.Duration("took", report.Duration))
	return report, nil
}
