package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// DefaultHistoryWindowDays is used when a history query gives no window.
const DefaultHistoryWindowDays = 365

// DataStore is the part of the price table the service depends on.
type DataStore interface {
	Load() ([]datastore.PriceRecord, error)
	History(crop, district string, windowDays int) ([]datastore.PricePoint, error)
	LastUpdated() string
	IsStale() (bool, error)
	Refresh() (int, error)
}

// ModelTrainer runs one training pass.
type ModelTrainer interface {
	Train(ctx context.Context) (*TrainingReport, error)
}

// PriceCache memoizes predictions. Keys embed the model generation.
type PriceCache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, price float64) error
}

// Recorder receives operational measurements.
type Recorder interface {
	ObservePrediction(crop, outcome string)
	ObserveTraining(outcome string, took time.Duration, at time.Time)
	ObserveRefresh(appended int)
}

type nopRecorder struct{}

func (nopRecorder) ObservePrediction(string, string)                  {}
func (nopRecorder) ObserveTraining(string, time.Duration, time.Time) {}
func (nopRecorder) ObserveRefresh(int)                                {}

// Prediction outcomes reported to the Recorder.
const (
	PredictionOK       = "ok"
	PredictionCacheHit = "cache_hit"
	PredictionInvalid  = "invalid"
	PredictionError    = "error"
)

// Status summarises the model and data state.
type Status struct {
	Trained            bool      `json:"trained"`
	Metadata           *Metadata `json:"metadata,omitempty"`
	RetrainDue         bool      `json:"retrain_due"`
	TrainingInProgress bool      `json:"training_in_progress"`
	LastUpdated        string    `json:"last_updated"`
	DataStale          bool      `json:"data_stale"`
}

// Service is the single entry point used by the API, the CLI and the
// scheduler. All training goes through TrainModelIfNeeded, which guarantees
// that at most one fit runs at a time.
type Service struct {
	store     DataStore
	trainer   ModelTrainer
	artifacts *ArtifactStore
	policy    *Policy
	predictor *Predictor
	logger    *zap.Logger
	now       func() time.Time

	cache    PriceCache
	events   EventStream
	recorder Recorder

	historyWindow int

	flight   singleflight.Group
	trainMu  sync.Mutex
	training atomic.Bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables prediction caching.
func WithCache(c PriceCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithEvents publishes a TrainingEvent after every training attempt.
func WithEvents(e EventStream) ServiceOption {
	return func(s *Service) { s.events = e }
}

// WithRecorder wires operational metrics.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithServiceClock overrides the clock used by the retrain policy.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithHistoryWindow sets the default history window in days.
func WithHistoryWindow(days int) ServiceOption {
	return func(s *Service) { s.historyWindow = days }
}

// NewService wires the data store, trainer and artifact directory together.
func NewService(store DataStore, trainer ModelTrainer, artifacts *ArtifactStore, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		trainer:       trainer,
		artifacts:     artifacts,
		predictor:     NewPredictor(artifacts),
		logger:        logger,
		now:           time.Now,
		recorder:      nopRecorder{},
		historyWindow: DefaultHistoryWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy = NewPolicy(artifacts, s.now)
	return s
}

// ShouldRetrain exposes the retrain policy.
func (s *Service) ShouldRetrain() bool {
	return s.policy.ShouldRetrain()
}

// TrainModelIfNeeded trains when force is set or the policy says a retrain is
// due. It reports whether a training run completed. Concurrent callers with
// the same force flag share one run; forced and unforced runs serialize on a
// mutex, and an unforced caller re-checks the policy after waiting, so a
// model persisted meanwhile is not retrained; that case publishes a skipped
// event.
func (s *Service) TrainModelIfNeeded(ctx context.Context, force bool) (bool, error) {
	trigger := "auto"
	if force {
		trigger = "force"
	}
	ctx = context.WithoutCancel(ctx)

	if !force && !s.policy.ShouldRetrain() {
		return false, nil
	}

	v, err, _ := s.flight.Do(trigger, func() (interface{}, error) {
		s.trainMu.Lock()
		defer s.trainMu.Unlock()

		if !force && !s.policy.ShouldRetrain() {
			s.logger.Info("Retrain satisfied by a concurrent run, skipping", zap.String("trigger", trigger))
			s.publish(ctx, &TrainingEvent{Time: s.now(), Trigger: trigger, Outcome: OutcomeSkipped})
			return false, nil
		}
		return s.runTraining(ctx, trigger)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *Service) runTraining(ctx context.Context, trigger string) (bool, error) {
	s.training.Store(true)
	defer s.training.Store(false)

	s.logger.Info("Starting model training", zap.String("trigger", trigger))
	start := time.Now()
	report, err := s.trainer.Train(ctx)
	took := time.Since(start)

	ev := &TrainingEvent{Time: s.now(), Trigger: trigger}
	if err != nil {
		s.logger.Error("Model training failed", zap.String("trigger", trigger), zap.Error(err))
		s.recorder.ObserveTraining(OutcomeFailure, took, ev.Time)
		ev.Outcome = OutcomeFailure
		ev.Error = err.Error()
		s.publish(ctx, ev)
		return false, err
	}

	s.recorder.ObserveTraining(OutcomeSuccess, took, ev.Time)
	ev.Outcome = OutcomeSuccess
	ev.Generation = report.Metadata.Generation
	s.publish(ctx, ev)
	return true, nil
}

func (s *Service) publish(ctx context.Context, ev *TrainingEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish training event", zap.Error(err))
	}
}

func validateQuery(crop, district string) error {
	if !datastore.IsValidCrop(crop) {
		return fmt.Errorf("%w: crop %q", ErrUnknownCategory, crop)
	}
	if !datastore.IsValidDistrict(district) {
		return fmt.Errorf("%w: district %q", ErrUnknownCategory, district)
	}
	return nil
}

// PredictPrice returns the estimated price for crop in district on date. A
// due retrain runs first; if it fails the existing model is still used. If
// the model turns out to be missing, one forced retrain is attempted before
// predicting again, unless the first attempt already found no price data.
func (s *Service) PredictPrice(ctx context.Context, crop, district string, date time.Time) (float64, error) {
	if err := validateQuery(crop, district); err != nil {
		s.recorder.ObservePrediction(crop, PredictionInvalid)
		return 0, err
	}

	_, trainErr := s.TrainModelIfNeeded(ctx, false)
	if trainErr != nil {
		s.logger.Warn("Automatic retrain failed, predicting with the existing model", zap.Error(trainErr))
	}

	price, hit, err := s.predict(ctx, crop, district, date)
	if errors.Is(err, ErrModelNotTrained) && errors.Is(trainErr, ErrNoData) {
		// A forced run would fail the same way.
		s.recorder.ObservePrediction(crop, PredictionError)
		return 0, fmt.Errorf("%w: %w", err, trainErr)
	}
	if errors.Is(err, ErrModelNotTrained) {
		s.logger.Warn("Model unavailable, forcing a retrain", zap.Error(err))
		if _, terr := s.TrainModelIfNeeded(ctx, true); terr != nil {
			s.recorder.ObservePrediction(crop, PredictionError)
			return 0, fmt.Errorf("%w (retrain: %v)", err, terr)
		}
		price, hit, err = s.predict(ctx, crop, district, date)
	}

	switch {
	case errors.Is(err, ErrEncoding):
		s.recorder.ObservePrediction(crop, PredictionInvalid)
	case err != nil:
		s.recorder.ObservePrediction(crop, PredictionError)
	case hit:
		s.recorder.ObservePrediction(crop, PredictionCacheHit)
	default:
		s.recorder.ObservePrediction(crop, PredictionOK)
	}
	return price, err
}

// CacheKey names a cached prediction.
func CacheKey(generation, crop, district string, date time.Time) string {
	return fmt.Sprintf("price:%s:%s:%s:%s", generation, crop, district, date.Format(datastore.DateLayout))
}

func (s *Service) predict(ctx context.Context, crop, district string, date time.Time) (float64, bool, error) {
	if s.cache == nil {
		price, err := s.predictor.Predict(crop, district, date)
		return price, false, err
	}

	gen, err := s.predictor.Generation()
	if err != nil {
		return 0, false, err
	}
	key := CacheKey(gen, crop, district, date)
	if v, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Prediction cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return v, true, nil
	}

	price, err := s.predictor.Predict(crop, district, date)
	if err != nil {
		return 0, false, err
	}
	if err := s.cache.Set(ctx, key, price); err != nil {
		s.logger.Warn("Prediction cache write failed", zap.String("key", key), zap.Error(err))
	}
	return price, false, nil
}

// HistoricalData returns the crop/district price series over the last
// windowDays days; a non-positive window uses the configured default.
func (s *Service) HistoricalData(crop, district string, windowDays int) ([]datastore.PricePoint, error) {
	if err := validateQuery(crop, district); err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = s.historyWindow
	}
	return s.store.History(crop, district, windowDays)
}

// LastUpdatedDate returns the newest stored date as YYYY-MM-DD, or "N/A".
func (s *Service) LastUpdatedDate() string {
	return s.store.LastUpdated()
}

// UpdateDailyData refreshes the price table for today.
func (s *Service) UpdateDailyData(ctx context.Context) (int, error) {
	n, err := s.store.Refresh()
	if err != nil {
		return 0, err
	}
	s.recorder.ObserveRefresh(n)
	return n, nil
}

// RefreshAndRetrain refreshes the data and forces a retrain. Repeated calls
// on one day add no rows after the first.
func (s *Service) RefreshAndRetrain(ctx context.Context) error {
	if _, err := s.UpdateDailyData(ctx); err != nil {
		return fmt.Errorf("daily refresh: %w", err)
	}
	if _, err := s.TrainModelIfNeeded(ctx, true); err != nil {
		return err
	}
	return nil
}

// CheckStaleness runs RefreshAndRetrain when the newest stored date is
// before today. It reports whether it did.
func (s *Service) CheckStaleness(ctx context.Context) (bool, error) {
	stale, err := s.store.IsStale()
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	s.logger.Info("Price data is stale, refreshing and retraining")
	return true, s.RefreshAndRetrain(ctx)
}

// Status reports the model and data state.
func (s *Service) Status() Status {
	st := Status{
		Trained:            s.artifacts.ModelExists(),
		RetrainDue:         s.policy.ShouldRetrain(),
		TrainingInProgress: s.training.Load(),
		LastUpdated:        s.store.LastUpdated(),
	}
	if meta, err := s.artifacts.LoadMetadata(); err == nil {
		st.Metadata = &meta
	}
	if stale, err := s.store.IsStale(); err == nil {
		st.DataStale = stale
	}
	return st
}
