package learning

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

func TestPredictor_AllPairsNonNegative(t *testing.T) {
	now := day(2024, 6, 15)
	a := newArtifacts(t)
	_, err := NewTrainer(newSeededStore(t, now), a, zap.NewNop(), WithForestConfig(smallForest())).
		Train(context.Background())
	require.NoError(t, err)

	p := NewPredictor(a)
	for _, crop := range datastore.Crops {
		for _, district := range datastore.Districts {
			price, err := p.Predict(string(crop), district, day(2024, 9, 1))
			require.NoError(t, err, "%s/%s", crop, district)
			assert.GreaterOrEqual(t, price, 0.0)
			assert.False(t, math.IsNaN(price))
		}
	}
}

func TestPredictor_UnknownDistrictIsEncodingFailure(t *testing.T) {
	a := newArtifacts(t)
	saveTinyModel(t, a, day(2024, 6, 1), "gen-1")

	_, err := NewPredictor(a).Predict("Coconut", "Atlantis", day(2024, 7, 1))
	assert.True(t, errors.Is(err, ErrEncoding))
}

func TestPredictor_NotTrained(t *testing.T) {
	_, err := NewPredictor(newArtifacts(t)).Predict("Coconut", "Mysuru", day(2024, 7, 1))
	assert.True(t, errors.Is(err, ErrModelNotTrained))
}

func TestPredictor_ReloadsNewGeneration(t *testing.T) {
	a := newArtifacts(t)
	saveTinyModel(t, a, day(2024, 6, 1), "gen-1")
	p := NewPredictor(a)

	_, err := p.Predict("Coconut", "Mysuru", day(2024, 7, 1))
	require.NoError(t, err)
	assert.Equal(t, "gen-1", p.loaded.Metadata.Generation)

	saveTinyModel(t, a, day(2024, 6, 2), "gen-2")
	_, err = p.Predict("Coconut", "Mysuru", day(2024, 7, 1))
	require.NoError(t, err)
	assert.Equal(t, "gen-2", p.loaded.Metadata.Generation)
}

// withMockModel swaps the cached model for m while keeping the persisted
// generation, so the predictor does not reload from disk.
func withMockModel(t *testing.T, m Regressor) *Predictor {
	t.Helper()
	a := newArtifacts(t)
	saveTinyModel(t, a, day(2024, 6, 1), "gen-mock")
	p := NewPredictor(a)
	tm, err := a.Load()
	require.NoError(t, err)
	tm.Model = m
	p.loaded = tm
	return p
}

func TestPredictor_InferenceFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *MockRegressor)
	}{
		{"model error", func(m *MockRegressor) {
			m.On("Predict", mock.Anything).Return(0.0, errors.New("bad input"))
		}},
		{"model panics", func(m *MockRegressor) {
			m.On("Predict", mock.Anything).Run(func(mock.Arguments) { panic("index out of range") }).Return(0.0, nil)
		}},
		{"non-finite estimate", func(m *MockRegressor) {
			m.On("Predict", mock.Anything).Return(math.NaN(), nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockRegressor)
			tt.setup(m)
			p := withMockModel(t, m)

			_, err := p.Predict("Coconut", "Mysuru", day(2024, 7, 1))
			assert.True(t, errors.Is(err, ErrInference))
		})
	}
}

func TestPredictor_ClampsNegativeEstimates(t *testing.T) {
	m := new(MockRegressor)
	m.On("Predict", mock.Anything).Return(-120.5, nil)
	p := withMockModel(t, m)

	price, err := p.Predict("Coconut", "Mysuru", time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0.0, price)

	// The vector handed to the model follows the persisted column order.
	x := m.Calls[0].Arguments.Get(0).([]float64)
	assert.Equal(t, []float64{1, 1, 2024, 7, 1}, x)
}
