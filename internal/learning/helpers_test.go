package learning

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// MockRegressor is a mock for the Regressor interface.
type MockRegressor struct {
	mock.Mock
}

func (m *MockRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	args := m.Called(ctx, X, y)
	return args.Error(0)
}

func (m *MockRegressor) Predict(x []float64) (float64, error) {
	args := m.Called(x)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRegressor) Kind() string {
	args := m.Called()
	return args.String(0)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// smallForest keeps tests fast while exercising the same code paths.
func smallForest() ForestConfig {
	cfg := DefaultForestConfig()
	cfg.Trees = 8
	cfg.MaxDepth = 8
	return cfg
}

func newStore(t *testing.T, now time.Time) *datastore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "crop_price_data.csv")
	return datastore.NewStore(path, zap.NewNop(),
		datastore.WithClock(fixedClock(now)),
		datastore.WithRand(rand.New(rand.NewSource(7))))
}

func newSeededStore(t *testing.T, now time.Time) *datastore.Store {
	t.Helper()
	s := newStore(t, now)
	seeded, err := s.SeedIfMissing()
	require.NoError(t, err)
	require.True(t, seeded)
	return s
}

func newArtifacts(t *testing.T) *ArtifactStore {
	t.Helper()
	return NewArtifactStore(filepath.Join(t.TempDir(), "models"))
}

// saveTinyModel persists a fitted single-pair model trained at trainedAt.
func saveTinyModel(t *testing.T, a *ArtifactStore, trainedAt time.Time, generation string) *Schema {
	t.Helper()
	schema := BuildSchema([]string{"Coconut"}, []string{"Mysuru"})
	var X [][]float64
	var y []float64
	for m := 1; m <= 12; m++ {
		x, err := schema.encode("Coconut", "Mysuru", day(2023, time.Month(m), 1))
		require.NoError(t, err)
		X = append(X, x)
		y = append(y, 8000+float64(m)*10)
	}
	f := NewForest(smallForest())
	require.NoError(t, f.Fit(context.Background(), X, y))
	require.NoError(t, a.Save(f, schema, Metadata{
		TrainingDate: trainedAt.Format(TrainingDateLayout),
		ModelKind:    f.Kind(),
		FeatureCount: schema.Len(),
		Generation:   generation,
	}))
	return schema
}
