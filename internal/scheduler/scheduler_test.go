package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockJobs is a mock for the Jobs interface.
type MockJobs struct {
	mock.Mock
}

func (m *MockJobs) RefreshAndRetrain(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockJobs) CheckStaleness(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func at(h, m int) time.Time {
	return time.Date(2024, 6, 15, h, m, 0, 0, time.UTC)
}

func TestScheduler_DailyJobFiresOncePerDay(t *testing.T) {
	clock := &fakeClock{t: at(1, 0)}
	jobs := new(MockJobs)
	s := New(jobs, Config{DailyHour: 2, CheckInterval: time.Hour}, zap.NewNop(), clock.Now)

	daily, _ := s.NextRuns()
	assert.Equal(t, at(2, 0), daily)

	jobs.On("RefreshAndRetrain", mock.Anything).Return(nil).Once()

	clock.Set(at(1, 59))
	s.tick(context.Background())
	clock.Set(at(2, 0))
	s.tick(context.Background())
	clock.Set(at(2, 1))
	s.tick(context.Background())

	jobs.AssertNumberOfCalls(t, "RefreshAndRetrain", 1)
	jobs.AssertNotCalled(t, "CheckStaleness", mock.Anything)

	daily, check := s.NextRuns()
	assert.Equal(t, at(2, 0).AddDate(0, 0, 1), daily)
	assert.Equal(t, at(3, 0), check)
}

func TestScheduler_StartAfterDailyTimeWaitsForTomorrow(t *testing.T) {
	clock := &fakeClock{t: at(9, 0)}
	s := New(new(MockJobs), Config{DailyHour: 2}, zap.NewNop(), clock.Now)

	daily, check := s.NextRuns()
	assert.Equal(t, time.Date(2024, 6, 16, 2, 0, 0, 0, time.UTC), daily)
	assert.Equal(t, at(10, 0), check)
}

func TestScheduler_HourlyStalenessCheck(t *testing.T) {
	clock := &fakeClock{t: at(9, 0)}
	jobs := new(MockJobs)
	s := New(jobs, Config{DailyHour: 2, CheckInterval: time.Hour}, zap.NewNop(), clock.Now)

	jobs.On("CheckStaleness", mock.Anything).Return(true, nil).Once()
	jobs.On("CheckStaleness", mock.Anything).Return(false, errors.New("no data")).Once()

	clock.Set(at(9, 30))
	s.tick(context.Background())
	jobs.AssertNotCalled(t, "CheckStaleness", mock.Anything)

	clock.Set(at(10, 0))
	s.tick(context.Background())
	clock.Set(at(10, 30))
	s.tick(context.Background())
	clock.Set(at(11, 0))
	s.tick(context.Background())

	jobs.AssertNumberOfCalls(t, "CheckStaleness", 2)
	jobs.AssertExpectations(t)
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	clock := &fakeClock{t: at(1, 59)}
	jobs := new(MockJobs)
	s := New(jobs, Config{DailyHour: 2, PollInterval: 10 * time.Millisecond}, zap.NewNop(), clock.Now)

	done := make(chan struct{})
	jobs.On("RefreshAndRetrain", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		close(done)
	}).Once()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Start(ctx)
	}()

	clock.Set(at(2, 0))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daily job did not run")
	}
	cancel()
	wg.Wait()

	jobs.AssertExpectations(t)
}
