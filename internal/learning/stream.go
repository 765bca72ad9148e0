package learning

import (
	"context"
	"sync"
	"time"
)

// Training outcomes reported in events and metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// TrainingEvent is published after every training attempt.
type TrainingEvent struct {
	Time       time.Time `json:"time"`
	Trigger    string    `json:"trigger"`
	Outcome    string    `json:"outcome"`
	Generation string    `json:"generation,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// EventStream fans training events out to subscribers.
type EventStream interface {
	// Publish delivers ev to every current subscriber.
	Publish(ctx context.Context, ev *TrainingEvent) error
	// Subscribe returns a channel of events that is closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan *TrainingEvent, error)
}

// InMemoryEventStream is a goroutine-safe in-process EventStream.
type InMemoryEventStream struct {
	mu      sync.RWMutex
	subs    map[chan *TrainingEvent]struct{}
	bufSize int
}

// NewInMemoryEventStream creates a stream whose subscriber channels buffer
// bufferSize events.
func NewInMemoryEventStream(bufferSize int) *InMemoryEventStream {
	return &InMemoryEventStream{
		subs:    make(map[chan *TrainingEvent]struct{}),
		bufSize: bufferSize,
	}
}

// Publish never blocks on a slow subscriber; a full buffer drops the event
// for that subscriber only.
func (s *InMemoryEventStream) Publish(ctx context.Context, ev *TrainingEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.subs {
		select {
		case sub <- ev:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is cancelled.
func (s *InMemoryEventStream) Subscribe(ctx context.Context) (<-chan *TrainingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *TrainingEvent, s.bufSize)
	s.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, ch)
		close(ch)
	}()

	return ch, nil
}
