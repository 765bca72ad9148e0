package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/learning"
)

// RelayTrainingFailures forwards failed training runs from stream to n until
// ctx is done.
func RelayTrainingFailures(ctx context.Context, stream learning.EventStream, n Notifier, logger *zap.Logger) error {
	events, err := stream.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to training events: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Outcome != learning.OutcomeFailure {
				continue
			}
			msg := fmt.Sprintf("%s training (%s) failed: %s",
				ev.Time.Format("2006-01-02 15:04:05"), ev.Trigger, ev.Error)
			if err := n.Send(msg); err != nil {
				logger.Warn("Failed to queue training alert", zap.Error(err))
			}
		}
	}
}
