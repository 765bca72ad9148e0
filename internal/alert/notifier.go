// Package alert sends operator notifications about failed training runs.
package alert

import (
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/config"
)

// Notifier delivers alert messages. Implementations may batch; Close sends
// anything still pending.
type Notifier interface {
	Send(message string) error
	Close() error
}

// New returns the notifier selected by cfg: Discord when enabled, otherwise
// a NoOpNotifier.
func New(cfg config.AlertConfig, logger *zap.Logger) (Notifier, error) {
	if !cfg.Discord.Enabled {
		return NewNoOpNotifier(), nil
	}
	d, err := NewDiscordNotifier(cfg.Discord, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NoOpNotifier discards every message.
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (n *NoOpNotifier) Send(string) error { return nil }

func (n *NoOpNotifier) Close() error { return nil }
