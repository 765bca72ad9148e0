package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/config"
)

// discordSession is the part of *discordgo.Session the notifier uses.
type discordSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// DiscordNotifier collects messages and sends them as one direct message
// per buffer interval.
type DiscordNotifier struct {
	session        discordSession
	userID         string
	logger         *zap.Logger
	bufferInterval time.Duration

	mu        sync.Mutex
	buffer    []string
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewDiscordNotifier creates a notifier that direct-messages cfg.UserID.
func NewDiscordNotifier(cfg config.DiscordConfig, logger *zap.Logger) (*DiscordNotifier, error) {
	if cfg.BotToken == "" || cfg.UserID == "" {
		return nil, errors.New("discord bot token and user ID must be configured")
	}
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	interval := time.Duration(cfg.BufferIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Minute
	}
	return newDiscordNotifier(session, cfg.UserID, interval, logger), nil
}

func newDiscordNotifier(session discordSession, userID string, interval time.Duration, logger *zap.Logger) *DiscordNotifier {
	n := &DiscordNotifier{
		session:        session,
		userID:         userID,
		logger:         logger,
		bufferInterval: interval,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go n.run()
	return n
}

// Send queues message for the next report.
func (n *DiscordNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffer = append(n.buffer, message)
	return nil
}

func (n *DiscordNotifier) run() {
	defer close(n.done)
	ticker := time.NewTicker(n.bufferInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.flush()
		case <-n.stop:
			n.flush()
			return
		}
	}
}

func (n *DiscordNotifier) flush() {
	n.mu.Lock()
	messages := n.buffer
	n.buffer = nil
	n.mu.Unlock()
	if len(messages) == 0 {
		return
	}

	content := fmt.Sprintf("--- **Error Report (%d)** ---\n%s", len(messages), strings.Join(messages, "\n"))
	channel, err := n.session.UserChannelCreate(n.userID)
	if err != nil {
		n.logger.Error("Failed to open Discord DM channel", zap.Error(err))
		return
	}
	if _, err := n.session.ChannelMessageSend(channel.ID, content); err != nil {
		n.logger.Error("Failed to send Discord alert", zap.Error(err), zap.Int("messages", len(messages)))
	}
}

// Close sends whatever is buffered and closes the session.
func (n *DiscordNotifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.stop)
		<-n.done
		err = n.session.Close()
	})
	return err
}
