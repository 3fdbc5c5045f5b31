// Package notifier renders triggered alerts and delivers them over email,
// Slack, Microsoft Teams and WhatsApp.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/metrics"
	"github.com/good-yellow-bee/datamantri/internal/models"
)

// Sender delivers a rendered message over one channel. Send makes a single
// best-effort attempt and reports the outcome instead of returning an error.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, recipients []string, msg *Message) models.ChannelResult
}

// ErrRateLimited is reported on every channel when a notification is dropped
// due to rate limiting.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// Service routes a triggered alert to its configured channels.
type Service struct {
	mu          sync.RWMutex
	senders     map[models.Channel]Sender
	rateLimiter *RateLimiter
	render      func(*models.Alert, *models.AlertPayload, time.Time) (*Message, error)
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRateLimit enables the sliding-window notification limiter.
func WithRateLimit(config RateLimitConfig) Option {
	return func(s *Service) { s.rateLimiter = NewRateLimiter(config) }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a notification service with the given senders.
func NewService(logger *zap.Logger, senders []Sender, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		senders: make(map[models.Channel]Sender),
		render:  BuildMessage,
		now:     time.Now,
		logger:  logger.Named("notifier"),
	}
	for _, sender := range senders {
		s.Register(sender)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces the sender for its channel.
func (s *Service) Register(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[sender.Channel()] = sender
}

// Sender returns the registered sender for a channel.
func (s *Service) Sender(ch models.Channel) (Sender, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sender, ok := s.senders[ch]
	return sender, ok
}

// RateLimitStats returns the rate limiter statistics.
func (s *Service) RateLimitStats() RateLimitStats {
	if s.rateLimiter == nil {
		return RateLimitStats{}
	}
	return s.rateLimiter.Stats()
}

// SendNotification delivers the alert to every channel listed on it that has
// recipients and a registered sender. Channels without either are skipped and
// absent from the result. Channels are sent sequentially; one channel's
// failure never affects another.
func (s *Service) SendNotification(ctx context.Context, alert *models.Alert, payload *models.AlertPayload) map[models.Channel]models.ChannelResult {
	results := make(map[models.Channel]models.ChannelResult)
	if alert == nil || payload == nil {
		return results
	}

	type target struct {
		sender     Sender
		recipients []string
	}

	var targets []target
	seen := make(map[models.Channel]bool)
	for _, ch := range alert.Channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true

		recipients := alert.RecipientsFor(ch)
		if len(recipients) == 0 {
			continue
		}
		sender, ok := s.Sender(ch)
		if !ok {
			s.logger.Debug("no sender registered", zap.String("channel", string(ch)))
			continue
		}
		targets = append(targets, target{sender: sender, recipients: recipients})
	}
	if len(targets) == 0 {
		return results
	}

	log := s.logger.With(zap.String("alert_id", alert.ID), zap.String("alert", alert.Name))

	ticket, ok := s.rateLimiter.Acquire()
	if !ok {
		metrics.NotificationsRateLimited.Inc()
		log.Warn("notification rate limited")
		for _, t := range targets {
			results[t.sender.Channel()] = models.ChannelResult{Error: ErrRateLimited.Error()}
		}
		return results
	}

	msg, err := s.render(alert, payload, s.now())
	if err != nil {
		ticket.Release()
		log.Error("render notification", zap.Error(err))
		for _, t := range targets {
			results[t.sender.Channel()] = models.ChannelResult{Error: err.Error()}
		}
		return results
	}

	delivered := false
	for _, t := range targets {
		ch := t.sender.Channel()
		result := s.send(ctx, t.sender, t.recipients, msg)
		results[ch] = result
		metrics.RecordNotification(string(ch), result.Success)

		if result.Success {
			delivered = true
			log.Info("notification sent", zap.String("channel", string(ch)), zap.String("message", result.Message))
		} else {
			log.Warn("notification failed", zap.String("channel", string(ch)), zap.String("error", result.Error), zap.Strings("errors", result.Errors))
		}
	}

	// Failed notifications don't count against the limit.
	if !delivered {
		ticket.Release()
	}

	return results
}

func (s *Service) send(ctx context.Context, sender Sender, recipients []string, msg *Message) (result models.ChannelResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sender panicked", zap.String("channel", string(sender.Channel())), zap.Any("panic", r))
			result = models.ChannelResult{Error: fmt.Sprintf("sender panicked: %v", r)}
		}
	}()
	return sender.Send(ctx, recipients, msg)
}
