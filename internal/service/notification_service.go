package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
)

// NotificationService is the sink for customer-facing notifications. It
// subscribes to the events that matter to a waiting customer; the actual
// SMS/email delivery lives in an external collaborator, here represented by
// logging and a webhook stub.
type NotificationService struct {
	broadcaster *events.Broadcaster
	logger      *zap.Logger
	cfg         config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(broadcaster *events.Broadcaster, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		broadcaster: broadcaster,
		logger:      logger,
		cfg:         cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.broadcaster == nil {
		return
	}
	n.broadcaster.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.broadcaster.Subscribe(events.EventTicketCalled, n.handleTicketCalled)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketCalled(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCalled", zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("event_type", string(event.Type)))
}
