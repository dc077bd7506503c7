package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

// AlertStream appends records to a named stream consumed by the delivery pipeline.
type AlertStream interface {
	Append(ctx context.Context, stream string, values map[string]any) error
}

// NotificationService turns SLA alerts and lifecycle events into outbound
// notifications. It is the sink the monitor hands alerts to.
type NotificationService struct {
	dispatcher events.Dispatcher
	stream     AlertStream
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. stream may be nil.
func NewNotificationService(dispatcher events.Dispatcher, stream AlertStream, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		stream:     stream,
		logger:     logger,
		cfg:        cfg,
	}
}

// Send publishes an alert as a domain event. Subscribers perform delivery.
func (n *NotificationService) Send(ctx context.Context, alert sla.Alert) error {
	eventType := events.EventSLAWarning
	if alert.Kind == sla.AlertKindBreach {
		eventType = events.EventSLABreached
	}
	event := events.NewEvent(eventType, alert.TicketID, events.SystemActor, alert.CreatedAt, events.SLAAlertPayload{
		AlertID:      alert.ID,
		Phase:        alert.Phase,
		RecipientIDs: alert.RecipientIDs,
		Context:      alert.Context,
	})
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return n.dispatcher.Publish(ctx, event)
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSLAWarning, n.handleAlert)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleAlert)
	n.dispatcher.Subscribe(events.EventSLAStarted, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventSLAPhaseMet, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventSLAPaused, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventSLAResumed, n.handleLifecycle)
}

func (n *NotificationService) handleAlert(ctx context.Context, event events.Event) error {
	n.logger.Info("SLAAlert",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.Any("payload", event.Payload))
	if err := n.forwardToStream(ctx, event); err != nil {
		return err
	}
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleLifecycle(ctx context.Context, event events.Event) error {
	n.logger.Info("SLALifecycle",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.Any("payload", event.Payload))
	if err := n.forwardToStream(ctx, event); err != nil {
		return err
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) forwardToStream(ctx context.Context, event events.Event) error {
	if n.stream == nil || strings.TrimSpace(n.cfg.RedisStream) == "" {
		return nil
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	values := map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"ticket_id":  event.TicketID,
		"actor_type": string(event.Actor.Type),
		"timestamp":  event.Timestamp.UTC().Format(time.RFC3339Nano),
		"payload":    string(payload),
	}
	if err := n.stream.Append(ctx, n.cfg.RedisStream, values); err != nil {
		return fmt.Errorf("append %s to %s: %w", event.Type, n.cfg.RedisStream, err)
	}
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
