package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/mq"
)

// Publisher публикует сообщения в брокер.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, msgType mq.MessageType, payload any) error
}

// MailDispatcher передаёт напоминания по почте mail-сервису через RabbitMQ.
// Письмо рендерит и отправляет mail-сервис.
type MailDispatcher struct {
	publisher Publisher
	shift     time.Duration
	logger    *slog.Logger
}

// MailConfig — конфигурация MailDispatcher.
type MailConfig struct {
	Publisher Publisher
	Shift     time.Duration
	Logger    *slog.Logger
}

// NewMailDispatcher создаёт новый MailDispatcher.
func NewMailDispatcher(cfg MailConfig) *MailDispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MailDispatcher{
		publisher: cfg.Publisher,
		shift:     max(cfg.Shift, 0),
		logger:    logger,
	}
}

func (d *MailDispatcher) Action() domain.Action { return domain.ActionEmail }

func (d *MailDispatcher) Shift() time.Duration { return d.shift }

// Deliver публикует сообщение alarm.mail.
func (d *MailDispatcher) Deliver(ctx context.Context, n *Notification) error {
	err := d.publisher.PublishJSON(ctx, mq.ExchangeNotifications, mq.RoutingKeyMail, mq.MessageTypeAlarmMail, n)
	if err != nil {
		return fmt.Errorf("publish mail alarm: %w", err)
	}

	d.logger.Debug("mail alarm published",
		"tenant_id", n.TenantID,
		"user_id", n.UserID,
		"event_id", n.EventID,
		"alarm_id", n.AlarmID,
	)
	return nil
}
