package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeNotifications Exchange = "alarmd.notifications"
	ExchangeCalendar      Exchange = "alarmd.calendar"
	ExchangeDLQ           Exchange = "alarmd.dlq"
)

// Queues.
const (
	QueueMail           Queue = "alarmd.mail"
	QueueCalendarEvents Queue = "alarmd.calendar.events"
	QueueDLQCalendar    Queue = "alarmd.dlq.calendar"
)

// Routing keys.
const (
	RoutingKeyMail         RoutingKey = "mail"
	RoutingKeyEventCreated RoutingKey = "event.created"
	RoutingKeyEventUpdated RoutingKey = "event.updated"
	RoutingKeyEventDeleted RoutingKey = "event.deleted"
	RoutingKeyDLQCalendar  RoutingKey = "calendar"
)

type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

var (
	exchanges = []struct {
		name Exchange
		kind string
	}{
		{ExchangeNotifications, "direct"},
		{ExchangeCalendar, "direct"},
		{ExchangeDLQ, "direct"},
	}

	bindings = []binding{
		{QueueMail, RoutingKeyMail, ExchangeNotifications},
		{QueueCalendarEvents, RoutingKeyEventCreated, ExchangeCalendar},
		{QueueCalendarEvents, RoutingKeyEventUpdated, ExchangeCalendar},
		{QueueCalendarEvents, RoutingKeyEventDeleted, ExchangeCalendar},
		{QueueDLQCalendar, RoutingKeyDLQCalendar, ExchangeDLQ},
	}
)

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		if err := declareQueues(ch); err != nil {
			return err
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s/%s: %w", b.queue, b.exchange, b.routingKey, err)
			}
		}
		return nil
	})
}

func declareQueues(ch *amqp.Channel) error {
	// битые сообщения календаря уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQCalendar),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueMail, nil},
		{QueueCalendarEvents, dlqArgs},
		{QueueDLQCalendar, nil},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}
