package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNoChannel — соединение с брокером сейчас не установлено.
var ErrNoChannel = errors.New("no channel available")

// Connection — AMQP соединение с автоматическим переподключением.
//
// Публикация сериализуется через pubMu: один канал используется
// и mail-диспетчером из таймеров, и топологией при старте.
type Connection struct {
	url        string
	logger     *slog.Logger
	maxBackoff time.Duration

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	pubMu   sync.Mutex

	closed   bool
	closedCh chan struct{}

	reconnectCh chan struct{}
}

// ConnectionConfig — параметры соединения.
type ConnectionConfig struct {
	URL        string
	Logger     *slog.Logger
	MaxBackoff time.Duration // default: 30s
}

// NewConnection подключается к брокеру и запускает наблюдение за соединением.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	c := &Connection{
		url:         cfg.URL,
		logger:      logger.With("component", "amqp"),
		maxBackoff:  maxBackoff,
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watchConnection()

	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watchConnection ждёт разрыва и переподключается.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}
			c.reconnect()
		}
	}
}

// reconnect переподключается с экспоненциальной задержкой.
func (c *Connection) reconnect() {
	delay := time.Second

	for {
		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "next_delay", delay)
			delay = min(delay*2, c.maxBackoff)
			continue
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return
	}
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигнализирует о каждом успешном переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// WithChannel выполняет fn с текущим каналом под мьютексом публикации.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	return fn(ch)
}
