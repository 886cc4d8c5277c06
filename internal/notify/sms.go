package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shaiso/Alarmd/internal/domain"
)

// SMSDispatcher отправляет напоминания через HTTP SMS-шлюз.
type SMSDispatcher struct {
	client   *resty.Client
	limiter  Limiter
	template *MessageTemplate
	shift    time.Duration
	logger   *slog.Logger
}

// SMSConfig — конфигурация SMSDispatcher.
type SMSConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration    // default: 10s
	Retries  int              // default: 2
	Shift    time.Duration    // default: 30s
	Limiter  Limiter          // nil — без ограничения
	Template *MessageTemplate // default: DefaultSMSTemplate
	Logger   *slog.Logger
}

// smsRequest — тело запроса к шлюзу.
type smsRequest struct {
	TenantID  int       `json:"tenant_id"`
	UserID    int       `json:"user_id"`
	EventID   string    `json:"event_id"`
	AlarmID   int       `json:"alarm_id"`
	DueAt     time.Time `json:"due_at"`
	Timezone  string    `json:"timezone"`
	Reference string    `json:"reference"`
	Text      string    `json:"text"`
}

// NewSMSDispatcher создаёт новый SMSDispatcher.
func NewSMSDispatcher(cfg SMSConfig) *SMSDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 2
	}
	shift := cfg.Shift
	if shift <= 0 {
		shift = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tmpl := cfg.Template
	if tmpl == nil {
		tmpl = MustParseTemplate(DefaultSMSTemplate)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &SMSDispatcher{
		client:   client,
		limiter:  cfg.Limiter,
		template: tmpl,
		shift:    shift,
		logger:   logger,
	}
}

func (d *SMSDispatcher) Action() domain.Action { return domain.ActionSMS }

func (d *SMSDispatcher) Shift() time.Duration { return d.shift }

// Deliver проверяет лимит пользователя и отправляет SMS.
// Превышение лимита возвращает ErrRateLimited без запроса к шлюзу.
func (d *SMSDispatcher) Deliver(ctx context.Context, n *Notification) error {
	if d.limiter != nil {
		key := fmt.Sprintf("sms:%d:%d", n.TenantID, n.UserID)
		allowed, err := d.limiter.Allow(ctx, key)
		if err != nil {
			d.logger.Warn("rate limiter unavailable, sending anyway", "key", key, "error", err)
		} else if !allowed {
			return fmt.Errorf("sms for user %d: %w", n.UserID, ErrRateLimited)
		}
	}

	text, err := d.template.Render(n)
	if err != nil {
		return fmt.Errorf("sms text: %w", err)
	}

	body := smsRequest{
		TenantID:  n.TenantID,
		UserID:    n.UserID,
		EventID:   n.EventID,
		AlarmID:   n.AlarmID,
		DueAt:     n.DueAt,
		Timezone:  n.Timezone,
		Reference: fmt.Sprintf("%d/%d/%s/%d", n.TenantID, n.AccountID, n.EventID, n.AlarmID),
		Text:      text,
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send sms: status %d: %s: %w", resp.StatusCode(), resp.String(), ErrGateway)
	}

	d.logger.Debug("sms alarm sent",
		"tenant_id", n.TenantID,
		"user_id", n.UserID,
		"event_id", n.EventID,
	)
	return nil
}
