package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — запланированная задача из API.
type TaskResponse struct {
	Key       string  `json:"key"`
	TenantID  int     `json:"tenant_id"`
	AccountID int     `json:"account_id"`
	EventID   *string `json:"event_id"`
	AlarmID   int     `json:"alarm_id"`
	Action    string  `json:"action"`
	DueAt     string  `json:"due_at"`
	FireAt    string  `json:"fire_at"`
}

// EventsChangedResponse — результат пересчёта.
type EventsChangedResponse struct {
	Events int `json:"events"`
}

// CancelResponse — результат удаления события.
type CancelResponse struct {
	Cancelled int `json:"cancelled"`
}

// --- Request types ---

// EventsChangedRequest — изменённые события аккаунта.
type EventsChangedRequest struct {
	EventIDs []string `json:"event_ids"`
	Folder   string   `json:"folder,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	TenantID  int
	AccountID int
	Limit     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API alarmd.
type Client struct {
	http *resty.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// --- Tasks ---

// ListTasks возвращает запланированные задачи.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.TenantID > 0 {
		params.Set("tenant_id", strconv.Itoa(opts.TenantID))
	}
	if opts.AccountID > 0 {
		params.Set("account_id", strconv.Itoa(opts.AccountID))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list(ctx, "/api/v1/tasks", params, &tasks)
	return tasks, err
}

// --- Events ---

// EventsChanged запрашивает пересчёт напоминаний событий.
func (c *Client) EventsChanged(ctx context.Context, tenantID, accountID int, req EventsChangedRequest) (*EventsChangedResponse, error) {
	var result EventsChangedResponse
	err := c.doData(ctx, resty.MethodPost, eventsPath(tenantID, accountID)+"/changed", req, &result)
	return &result, err
}

// DeleteEvent отменяет задачи удалённого события.
func (c *Client) DeleteEvent(ctx context.Context, tenantID, accountID int, eventID string) (*CancelResponse, error) {
	var result CancelResponse
	err := c.doData(ctx, resty.MethodDelete, eventsPath(tenantID, accountID)+"/"+url.PathEscape(eventID), nil, &result)
	return &result, err
}

func eventsPath(tenantID, accountID int) string {
	return fmt.Sprintf("/api/v1/tenants/%d/accounts/%d/events", tenantID, accountID)
}

// --- HTTP helpers ---

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	var lr listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&lr).
		SetError(&errorResponse{}).
		Get(path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if err := checkError(resp); err != nil {
		return err
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	var dr dataResponse
	req := c.http.R().
		SetContext(ctx).
		SetResult(&dr).
		SetError(&errorResponse{})
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if err := checkError(resp); err != nil {
		return err
	}

	if result != nil && len(dr.Data) > 0 {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func checkError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	er, ok := resp.Error().(*errorResponse)
	if !ok || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode())
	}
	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
