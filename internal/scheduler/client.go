// Package scheduler предоставляет клиент для внешнего сервиса отложенных задач.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с планировщиком задач.
// Планировщик выполняет POST на указанный URL в заданный момент времени.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// Task описывает отложенный HTTP-вызов.
type Task struct {
	URL          string          `json:"url"`
	Method       string          `json:"method"`
	Body         json.RawMessage `json:"body"`
	ScheduleTime time.Time       `json:"schedule_time"`
}

// NewClient создаёт HTTP-клиент для обращения к планировщику по указанному адресу.
func NewClient(baseURL string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = 5 * time.Second
	httpClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ScheduleCallback ставит задачу на вызов callbackURL с телом payload в момент at.
func (c *Client) ScheduleCallback(ctx context.Context, callbackURL string, payload any, at time.Time) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("scheduler client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	task := Task{
		URL:          callbackURL,
		Method:       http.MethodPost,
		Body:         body,
		ScheduleTime: at,
	}

	taskBody, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	url := base + "/api/tasks"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(taskBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
