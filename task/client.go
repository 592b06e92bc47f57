package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wavebind/logger"
	"wavebind/settings"
	"wavebind/transform"
)

const (
	submitPath = "/api/v3/"
	resultPath = "/api/v2/predictions/%s/result"

	// Seeds other than -1 are folded below this bound before submission.
	seedModulus = 9999999999

	maxBackoff = 8 * time.Second
)

// Client submits tasks to the WaveSpeed prediction API and polls them.
type Client struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	MaxWait      time.Duration
	// Retries is how many times a request is retried after a transport
	// error or a 429/5xx response, waiting Backoff, 2*Backoff, ... between.
	Retries int
	Backoff time.Duration
}

// NewClient creates a task client from config.
func NewClient(config settings.TaskConfig) *Client {
	timeout := config.Timeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	poll := config.PollInterval()
	if poll <= 0 {
		poll = 5 * time.Second
	}
	maxWait := config.MaxWait()
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	return &Client{
		BaseURL:      strings.TrimSuffix(config.Url, "/"),
		APIKey:       config.ApiKey,
		HTTPClient:   &http.Client{Timeout: timeout},
		PollInterval: poll,
		MaxWait:      maxWait,
		Retries:      config.Retries,
		Backoff:      time.Second,
	}
}

// Submit posts t to its model endpoint. With wait set it polls until the
// task completes, fails or MaxWait passes; otherwise it returns as soon as
// the API has assigned a task id.
func (c *Client) Submit(ctx context.Context, t transform.Task, wait bool) (Result, error) {
	if t.ModelUUID == "" {
		return Result{}, fmt.Errorf("missing model in task")
	}
	payload := requestBody(t.RequestJSON)

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	log := logger.Service("task")
	log.Info("Submitting task", "model", t.ModelUUID, "fields", len(payload))

	data, err := c.do(ctx, http.MethodPost, submitPath+t.ModelUUID, body)
	if err != nil {
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("failed to decode submission: %w", err)
	}
	if r.ID == "" {
		return Result{}, ErrNoTaskID
	}
	log.Info("Task submitted", "task", r.ID, "status", r.Status)

	if !wait {
		return Result{ID: r.ID, Model: t.ModelUUID, Status: StatusProcessing}, nil
	}
	return c.Wait(ctx, r.ID)
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, id string) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, ErrNoTaskID
	}
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf(resultPath, url.PathEscape(id)), nil)
	if err != nil {
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("failed to decode task status: %w", err)
	}
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

// Wait polls a task every PollInterval until it completes or fails. It
// gives up with ErrTimeout after MaxWait.
func (c *Client) Wait(ctx context.Context, id string) (Result, error) {
	deadline := time.Now().Add(c.MaxWait)
	log := logger.Service("task")

	for {
		r, err := c.Status(ctx, id)
		if err != nil {
			return Result{}, err
		}
		switch r.Status {
		case StatusCompleted:
			log.Info("Task completed", "task", id, "outputs", len(r.Outputs))
			return r, nil
		case StatusFailed:
			msg := r.Error
			if msg == "" {
				msg = "no reason given"
			}
			return r, fmt.Errorf("%w: %s", ErrFailed, msg)
		}
		log.Debug("Task not finished", "task", id, "status", r.Status)

		if time.Now().Add(c.PollInterval).After(deadline) {
			return r, fmt.Errorf("%w after %s", ErrTimeout, c.MaxWait)
		}
		if err := sleep(ctx, c.PollInterval); err != nil {
			return r, err
		}
	}
}

// do sends one API request, retrying transport errors and 429/5xx
// responses, and unwraps the {code, message, data} envelope.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt-1, c.Backoff)
			logger.Service("task").Warn("Retrying request", "endpoint", endpoint, "attempt", attempt, "wait", wait, "error", lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		data, retry, err := c.send(ctx, method, endpoint, body)
		if err == nil {
			return data, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		var e apiError
		if json.Unmarshal(raw, &e) == nil {
			if e.Message != "" {
				return nil, false, fmt.Errorf("error: %s", e.Message)
			}
			if e.Error != "" {
				return nil, false, fmt.Errorf("error: %s", e.Error)
			}
		}
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code == nil {
		return raw, false, nil
	}
	if *env.Code == http.StatusUnauthorized {
		return nil, false, ErrUnauthorized
	}
	if *env.Code != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, false, fmt.Errorf("api error: %s", msg)
	}
	if len(env.Data) == 0 {
		return json.RawMessage("{}"), false, nil
	}
	return env.Data, false, nil
}

// requestBody copies the resolved request, disables base64 outputs and folds
// an explicit seed into the range the API accepts.
func requestBody(request map[string]any) map[string]any {
	payload := make(map[string]any, len(request)+1)
	for k, v := range request {
		payload[k] = v
	}
	payload["enable_base64_output"] = false

	if seed, ok := seedValue(payload["seed"]); ok && seed != -1 {
		seed %= seedModulus
		if seed < 0 {
			seed += seedModulus
		}
		payload["seed"] = seed
	}
	return payload
}

func seedValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << attempt
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
