package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"wavebind/logger"
	"wavebind/settings"
	"wavebind/wavebase"
)

var ErrUnavailable = errors.New("catalog unavailable")

const (
	categoriesPath = "/wavespeed/api/categories"
	modelsPath     = "/wavespeed/api/models/"
	modelPath      = "/wavespeed/api/model"

	// Details are persisted for a day; lists follow the configured TTL.
	detailStoreTTL = 24 * time.Hour
)

// Option is one entry of a category or model list.
type Option struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// ModelDetail describes one model; InputSchema feeds the schema parser.
type ModelDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	ModelUUID   string          `json:"model_uuid,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Store persists responses across restarts.
type Store interface {
	Get(key string) ([]byte, error)
	PutBytesExpire(key string, value []byte, ttl time.Duration) error
}

type entry struct {
	data    json.RawMessage
	fetched time.Time
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	TTL        time.Duration

	mu      sync.Mutex
	entries map[string]entry
	store   Store
}

// NewClient creates a catalog client. store may be nil.
func NewClient(config settings.CatalogConfig, store Store) *Client {
	ttl := config.CacheTTL()
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	timeout := config.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(config.Url, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		TTL:     ttl,
		entries: make(map[string]entry),
		store:   store,
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, env.Error)
	}
	return env.Data, nil
}

// fetch serves key from memory while fresh, otherwise refreshes it. A failed
// refresh falls back to stale memory, then to the store.
func (c *Client) fetch(ctx context.Context, key, endpoint string, expires bool, storeTTL time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.entries[key]
	if ok && (!expires || time.Since(cached.fetched) < c.TTL) {
		return cached.data, nil
	}

	data, err := c.doRequest(ctx, endpoint)
	if err != nil {
		if ok {
			logger.Service("catalog").Warn("Catalog refresh failed, serving stale data", "key", key, "error", err)
			return cached.data, nil
		}
		if stored, storeErr := c.fromStore(key); storeErr == nil {
			logger.Service("catalog").Warn("Catalog refresh failed, serving stored data", "key", key, "error", err)
			return stored, nil
		}
		return nil, err
	}

	c.entries[key] = entry{data: data, fetched: time.Now()}
	if c.store != nil {
		if err := c.store.PutBytesExpire(key, data, storeTTL); err != nil {
			logger.Service("catalog").Warn("Failed to store catalog response", "key", key, "error", err)
		}
	}
	return data, nil
}

func (c *Client) fromStore(key string) (json.RawMessage, error) {
	if c.store == nil {
		return nil, ErrUnavailable
	}
	data, err := c.store.Get(key)
	if err != nil {
		if !wavebase.IsNotFound(err) {
			logger.Service("catalog").Debug("Catalog store read failed", "key", key, "error", err)
		}
		return nil, err
	}
	return data, nil
}

// Categories lists the model categories.
func (c *Client) Categories(ctx context.Context) ([]Option, error) {
	data, err := c.fetch(ctx, wavebase.Key("catalog", "categories"), categoriesPath, true, c.TTL)
	if err != nil {
		return nil, err
	}
	return decodeOptions(data)
}

// Models lists the models of one category.
func (c *Client) Models(ctx context.Context, category string) ([]Option, error) {
	if category == "" {
		return nil, nil
	}
	data, err := c.fetch(ctx, wavebase.Key("catalog", "models", category), modelsPath+url.PathEscape(category), true, c.TTL)
	if err != nil {
		return nil, err
	}
	return decodeOptions(data)
}

// Detail returns one model's description. Details never expire in memory.
func (c *Client) Detail(ctx context.Context, modelID string) (*ModelDetail, error) {
	if modelID == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrUnavailable)
	}
	endpoint := modelPath + "?model_id=" + url.QueryEscape(modelID)
	data, err := c.fetch(ctx, wavebase.Key("catalog", "model", modelID), endpoint, false, detailStoreTTL)
	if err != nil {
		return nil, err
	}

	var detail ModelDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode model detail: %w", err)
	}
	if detail.ID == "" {
		detail.ID = modelID
	}
	return &detail, nil
}

// Invalidate drops every in-memory entry.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func decodeOptions(data json.RawMessage) ([]Option, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var options []Option
	if err := json.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	return options, nil
}

// Label returns the display name of value within options, or value itself.
func Label(options []Option, value string) string {
	for _, o := range options {
		if o.Value == value {
			return o.Name
		}
	}
	return value
}
