// Package backend talks to the project-management CRUD API that view
// renderers read their records from.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
	"pkt.systems/pslog"
)

var (
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("backend record not found")
	// ErrRequestFailed reports a non-success envelope or status.
	ErrRequestFailed = errors.New("backend request failed")
)

// Record is one row returned by the CRUD API.
type Record map[string]any

// String returns a field as a string, empty when missing.
func (r Record) String(key string) string {
	value, ok := r[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// ID returns the record id.
func (r Record) ID() string {
	return r.String("id")
}

// CallRecorder observes backend calls.
type CallRecorder interface {
	ObserveBackendCall(table, method string, err error, seconds float64)
}

// Config configures the CRUD client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	// RateLimit caps requests per second; zero disables pacing.
	RateLimit float64
	Logger    pslog.Logger
	Metrics   CallRecorder
}

// Client is a rate-limited CRUD client with a retrying transport.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	log     pslog.Logger
	metrics CallRecorder
	mu      sync.RWMutex
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Items   json.RawMessage `json:"items"`
	Error   string          `json:"error"`
}

// NewClient constructs a CRUD client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = cfg.RetryWait * 8
	retryClient.Logger = nil
	if cfg.Logger != nil {
		retryClient.Logger = retryLogger{log: cfg.Logger}
	}
	// Hand non-2xx responses back to resty instead of an opaque "giving up" error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "pmdesk/1.0")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// SetBearerAuth configures bearer token authentication.
func (c *Client) SetBearerAuth(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetAuthToken(token)
}

// List returns the rows of a table, filtered by optional query parameters.
func (c *Client) List(ctx context.Context, table string, filters map[string]string) ([]Record, error) {
	var records []Record
	err := c.do(ctx, http.MethodGet, table, "", filters, nil, func(env envelope) error {
		raw := env.Items
		if isEmptyJSON(raw) {
			raw = env.Data
		}
		if isEmptyJSON(raw) {
			records = []Record{}
			return nil
		}
		return json.Unmarshal(raw, &records)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one row by id.
func (c *Client) Get(ctx context.Context, table, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("record id is required")
	}
	return c.single(ctx, http.MethodGet, table, id, nil, nil)
}

type createBody struct {
	Item Record `json:"item"`
}

type updateBody struct {
	Key     Record `json:"key"`
	Updates Record `json:"updates"`
}

// Create inserts a row and returns the stored record. The row is sent as
// {"item": row}.
func (c *Client) Create(ctx context.Context, table string, record Record) (Record, error) {
	if len(record) == 0 {
		return nil, errors.New("record is required")
	}
	return c.single(ctx, http.MethodPost, table, "", nil, createBody{Item: record})
}

// Update applies updates to the row with the given id and returns the stored
// record. The request is PUT ...&action=update with {"key": {"id": id}, "updates": updates}.
func (c *Client) Update(ctx context.Context, table, id string, updates Record) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("record id is required")
	}
	if len(updates) == 0 {
		return nil, errors.New("updates are required")
	}
	body := updateBody{Key: Record{"id": id}, Updates: updates}
	return c.single(ctx, http.MethodPut, table, "", map[string]string{"action": "update"}, body)
}

// Delete removes a row.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("record id is required")
	}
	return c.do(ctx, http.MethodDelete, table, id, nil, nil, func(envelope) error { return nil })
}

func (c *Client) single(ctx context.Context, method, table, id string, query map[string]string, body any) (Record, error) {
	var record Record
	err := c.do(ctx, method, table, id, query, body, func(env envelope) error {
		if isEmptyJSON(env.Data) {
			if method == http.MethodGet {
				return ErrNotFound
			}
			record = Record{}
			return nil
		}
		return json.Unmarshal(env.Data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (c *Client) do(ctx context.Context, method, table, id string, query map[string]string, body any, decode func(envelope) error) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("table name is required")
	}
	log := c.logger(ctx).With("table", table, "method", method)
	started := time.Now()
	err := c.execute(ctx, method, table, id, query, body, decode)
	if c.metrics != nil {
		c.metrics.ObserveBackendCall(table, method, err, time.Since(started).Seconds())
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Debug("backend record missing", "id", id)
		} else {
			log.Warn("backend request failed", "id", id, "err", err)
		}
		return err
	}
	log.Trace("backend request ok", "id", id, "duration", time.Since(started))
	return nil
}

func (c *Client) execute(ctx context.Context, method, table, id string, query map[string]string, body any, decode func(envelope) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}
	c.mu.RLock()
	req := c.resty.R().SetContext(ctx)
	c.mu.RUnlock()

	req.SetQueryParam("tableName", table)
	if id != "" {
		req.SetQueryParam("id", id)
	}
	for key, value := range query {
		if key == "tableName" || key == "id" {
			continue
		}
		req.SetQueryParam(key, value)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, "/crud")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	var env envelope
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return fmt.Errorf("%w: decode %s response: %v", ErrRequestFailed, table, err)
		}
	}
	if resp.IsError() {
		msg := env.Error
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("%w: %s", ErrRequestFailed, msg)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unsuccessful response"
		}
		return fmt.Errorf("%w: %s", ErrRequestFailed, msg)
	}
	return decode(env)
}

func (c *Client) logger(ctx context.Context) pslog.Logger {
	if c.log != nil {
		return c.log
	}
	return pslog.Ctx(ctx)
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

type retryLogger struct {
	log pslog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Warn("backend transport "+msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("backend transport "+msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace("backend transport "+msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn("backend transport "+msg, keysAndValues...)
}
