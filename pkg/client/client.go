// Package client provides the LIMS REST client used by the resolver to list
// entities by id, with retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/Sternrassler/lims-resolver/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Prometheus metrics for backend requests.
var (
	limsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_backend_requests_total",
		Help: "Total backend requests by entity type and status",
	}, []string{"type", "status"})

	limsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lims_backend_request_duration_seconds",
		Help:    "Backend request duration in seconds by entity type",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"type"})

	limsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_backend_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

const (
	// DefaultFilterParam is the query parameter carrying the comma-joined ids.
	DefaultFilterParam = "id__in"

	// DefaultItemsPath is the gjson path of the item array in a list response.
	DefaultItemsPath = "items"

	// DefaultTimeout bounds one HTTP round trip. With the default retry
	// config the whole retry budget stays below the resolver's chunk timeout.
	DefaultTimeout = 4 * time.Second
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the LIMS backend, e.g. "https://lims.example.org".
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout for a single HTTP round trip.
	Timeout time.Duration

	// FilterParam is the id filter query parameter (default "id__in").
	FilterParam string

	// ItemsPath is the gjson path of the item array (default "items").
	// A response that is a bare JSON array is accepted as well.
	ItemsPath string

	// Endpoints overrides the list endpoint per entity type.
	// The default is "/api/{type}s/".
	Endpoints map[entity.Type]string

	// Retry configures retries for server, rate limit and network errors.
	Retry RetryConfig
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		UserAgent:   "lims-resolver/0.1.0",
		Timeout:     DefaultTimeout,
		FilterParam: DefaultFilterParam,
		ItemsPath:   DefaultItemsPath,
		Retry:       DefaultRetryConfig(),
	}
}

// RateLimiter throttles requests after the backend asked clients to back off.
type RateLimiter interface {
	Wait(ctx context.Context) error
	UpdateFromResponse(ctx context.Context, resp *http.Response) error
}

// Client lists LIMS entities over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
	limiter    RateLimiter
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FilterParam == "" {
		cfg.FilterParam = DefaultFilterParam
	}
	if cfg.ItemsPath == "" {
		cfg.ItemsPath = DefaultItemsPath
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  log.With().Str("component", "lims-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetRateLimiter makes every request wait for limiter and report responses to it.
func (c *Client) SetRateLimiter(limiter RateLimiter) {
	c.limiter = limiter
}

// Endpoint returns the list endpoint path for typ.
func (c *Client) Endpoint(typ entity.Type) string {
	if ep, ok := c.config.Endpoints[typ]; ok && ep != "" {
		return ep
	}
	return "/api/" + string(typ) + "s/"
}

// ListByIDs fetches the entities of typ whose ids are in ids. The backend may
// omit ids that no longer exist and may return items in any order.
func (c *Client) ListByIDs(ctx context.Context, typ entity.Type, ids []string) ([]json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	startTime := time.Now()
	defer func() {
		limsRequestDuration.WithLabelValues(string(typ)).Observe(time.Since(startTime).Seconds())
	}()

	reqURL := c.listURL(typ, ids)

	c.logger.Debug().
		Str(logging.FieldEntityType, string(typ)).
		Int("ids", len(ids)).
		Msg("Listing entities by id")

	var body []byte
	err := retryWithBackoff(ctx, c.config.Retry, func() (ErrorClass, error) {
		var class ErrorClass
		var reqErr error
		body, class, reqErr = c.get(ctx, typ, reqURL)
		return class, reqErr
	})
	if err != nil {
		return nil, annotate(err, typ, len(ids))
	}

	items, err := c.extractItems(body)
	if err != nil {
		limsErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode list response",
			Err:        err,
			Type:       typ,
			IDs:        len(ids),
		}
	}
	return items, nil
}

// listURL builds the list request URL for ids.
func (c *Client) listURL(typ entity.Type, ids []string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + c.Endpoint(typ)

	q := url.Values{}
	q.Set(c.config.FilterParam, strings.Join(ids, ","))
	q.Set("limit", fmt.Sprintf("%d", len(ids)))
	u.RawQuery = q.Encode()
	return u.String()
}

// get performs one GET request and classifies any failure.
func (c *Client) get(ctx context.Context, typ entity.Type, reqURL string) ([]byte, ErrorClass, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ErrorClassNetwork, &APIError{ErrorClass: ErrorClassNetwork, Message: "rate limit wait", Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, ErrorClassClient, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := c.classifyError(nil, err)
		limsErrorsTotal.WithLabelValues(string(class)).Inc()
		limsRequestsTotal.WithLabelValues(string(typ), "network_error").Inc()
		c.logger.Warn().Err(err).Str(logging.FieldEntityType, string(typ)).Msg("HTTP request failed")
		return nil, class, &APIError{ErrorClass: class, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if c.limiter != nil {
		if err := c.limiter.UpdateFromResponse(ctx, resp); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit state")
		}
	}

	limsRequestsTotal.WithLabelValues(string(typ), fmt.Sprintf("%d", resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		limsErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, ErrorClassNetwork, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	if resp.StatusCode >= 400 {
		class := c.classifyError(resp, nil)
		limsErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Str(logging.FieldEntityType, string(typ)).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Backend request error")

		return nil, class, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    errorMessage(resp.Status, body),
		}
	}

	return body, "", nil
}

// extractItems pulls the item array out of a list response.
func (c *Client) extractItems(body []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	doc := gjson.ParseBytes(body)
	list := doc
	if !doc.IsArray() {
		list = doc.Get(c.config.ItemsPath)
		if !list.Exists() {
			return nil, fmt.Errorf("response has no %q field", c.config.ItemsPath)
		}
		if !list.IsArray() {
			return nil, fmt.Errorf("%q is not an array", c.config.ItemsPath)
		}
	}

	results := list.Array()
	items := make([]json.RawMessage, 0, len(results))
	for _, r := range results {
		items = append(items, json.RawMessage(r.Raw))
	}
	return items, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// errorMessage prefers a "detail" or "message" field from a JSON error body.
func errorMessage(status string, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"detail", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	return status
}
