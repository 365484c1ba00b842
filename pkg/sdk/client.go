package loom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	apiPrefix      = "/api/v1"
)

// Client is the loom SDK entry point. All methods are safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	httpc     *http.Client
	obs       *observer
}

// New creates a Client for the loom API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		timeout:   defaultTimeout,
		userAgent: "loom-go-sdk",
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("loom: invalid base URL %q", baseURL)
	}

	httpc := cfg.httpClient
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    cfg.apiKey,
		userAgent: cfg.userAgent,
		httpc:     httpc,
		obs:       obs,
	}, nil
}

// Collections returns the collection management service.
func (c *Client) Collections() *CollectionService {
	return &CollectionService{client: c}
}

// Documents returns the document service for a given collection.
func (c *Client) Documents(collectionID string) *DocumentService {
	return &DocumentService{client: c, collection: collectionID}
}

// Transformers returns the transformer management service.
func (c *Client) Transformers() *TransformerService {
	return &TransformerService{client: c}
}

// Indexes returns the index management and query service.
func (c *Client) Indexes() *IndexService {
	return &IndexService{client: c}
}

// Bindings returns the binding management service.
func (c *Client) Bindings() *BindingService {
	return &BindingService{client: c}
}

// Health reports the service health. The report is returned even when the
// server answers 503 (status "error").
func (c *Client) Health(ctx context.Context) (_ HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	var out HealthStatus
	err = c.doRaw(ctx, http.MethodGet, "/health", nil, nil, &out, http.StatusOK, http.StatusServiceUnavailable)
	if err != nil {
		return HealthStatus{}, err
	}
	return out, nil
}

// do performs an API request under /api/v1 and decodes a 2xx JSON response
// into out (which may be nil for empty responses).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.doRaw(ctx, method, apiPrefix+path, query, body, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body, out any, okStatuses ...int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("loom: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("loom: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("loom: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if !statusAccepted(resp.StatusCode, okStatuses) {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("loom: decode response: %w", err)
	}
	return nil
}

// statusAccepted treats any 2xx as success unless an explicit list is given.
func statusAccepted(code int, ok []int) bool {
	if len(ok) == 0 {
		return code >= 200 && code < 300
	}
	for _, s := range ok {
		if code == s {
			return true
		}
	}
	return false
}

// decodeError turns a non-2xx response into an *APIError. An undecodable
// body still yields the status code.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var wire struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		BindingID *int64 `json:"binding_id"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &wire); err != nil || wire.Code == "" {
		apiErr.Code = "internal_error"
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	apiErr.Code = wire.Code
	apiErr.Message = wire.Message
	apiErr.BindingID = wire.BindingID
	return apiErr
}

// IsRetryable reports whether the error is transient: schema visibility
// races and embedding provider failures clear on their own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSchemaRace) || errors.Is(err, ErrEmbeddingProviderError)
}
