package httpclient

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

	"paywatch/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Doer is what the payment core needs from HTTP. Headers are passed on every
// call; nothing is remembered between requests.
type Doer interface {
	Get(ctx context.Context, path string, headers http.Header) (*Response, error)
	Post(ctx context.Context, path string, body any, headers http.Header) (*Response, error)
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. A non-positive limit disables it.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithTransport replaces the innermost RoundTripper. Request-id and logging
// transports are always layered on top.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &logger.RequestIDTransport{
		Next: &logger.LoggingTransport{Next: c.httpClient.Transport},
	}
	return c, nil
}

func (c *Client) Get(ctx context.Context, path string, headers http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, headers)
}

func (c *Client) Post(ctx context.Context, path string, body any, headers http.Header) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, headers)
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header) (*Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	log := logger.FromCtx(ctx).With(zap.String("method", method), zap.String("path", path))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Method: method, URL: target, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		log.Error("Failed building request", zap.Error(err))
		return nil, err
	}

	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(bodyBytes) > maxBodyBytes {
		log.Error("Response body exceeds limit", zap.Int("status", resp.StatusCode), zap.Int("limit", maxBodyBytes))
		return nil, fmt.Errorf("%s %s: %w (limit %d bytes)", method, target, ErrResponseTooLarge, maxBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("Remote returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, &RemoteRejection{StatusCode: resp.StatusCode, Body: json.RawMessage(bodyBytes)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       bodyBytes,
	}, nil
}
