package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type ClientOption func(*Client)

// Client represents an HTTP client with additional capabilities
type Client struct {
	client          *http.Client
	rateLimiter     *rate.Limiter
	headers         map[string]string
	headersMu       sync.RWMutex
	maxRetries      int
	initialBackoff  time.Duration
	timeout         time.Duration
	retryableStatus map[int]struct{}
	logger          zerolog.Logger
	proxy           string
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithBackoff sets the delay before the first retry; it doubles on every attempt
func WithBackoff(backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.initialBackoff = backoff
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.client.Timeout = timeout
	}
}

// WithRateLimiter sets a rate limiter
func WithRateLimiter(rl *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// WithHeaders sets default headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headersMu.Lock()
		for k, v := range headers {
			c.headers[k] = v
		}
		c.headersMu.Unlock()
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxy = proxyURL
	}
}

// doRequest performs a single HTTP request with rate limiting
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}
	return c.client.Do(req)
}

func (c *Client) sleep(ctx context.Context, backoff time.Duration) error {
	jitter := time.Duration(0)
	if backoff >= 4 {
		jitter = time.Duration(rand.Int63n(int64(backoff / 4)))
	}
	t := time.NewTimer(backoff + jitter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do performs an HTTP request with retries for network errors and retryable status codes
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	var err error

	if req.Body != nil {
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		req.Body.Close()
	}

	c.headersMu.RLock()
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	c.headersMu.RUnlock()

	backoff := c.initialBackoff
	ctx := req.Context()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.doRequest(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == c.maxRetries {
				return nil, &NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
			}
			c.logger.Debug().Err(err).Int("attempt", attempt+1).Msgf("Retrying %s %s", req.Method, req.URL.Path)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			continue
		}

		if _, ok := c.retryableStatus[resp.StatusCode]; !ok || attempt == c.maxRetries {
			return resp, nil
		}

		resp.Body.Close()
		c.logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msgf("Retrying %s %s", req.Method, req.URL.Path)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// MakeRequest performs an HTTP request and returns the response body.
// Non-2xx responses and JSON bodies carrying an "error" field both yield *HTTPError.
func (c *Client) MakeRequest(req *http.Request) ([]byte, error) {
	res, err := c.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := res.Body.Close(); err != nil {
			c.logger.Debug().Msgf("Failed to close response body: %v", err)
		}
	}()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &NetworkError{Op: "reading response body", Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		httpErr := &HTTPError{
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("HTTP error %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes))),
		}
		if msg, code, ok := ErrorField(bodyBytes); ok {
			httpErr.Message = fmt.Sprintf("HTTP error %d: %s", res.StatusCode, msg)
			httpErr.Code = code
		}
		return nil, httpErr
	}

	if msg, code, ok := ErrorField(bodyBytes); ok {
		return nil, &HTTPError{StatusCode: res.StatusCode, Message: msg, Code: code}
	}

	return bodyBytes, nil
}

// ErrorField reports whether body is a JSON object with an "error" field.
func ErrorField(body []byte) (string, string, bool) {
	if len(body) == 0 {
		return "", "", false
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil || v.Type() != fastjson.TypeObject {
		return "", "", false
	}
	e := v.Get("error")
	if e == nil || e.Type() == fastjson.TypeNull {
		return "", "", false
	}
	msg := string(e.GetStringBytes())
	if msg == "" {
		msg = e.String()
	}
	code := ""
	if ec := v.Get("error_code"); ec != nil {
		code = strings.Trim(ec.String(), `"`)
	}
	return msg, code, true
}

// New creates a new HTTP client with the specified options
func New(options ...ClientOption) *Client {
	client := &Client{
		maxRetries:     3,
		initialBackoff: 500 * time.Millisecond,
		retryableStatus: map[int]struct{}{
			http.StatusTooManyRequests:     {},
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
		logger:  logger.New("request"),
		timeout: 60 * time.Second,
		headers: make(map[string]string),
	}

	client.client = &http.Client{
		Timeout: client.timeout,
	}

	for _, option := range options {
		option(client)
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}

	if client.proxy != "" {
		if err := configureProxy(transport, client.proxy); err != nil {
			client.logger.Error().Err(err).Msg("Failed to configure proxy")
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	client.client.Transport = transport

	return client
}

func configureProxy(transport *http.Transport, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parsing proxy URL: %w", err)
	}
	if u.Scheme != "socks5" {
		transport.Proxy = http.ProxyURL(u)
		return nil
	}

	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return fmt.Errorf("creating SOCKS5 dialer: %w", err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
		return nil
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	return nil
}

// ParseRateLimit turns "250/minute" or "4/second" into a limiter, nil when unset or invalid.
func ParseRateLimit(rateStr string) *rate.Limiter {
	if rateStr == "" {
		return nil
	}
	count, per, err := config.ParseRate(rateStr)
	if err != nil {
		return nil
	}
	reqsPerSecond := float64(count) / per.Seconds()
	burstSize := int(math.Max(1, math.Min(float64(count)*0.25, 30)))
	return rate.NewLimiter(rate.Limit(reqsPerSecond), burstSize)
}

// IsRetryable reports whether err is worth retrying inside an already-bounded loop.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return false
}
