package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned while the breaker refuses outbound fetches
var ErrUnavailable = errors.New("remote assets unavailable: circuit breaker open")

// Config controls outbound asset fetches
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
	// RPS limits outbound requests; zero means unlimited
	RPS       float64
	MaxBytes  int64
	UserAgent string
}

// DefaultConfig returns settings suited to CDN asset downloads
func DefaultConfig() Config {
	return Config{
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		MinWait:    200 * time.Millisecond,
		MaxWait:    2 * time.Second,
		RPS:        10,
		MaxBytes:   4 << 20,
		UserAgent:  "livepreview-library-loader/1.0",
	}
}

// Client fetches remote library assets with retries, rate limiting and a
// circuit breaker
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	maxBytes int64
	mu       sync.RWMutex
}

// New creates a client from cfg
func New(cfg Config) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.MinWait
	retryClient.RetryWaitMax = cfg.MaxWait
	retryClient.Logger = nil

	r := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.MinWait).
		SetRetryMaxWaitTime(cfg.MaxWait).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		resty:    r,
		limiter:  limiter,
		breaker:  resilience.New("asset-fetch", resilience.AssetFetchSettings()),
		maxBytes: cfg.MaxBytes,
	}
}

// Fetch downloads url and returns its body. Non-2xx responses are errors.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.breaker.State() == resilience.StateOpen {
		return nil, ErrUnavailable
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	body, err := resilience.Call(c.breaker, func() ([]byte, error) {
		c.mu.RLock()
		req := c.resty.R().SetContext(ctx)
		c.mu.RUnlock()

		resp, err := req.Get(url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}

	if c.maxBytes > 0 && int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", url, c.maxBytes)
	}
	return body, nil
}

// SetTimeout changes the per-request timeout
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetTimeout(d)
}

// BreakerState returns the current breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}
