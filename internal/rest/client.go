// Package rest provides the caching, rate-limited HTTP client every
// external integration is built on.
package rest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultTTL is the standard cache lifetime for GET responses
	DefaultTTL = 300 * time.Second

	// rollingBuffer is how close to expiry a cached entry may get before a
	// rolling read triggers a background refresh
	rollingBuffer = 10 * time.Second

	defaultTimeout = 30 * time.Second
)

// RateLimit bounds outbound calls for one destination. Excess calls are
// queued, not rejected.
type RateLimit struct {
	MaxRequests   int // per rolling window
	WindowSeconds int // window length (default: 10)
	MaxRPS        int // per second
}

// Client is a caching HTTP client scoped to a single destination
type Client struct {
	name       string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	cache      *gocache.Cache
	logger     *logrus.Logger

	windowLimiter *rate.Limiter
	secondLimiter *rate.Limiter

	// in-flight background refreshes, keyed by cache key
	refreshing sync.Map
}

// Option configures a Client
type Option func(*Client)

// WithHeaders sets static headers sent on every request
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithTimeout overrides the transport timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit enables per-destination rate limiting
func WithRateLimit(limit RateLimit) Option {
	return func(c *Client) {
		window := limit.WindowSeconds
		if window <= 0 {
			window = 10
		}
		if limit.MaxRequests > 0 {
			perWindow := float64(limit.MaxRequests) / float64(window)
			c.windowLimiter = rate.NewLimiter(rate.Limit(perWindow), limit.MaxRequests)
		}
		if limit.MaxRPS > 0 {
			c.secondLimiter = rate.NewLimiter(rate.Limit(limit.MaxRPS), limit.MaxRPS)
		}
	}
}

// NewClient creates a caching client for one destination
func NewClient(name, baseURL string, logger *logrus.Logger, opts ...Option) *Client {
	client := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      gocache.New(DefaultTTL, time.Minute),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// Get performs a cached GET. A ttl of 0 disables caching for this call.
// Network failures propagate and nothing is cached.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, ttl time.Duration, result interface{}) error {
	key := c.cacheKey(http.MethodGet, endpoint, params, "")

	if data, ok := c.cache.Get(key); ok {
		c.logger.WithFields(logrus.Fields{
			"client":   c.name,
			"endpoint": endpoint,
		}).Debug("Cache hit")
		return decode(data.([]byte), result)
	}

	data, err := c.fetch(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return err
	}

	if ttl > 0 {
		c.cache.Set(key, data, ttl)
	}

	return decode(data, result)
}

// Post performs a cached POST, keyed additionally on the request body
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}, params url.Values, ttl time.Duration, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	key := c.cacheKey(http.MethodPost, endpoint, params, hashBody(payload))

	if data, ok := c.cache.Get(key); ok {
		return decode(data.([]byte), result)
	}

	data, err := c.fetch(ctx, http.MethodPost, endpoint, params, payload)
	if err != nil {
		return err
	}

	if ttl > 0 {
		c.cache.Set(key, data, ttl)
	}

	return decode(data, result)
}

// GetRolling performs a stale-while-revalidate GET: a cached value is
// returned immediately, and when its remaining freshness has fallen within
// the rolling buffer a single background refetch overwrites the entry.
// Without a cached value it behaves like Get.
func (c *Client) GetRolling(ctx context.Context, endpoint string, params url.Values, ttl time.Duration, result interface{}) error {
	key := c.cacheKey(http.MethodGet, endpoint, params, "")

	if data, expiration, ok := c.cache.GetWithExpiration(key); ok {
		if !expiration.IsZero() && time.Until(expiration) < rollingBuffer {
			c.refreshInBackground(key, endpoint, params, ttl)
		}
		return decode(data.([]byte), result)
	}

	data, err := c.fetch(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return err
	}

	if ttl > 0 {
		c.cache.Set(key, data, ttl)
	}

	return decode(data, result)
}

// ConditionalGet performs a GET with an If-None-Match precondition.
// A 304 response returns notModified=true with no body; any other 2xx
// returns the body and the new ETag. Responses are not cached here.
func (c *Client) ConditionalGet(ctx context.Context, endpoint string, params url.Values, etag string) (body []byte, newETag string, notModified bool, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, "", false, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	if err := c.wait(ctx); err != nil {
		return nil, "", false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, true, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", false, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	return data, resp.Header.Get("ETag"), false, nil
}

// RemoveCache deletes the cached GET entry for the derived key. Used after
// mutations that make a cached read stale.
func (c *Client) RemoveCache(endpoint string, params url.Values) {
	c.cache.Delete(c.cacheKey(http.MethodGet, endpoint, params, ""))
}

// refreshInBackground triggers at most one concurrent refetch per key
func (c *Client) refreshInBackground(key, endpoint string, params url.Values, ttl time.Duration) {
	if _, loaded := c.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}

	go func() {
		defer c.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
		defer cancel()

		data, err := c.fetch(ctx, http.MethodGet, endpoint, params, nil)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"client":   c.name,
				"endpoint": endpoint,
			}).Warn("Rolling cache refresh failed")
			return
		}

		if ttl > 0 {
			c.cache.Set(key, data, ttl)
		}
	}()
}

// fetch performs the actual network call through the rate limiters
func (c *Client) fetch(ctx context.Context, method, endpoint string, params url.Values, payload []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, method, endpoint, params, payload)
	if err != nil {
		return nil, err
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"client":   c.name,
		"method":   method,
		"endpoint": endpoint,
	}).Debug("Performing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params url.Values, payload []byte) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

// wait blocks until the rate limiters admit another call
func (c *Client) wait(ctx context.Context) error {
	if c.windowLimiter != nil {
		if err := c.windowLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.secondLimiter != nil {
		if err := c.secondLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// cacheKey derives the cache key from destination, endpoint, params, headers
// and, for POST, the serialized body
func (c *Client) cacheKey(method, endpoint string, params url.Values, bodyHash string) string {
	headerNames := make([]string, 0, len(c.headers))
	for name := range c.headers {
		headerNames = append(headerNames, name+"="+c.headers[name])
	}
	sort.Strings(headerNames)

	return strings.Join([]string{
		c.name,
		method,
		endpoint,
		params.Encode(),
		strings.Join(headerNames, ","),
		bodyHash,
	}, "|")
}

func hashBody(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func decode(data []byte, result interface{}) error {
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
