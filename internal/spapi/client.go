package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
)

const (
	retryBackoffBase = 500 * time.Millisecond
	quotaRetryDelay  = 2 * time.Second
	maxQuotaRetries  = 2
	platformLabel    = "platform_a"
)

var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client executes signed Platform-A requests with bounded retry.
// Transient statuses (429, 5xx from the transient set) are retried
// with exponential backoff; a quota signal embedded in the response
// body is retried a couple of times with a longer fixed delay and
// then surfaced as *QuotaExceededError so callers can stop a batch.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *TokenCache
	signer     *Signer
	log        logger.Interface
	metrics    *metrics.Metrics

	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates a Client with its own HTTP transport.
func NewClient(cfg Config, log logger.Interface, m *metrics.Metrics) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.connectTimeout(),
		}).DialContext,
		TLSHandshakeTimeout: cfg.connectTimeout(),
		MaxIdleConnsPerHost: 4,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.readTimeout(),
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		tokens:     NewTokenCache(cfg, httpClient),
		signer:     NewSigner(cfg),
		log:        log.WithComponent("spapi"),
		metrics:    m,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// HTTPClient exposes the underlying HTTP client, mainly so tests can
// attach a mock transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// MarketplaceID returns the configured marketplace.
func (c *Client) MarketplaceID() string {
	return c.cfg.marketplaceID()
}

// Execute performs one signed API call. jsonBody may be nil for GET
// requests. The returned map is the decoded JSON response; an empty
// response body decodes to an empty map.
func (c *Client) Execute(ctx context.Context, method, path string, params map[string]string, jsonBody any) (map[string]any, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	body := ""
	if jsonBody != nil {
		raw, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = string(raw)
	}

	maxAttempts := c.cfg.maxRetries()
	backoff := retryBackoffBase
	quotaRetries := 0

	for attempt := 0; ; {
		result, retryable, err := c.attempt(ctx, method, path, params, body)
		if err == nil {
			c.metrics.RecordAPIRequest(platformLabel, "success")
			return result, nil
		}

		if IsQuotaExceeded(err) {
			c.metrics.RecordQuotaExceeded(platformLabel)
			if quotaRetries < maxQuotaRetries {
				quotaRetries++
				c.log.Warn("quota exceeded, pausing before retry",
					"path", path, "quota_retry", quotaRetries)
				c.sleep(quotaRetryDelay)
				continue
			}
			c.metrics.RecordAPIRequest(platformLabel, "quota")
			return nil, err
		}

		if retryable && attempt+1 < maxAttempts {
			attempt++
			c.metrics.RecordAPIRetry(platformLabel)
			c.log.Debug("transient error, backing off",
				"path", path, "attempt", attempt, "backoff", backoff, "error", err)
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		c.metrics.RecordAPIRequest(platformLabel, "error")
		return nil, err
	}
}

// attempt runs a single signed request. The second return value says
// whether the error is transient and may be retried.
func (c *Client) attempt(ctx context.Context, method, path string, params map[string]string, body string) (map[string]any, bool, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, false, err
	}

	headers := c.signer.Sign(method, path, params, body, token, c.now())

	reqURL := &url.URL{
		Scheme:   "https",
		Host:     c.cfg.Host(),
		Path:     path,
		RawQuery: canonicalQueryString(params),
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &NetworkError{Op: "read " + path, Err: err}
	}

	if resp.StatusCode >= 400 {
		text := string(respBody)
		if bodySignalsQuota(text) {
			return nil, false, &QuotaExceededError{Path: path, Body: truncate(text, 500)}
		}
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Path:      path,
			Body:      truncate(text, 1000),
			RequestID: requestID(resp.Header),
		}
		return nil, transientStatuses[resp.StatusCode], apiErr
	}

	if len(respBody) == 0 {
		return map[string]any{}, false, nil
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, false, &APIError{
			Status: resp.StatusCode,
			Path:   path,
			Body:   "response is not JSON: " + truncate(string(respBody), 200),
		}
	}

	return result, false, nil
}

func requestID(h http.Header) string {
	if id := h.Get("x-amzn-RequestId"); id != "" {
		return id
	}
	return h.Get("x-amz-request-id")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
