package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenSafetyMargin is subtracted from the reported TTL so a token is
// never used right at the edge of its expiry.
const tokenSafetyMargin = 60 * time.Second

// TokenCache obtains and caches a bearer token from the refresh
// endpoint. Concurrent callers during a refresh share the single
// in-flight request.
type TokenCache struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenCache creates a TokenCache using the given HTTP client.
func NewTokenCache(cfg Config, httpClient *http.Client) *TokenCache {
	return &TokenCache{
		cfg:        cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// GetToken returns a cached token while it is still valid, refreshing
// it synchronously otherwise. Refresh failures surface as *AuthError.
func (t *TokenCache) GetToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt) {
		return t.token, nil
	}

	token, expiresIn, err := t.refresh(ctx)
	if err != nil {
		return "", err
	}

	t.token = token
	t.expiresAt = t.now().Add(expiresIn - tokenSafetyMargin)

	return token, nil
}

// Invalidate drops the cached token, forcing a refresh on next use.
func (t *TokenCache) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expiresAt = time.Time{}
}

func (t *TokenCache) refresh(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", t.cfg.RefreshToken)
	form.Set("client_id", t.cfg.ClientID)
	form.Set("client_secret", t.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, &AuthError{Message: fmt.Sprintf("token request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: fmt.Sprintf("failed to read token response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: fmt.Sprintf("invalid token response: %v", err)}
	}
	if payload.AccessToken == "" {
		return "", 0, &AuthError{Status: resp.StatusCode, Message: "token response without access_token"}
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return payload.AccessToken, time.Duration(expiresIn) * time.Second, nil
}
