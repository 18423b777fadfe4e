// Package ebay implements the Platform-B Browse API client:
// client-credentials auth with cached tokens, listing search by
// identifier or keyword, and single-item detail lookups.
package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/arbminer/arbminer/internal/cache"
	"github.com/arbminer/arbminer/internal/logger"
)

const (
	tokenNamespace   = "ebay_app_token"
	oauthScope       = "https://api.ebay.com/oauth/api_scope"
	tokenPath        = "/identity/v1/oauth2/token"
	tokenGraceMargin = 60 * time.Second
)

// AppTokenSource obtains application (client credentials) tokens and
// caches them both in memory and in the shared cache backend, so
// restarts inside the token's lifetime reuse it. Cache failures fall
// back to requesting a fresh token.
type AppTokenSource struct {
	cfg        Config
	httpClient *http.Client
	store      cache.Store
	log        logger.Interface

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewAppTokenSource creates a token source. store may be a Noop.
func NewAppTokenSource(cfg Config, httpClient *http.Client, store cache.Store, log logger.Interface) *AppTokenSource {
	return &AppTokenSource{
		cfg:        cfg,
		httpClient: httpClient,
		store:      store,
		log:        log.WithComponent("ebay-auth"),
		now:        time.Now,
	}
}

// Token returns a valid application token, refreshing as needed.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	payload := map[string]string{"scope": oauthScope}
	if cached, ok := s.store.Get(ctx, tokenNamespace, payload); ok && cached != "" {
		// The backend TTL already accounts for the expiry margin, so a
		// hit is trusted for a short in-memory window.
		s.token = cached
		s.expiresAt = s.now().Add(time.Minute)
		return cached, nil
	}

	token, ttl, err := s.request(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = s.now().Add(ttl)
	s.store.Set(ctx, tokenNamespace, payload, token, ttl)

	return token, nil
}

func (s *AppTokenSource) request(ctx context.Context) (string, time.Duration, error) {
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		return "", 0, fmt.Errorf("missing client credentials")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.baseURL()+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Authorization", basicAuth(s.cfg.ClientID, s.cfg.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", 0, &RequestError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("invalid token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token response without access_token")
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 7200
	}
	ttl := time.Duration(expiresIn)*time.Second - tokenGraceMargin
	if ttl < time.Minute {
		ttl = time.Minute
	}

	return payload.AccessToken, ttl, nil
}

func basicAuth(clientID, clientSecret string) string {
	raw := clientID + ":" + clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
