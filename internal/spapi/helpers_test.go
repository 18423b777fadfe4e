package spapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/arbminer/arbminer/internal/logger"
)

const (
	testHost     = "api.platform-a.test"
	testTokenURL = "https://auth.platform-a.test/token"
)

func testConfig() Config {
	return Config{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RefreshToken:  "refresh-token",
		AccessKey:     "AKIATEST",
		SecretKey:     "secret",
		Region:        "na",
		MarketplaceID: "MKT",
		TokenURL:      testTokenURL,
		Endpoint:      testHost,
	}
}

// newTestClient wires a Client to httpmock with sleeps recorded
// instead of slept.
func newTestClient(t *testing.T, cfg Config) (*Client, *[]time.Duration) {
	t.Helper()

	c := NewClient(cfg, logger.NewNop(), nil)
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	sleeps := &[]time.Duration{}
	c.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }

	return c, sleeps
}

func stubTokenEndpoint(t *testing.T) {
	t.Helper()
	httpmock.RegisterResponder(http.MethodPost, testTokenURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		}))
}

func catalogURL() string {
	return "https://" + testHost + catalogItemsPath
}
