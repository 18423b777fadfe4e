package spapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerIsDeterministic(t *testing.T) {
	t.Parallel()

	signer := NewSigner(testConfig())
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	query := map[string]string{"keywords": "dog bed", "pageSize": "20"}

	first := signer.Sign("GET", "/catalog/2022-04-01/items", query, "", "tok", at)
	second := signer.Sign("GET", "/catalog/2022-04-01/items", query, "", "tok", at)

	assert.Equal(t, first, second)
}

func TestSignerHeaders(t *testing.T) {
	t.Parallel()

	signer := NewSigner(testConfig())
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	headers := signer.Sign("GET", "/catalog/2022-04-01/items", nil, "", "tok", at)

	assert.Equal(t, testHost, headers["host"])
	assert.Equal(t, "20260301T123045Z", headers["x-amz-date"])
	assert.Equal(t, "tok", headers["x-amz-access-token"])

	auth := headers["Authorization"]
	require.NotEmpty(t, auth)
	assert.Contains(t, auth, "AWS4-HMAC-SHA256 Credential=AKIATEST/20260301/us-east-1/execute-api/aws4_request")
	assert.Contains(t, auth, "SignedHeaders=host;x-amz-date;x-amz-access-token")
	assert.Contains(t, auth, "Signature=")
}

func TestSignerChangesWithInput(t *testing.T) {
	t.Parallel()

	signer := NewSigner(testConfig())
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	base := signer.Sign("GET", "/path", map[string]string{"a": "1"}, "", "tok", at)

	tests := []struct {
		name  string
		other map[string]string
	}{
		{"different query value", signer.Sign("GET", "/path", map[string]string{"a": "2"}, "", "tok", at)},
		{"different path", signer.Sign("GET", "/other", map[string]string{"a": "1"}, "", "tok", at)},
		{"different token", signer.Sign("GET", "/path", map[string]string{"a": "1"}, "", "tok2", at)},
		{"different time", signer.Sign("GET", "/path", map[string]string{"a": "1"}, "", "tok", at.Add(time.Second))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base["Authorization"], tt.other["Authorization"])
		})
	}
}

func TestSigningRegionMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		region string
		want   string
	}{
		{"na", "us-east-1"},
		{"eu", "eu-west-1"},
		{"fe", "us-west-2"},
		{"", "us-east-1"},
		{"unknown", "us-east-1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run("region "+tt.region, func(t *testing.T) {
			t.Parallel()
			cfg := Config{Region: tt.region}
			assert.Equal(t, tt.want, cfg.SigningRegion())
		})
	}
}

func TestCanonicalQueryString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query map[string]string
		want  string
	}{
		{"nil", nil, ""},
		{"sorted keys", map[string]string{"b": "2", "a": "1"}, "a=1&b=2"},
		{"space escaped", map[string]string{"q": "dog bed"}, "q=dog%20bed"},
		{"unreserved kept", map[string]string{"k": "a-b_c.d~e"}, "k=a-b_c.d~e"},
		{"reserved escaped", map[string]string{"k": "a+b/c:d"}, "k=a%2Bb%2Fc%3Ad"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, canonicalQueryString(tt.query))
		})
	}
}
