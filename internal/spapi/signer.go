package spapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Signer computes request signatures compatible with AWS Signature
// Version 4. It is stateless: the same inputs at the same timestamp
// always yield the same headers.
type Signer struct {
	accessKey string
	secretKey string
	region    string
	host      string
}

// NewSigner builds a Signer from the client configuration.
func NewSigner(cfg Config) *Signer {
	return &Signer{
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		region:    cfg.SigningRegion(),
		host:      cfg.Host(),
	}
}

// Sign returns the headers for a signed request. The query parameters
// must be exactly those sent on the wire; they are canonicalized
// (sorted keys, RFC 3986 escaping) before signing so the signature
// matches the request.
func (s *Signer) Sign(method, path string, query map[string]string, body, token string, at time.Time) map[string]string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	at = at.UTC()
	amzDate := at.Format("20060102T150405Z")
	dateStamp := at.Format("20060102")

	canonicalQuery := canonicalQueryString(query)

	payloadHash := hexSHA256([]byte(body))

	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\nx-amz-access-token:%s\n", s.host, amzDate, token)
	signedHeaders := "host;x-amz-date;x-amz-access-token"

	canonicalRequest := strings.Join([]string{
		method,
		path,
		canonicalQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	algorithm := "AWS4-HMAC-SHA256"
	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, s.region, signingService)
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		credentialScope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+s.secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, s.region)
	kService := hmacSHA256(kRegion, signingService)
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	authorization := fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, s.accessKey, credentialScope, signedHeaders, signature,
	)

	return map[string]string{
		"host":               s.host,
		"x-amz-date":         amzDate,
		"x-amz-access-token": token,
		"Authorization":      authorization,
		"content-type":       "application/json",
		"user-agent":         userAgent,
	}
}

func canonicalQueryString(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, escapeRFC3986(k)+"="+escapeRFC3986(query[k]))
	}
	return strings.Join(parts, "&")
}

// escapeRFC3986 percent-encodes everything except unreserved
// characters (ALPHA / DIGIT / "-" / "." / "_" / "~").
func escapeRFC3986(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
