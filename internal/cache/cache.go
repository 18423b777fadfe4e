// Package cache provides a small key/value cache layer with TTL, used
// for auth tokens and expensive API responses. Keys are derived from a
// namespace plus a payload so callers never build raw keys by hand.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Store is the cache backend contract. Implementations must degrade
// gracefully: a broken backend returns misses and swallows writes
// rather than failing the caller.
type Store interface {
	Get(ctx context.Context, namespace string, payload map[string]string) (string, bool)
	Set(ctx context.Context, namespace string, payload map[string]string, value string, ttl time.Duration)
}

// Key derives a deterministic cache key from a namespace and payload.
// The payload is serialized with sorted keys so equal payloads always
// hash to the same key.
func Key(namespace string, payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, payload[k]})
	}

	raw, err := json.Marshal(ordered)
	if err != nil {
		raw = []byte(fmt.Sprint(ordered))
	}
	sum := sha256.Sum256(raw)
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Noop is the Store used when no cache backend is configured. Every
// read misses and every write is discarded.
type Noop struct{}

// NewNoop returns a Store that caches nothing.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Get(_ context.Context, _ string, _ map[string]string) (string, bool) {
	return "", false
}

func (n *Noop) Set(_ context.Context, _ string, _ map[string]string, _ string, _ time.Duration) {
}
