// Package cache wraps the durable mirror with a read-through cache for
// reference data so the app stays usable while the backend is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/duetrack/duetrack/internal/metrics"
	"github.com/duetrack/duetrack/internal/mirror"
)

// StaleAfter is how old a cached payload may get before reads flag it as
// stale. Stale reads still succeed, the flag is advisory.
const StaleAfter = 24 * time.Hour

const keyPrefix = "cache/"

type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Layer stores JSON payloads under namespaced mirror keys with a capture
// timestamp.
type Layer struct {
	mirror mirror.Mirror
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewLayer(m mirror.Mirror, logger *slog.Logger) *Layer {
	return &Layer{mirror: m, logger: logger, nowFn: time.Now}
}

// Write stores the payload under the key, stamped with the current time.
func (l *Layer) Write(ctx context.Context, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Payload: raw, CachedAt: l.nowFn()})
	if err != nil {
		return err
	}
	return l.mirror.Set(ctx, keyPrefix+key, data)
}

// Read unmarshals the cached payload into out. ok is false on a miss or a
// corrupt entry; stale is true when the payload is older than StaleAfter.
func (l *Layer) Read(ctx context.Context, key string, out any) (stale, ok bool) {
	data, err := l.mirror.Get(ctx, keyPrefix+key)
	if err != nil || data == nil {
		metrics.CacheReadsTotal.WithLabelValues("miss").Inc()
		return false, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		l.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		_ = l.mirror.Delete(ctx, keyPrefix+key)
		metrics.CacheReadsTotal.WithLabelValues("miss").Inc()
		return false, false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		l.logger.Warn("cache payload corrupt, dropping", "key", key, "error", err)
		_ = l.mirror.Delete(ctx, keyPrefix+key)
		metrics.CacheReadsTotal.WithLabelValues("miss").Inc()
		return false, false
	}

	stale = l.nowFn().Sub(env.CachedAt) >= StaleAfter
	if stale {
		metrics.CacheReadsTotal.WithLabelValues("stale").Inc()
	} else {
		metrics.CacheReadsTotal.WithLabelValues("fresh").Inc()
	}
	return stale, true
}

// Invalidate drops one cached entry.
func (l *Layer) Invalidate(ctx context.Context, key string) error {
	return l.mirror.Delete(ctx, keyPrefix+key)
}
