package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/duetrack/duetrack/internal/idgen"
)

// changeMsg is published on the events channel after every write.
type changeMsg struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Deleted bool   `json:"deleted,omitempty"`
}

// RedisMirror is a Redis-backed mirror. Values live under namespaced keys;
// change notifications travel over a pub/sub channel and carry the writer's
// origin id so subscribers can skip their own writes. Watchers re-read the
// value on every event rather than trusting the published payload.
type RedisMirror struct {
	client *redis.Client
	ns     string
	origin string
	logger *slog.Logger

	mu       sync.RWMutex
	watchers []func(Event)

	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedis opens a Redis-backed mirror handle under the given namespace.
func NewRedis(client *redis.Client, namespace string, logger *slog.Logger) (*RedisMirror, error) {
	if client == nil {
		return nil, errors.New("mirror: nil redis client")
	}
	if namespace == "" {
		namespace = "duetrack"
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &RedisMirror{
		client: client,
		ns:     namespace,
		origin: idgen.Hex(6),
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.sub = client.Subscribe(ctx, m.channel())
	// Force the subscription before returning so no event is missed
	// between construction and the first Watch.
	if _, err := m.sub.Receive(ctx); err != nil {
		cancel()
		return nil, err
	}

	go m.receiveLoop(ctx)
	return m, nil
}

func (m *RedisMirror) channel() string { return m.ns + ":changes" }
func (m *RedisMirror) k(key string) string {
	return m.ns + ":" + key
}

func (m *RedisMirror) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := m.client.Get(ctx, m.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

func (m *RedisMirror) Set(ctx context.Context, key string, value []byte) error {
	if err := m.client.Set(ctx, m.k(key), value, 0).Err(); err != nil {
		return err
	}
	return m.publish(ctx, changeMsg{Key: key, Origin: m.origin})
}

func (m *RedisMirror) Delete(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, m.k(key)).Err(); err != nil {
		return err
	}
	return m.publish(ctx, changeMsg{Key: key, Origin: m.origin, Deleted: true})
}

func (m *RedisMirror) publish(ctx context.Context, msg changeMsg) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, m.channel(), payload).Err()
}

func (m *RedisMirror) Watch(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	idx := len(m.watchers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.watchers) {
			m.watchers[idx] = func(Event) {}
		}
	}
}

func (m *RedisMirror) receiveLoop(ctx context.Context) {
	defer close(m.done)

	ch := m.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg changeMsg
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				m.logger.Warn("mirror: bad change message", "error", err)
				continue
			}
			if msg.Origin == m.origin {
				continue
			}

			ev := Event{Key: msg.Key, Origin: msg.Origin}
			if !msg.Deleted {
				v, err := m.Get(ctx, msg.Key)
				if err != nil {
					m.logger.Warn("mirror: re-read after change failed", "key", msg.Key, "error", err)
					continue
				}
				ev.Value = v
			}

			m.mu.RLock()
			fns := make([]func(Event), len(m.watchers))
			copy(fns, m.watchers)
			m.mu.RUnlock()
			for _, fn := range fns {
				fn(ev)
			}
		}
	}
}

func (m *RedisMirror) Origin() string { return m.origin }

func (m *RedisMirror) Close() error {
	m.cancel()
	err := m.sub.Close()
	<-m.done
	return err
}

var _ Mirror = (*RedisMirror)(nil)
