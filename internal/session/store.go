package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/duetrack/duetrack/internal/mirror"
)

// mirrorKey is where the session envelope lives in the durable mirror.
const mirrorKey = "session/current"

// envelope is the full value written to the mirror on every change. A nil
// Record with a non-zero WrittenAt is a clear tombstone: it propagates
// logout to other tabs as an explicit clear, never as a stale-record read,
// and its timestamp lets clears win over slower writes.
type envelope struct {
	Record    *Record `json:"record"`
	WrittenAt int64   `json:"writtenAt"` // unix nanoseconds
}

// Store keeps the in-memory session value for one tab and reconciles it
// with the shared durable mirror. Last write wins across tabs; a clear
// beats any write whose timestamp precedes it.
type Store struct {
	mirror mirror.Mirror
	logger *slog.Logger
	nowFn  func() time.Time

	mu        sync.Mutex
	current   *Record
	loaded    bool
	clearedAt int64
	handlers  []func(*Record)

	cancelWatch func()
}

// NewStore creates a session store over the given mirror handle and starts
// observing external changes.
func NewStore(m mirror.Mirror, logger *slog.Logger) *Store {
	s := &Store{
		mirror: m,
		logger: logger,
		nowFn:  time.Now,
	}
	s.cancelWatch = m.Watch(s.onMirrorEvent)
	return s
}

// Load returns the current session record, or nil when logged out.
// Corrupt mirror data reads as absent, never as an error.
func (s *Store) Load(ctx context.Context) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.reloadLocked(ctx)
	}
	return s.current
}

// Set writes the record to memory and the durable mirror. A set that races
// a newer clear is dropped: the clear wins and the session stays gone.
func (s *Store) Set(ctx context.Context, rec *Record) error {
	if rec == nil {
		return s.Clear(ctx)
	}

	now := s.nowFn()
	rec.UpdatedAt = now
	ts := now.UnixNano()

	s.mu.Lock()
	if ts <= s.clearedAt {
		s.mu.Unlock()
		s.logger.Debug("session write dropped, clear is newer", "user", rec.UserID)
		return nil
	}
	s.current = rec
	s.loaded = true
	s.mu.Unlock()

	return s.writeEnvelope(ctx, envelope{Record: rec, WrittenAt: ts})
}

// Clear removes the session from memory and the mirror. Other tabs observe
// the tombstone and drop their copies.
func (s *Store) Clear(ctx context.Context) error {
	ts := s.nowFn().UnixNano()

	s.mu.Lock()
	if ts > s.clearedAt {
		s.clearedAt = ts
	}
	s.current = nil
	s.loaded = true
	s.mu.Unlock()

	return s.writeEnvelope(ctx, envelope{WrittenAt: ts})
}

// OnExternalChange registers a handler invoked when another tab's write or
// clear is observed. The handler receives the new record (nil on clear).
func (s *Store) OnExternalChange(fn func(*Record)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// Close stops observing the mirror.
func (s *Store) Close() {
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
}

func (s *Store) writeEnvelope(ctx context.Context, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.mirror.Set(ctx, mirrorKey, payload)
}

// reloadLocked reads the envelope from the mirror. Caller holds s.mu.
func (s *Store) reloadLocked(ctx context.Context) {
	s.loaded = true

	data, err := s.mirror.Get(ctx, mirrorKey)
	if err != nil || data == nil {
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("session mirror corrupt, treating as absent", "error", err)
		return
	}
	s.applyLocked(env)
}

// applyLocked merges an envelope into local state. Caller holds s.mu.
// Returns true when the visible value changed.
func (s *Store) applyLocked(env envelope) bool {
	if env.Record == nil {
		if env.WrittenAt > s.clearedAt {
			s.clearedAt = env.WrittenAt
		}
		changed := s.current != nil
		s.current = nil
		return changed
	}

	// A write older than the last observed clear cannot resurrect the session.
	if env.WrittenAt <= s.clearedAt {
		return false
	}
	s.current = env.Record
	return true
}

func (s *Store) onMirrorEvent(ev mirror.Event) {
	if ev.Key != mirrorKey {
		return
	}

	var env envelope
	if ev.Value != nil {
		if err := json.Unmarshal(ev.Value, &env); err != nil {
			s.logger.Warn("ignoring corrupt session change", "origin", ev.Origin, "error", err)
			return
		}
	} else {
		// Key deleted outright: treat as a clear stamped now.
		env = envelope{WrittenAt: s.nowFn().UnixNano()}
	}

	s.mu.Lock()
	s.loaded = true
	changed := s.applyLocked(env)
	rec := s.current
	handlers := make([]func(*Record), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range handlers {
		fn(rec)
	}
}
