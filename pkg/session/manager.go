package session

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/logger"
)

// Manager owns the set of live sessions for one feature. Lookups,
// creation and removal are linearized by a single mutex over the map;
// event processing for one session id is serialized with Lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	ttl      time.Duration
}

const defaultTimeoutMinutes = 10

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		ttl:      defaultTimeoutMinutes * time.Minute,
	}
}

// SetTimeout reconfigures the inactivity time-to-live. It applies to
// all sessions, including ones already live.
func (m *Manager) SetTimeout(minutes int) {
	if minutes <= 0 {
		minutes = defaultTimeoutMinutes
	}
	m.mu.Lock()
	m.ttl = time.Duration(minutes) * time.Minute
	m.mu.Unlock()
}

// DeriveID computes the deterministic session id for an inbound event.
// The same user in the same chat on the same channel always maps to the
// same id, so an in-flight session is resumed rather than duplicated.
// The id is a short hex digest because it is embedded in callback
// tokens, which platforms cap at a few dozen bytes.
func DeriveID(ownerID string, ev bus.InboundEvent) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", ownerID, ev.Channel, ev.Source, ev.UserID, ev.ChatID)
	return fmt.Sprintf("%016x", h.Sum64())
}

// GetOrCreate resolves the event to its session, creating a fresh one
// in the start state when none is live (never created, ended, or
// expired). It only touches the map; the caller absorbs the event's
// delivery context under Lock.
func (m *Manager) GetOrCreate(ev bus.InboundEvent, ownerID string) *Session {
	id := DeriveID(ownerID, ev)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok && m.expired(s) {
		delete(m.sessions, id)
		ok = false
	}
	if !ok {
		s = newSession(id, ownerID)
		m.sessions[id] = s
		logger.DebugCF("session", "Session created", map[string]any{
			"session_id": id,
			"channel":    ev.Channel,
			"user_id":    ev.UserID,
		})
	}
	return s
}

// Get returns the live session for id, or nil. An expired session is
// indistinguishable from one that never existed.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if m.expired(s) {
		delete(m.sessions, id)
		return nil
	}
	return s
}

// End removes the session from the live set. Idempotent.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.locks, id)
}

// Len reports the number of live sessions, expired ones included until
// the next lookup or sweep touches them.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// expired reads only the atomic activity clock, so it is safe to call
// while a handler holds the session's lock.
func (m *Manager) expired(s *Session) bool {
	return time.Since(s.LastActive()) > m.ttl
}

// Sweep drops every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			delete(m.locks, id)
			removed++
		}
	}
	return removed
}

// Lock serializes processing for one session id and returns the unlock
// function. Channel adapters may deliver events concurrently; a
// session's mutations must not interleave.
func (m *Manager) Lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// RunSweeper sweeps expired sessions on the given cron schedule until
// stop is closed. The expression is assumed pre-validated by config.
func (m *Manager) RunSweeper(stop <-chan struct{}, schedule string) {
	if schedule == "" {
		return
	}
	for {
		next, err := gronx.NextTick(schedule, false)
		if err != nil {
			logger.ErrorCF("session", "Sweep schedule evaluation failed", map[string]any{
				"schedule": schedule,
				"error":    err.Error(),
			})
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			if n := m.Sweep(); n > 0 {
				logger.DebugCF("session", "Swept expired sessions", map[string]any{"count": n})
			}
		}
	}
}
