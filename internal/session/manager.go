// Package session keeps one upload widget per browser session and applies
// that session's events one at a time.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-edit/internal/logging"
	"github.com/heimdex/heimdex-edit/internal/upload"
)

const CookieName = "heimdex_edit_session"

// Factory builds the widget for a new session.
type Factory func(sessionID string) *upload.Widget

type entry struct {
	mu       sync.Mutex
	widget   *upload.Widget
	lastSeen time.Time
}

type Manager struct {
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type ManagerConfig struct {
	Factory Factory
	TTL     time.Duration
	Logger  *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		factory:  cfg.Factory,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// SessionID returns the session id carried by the request cookie, if it is
// well formed.
func SessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// Ensure returns the caller's session id, issuing a new cookie when the
// request has none.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id, ok := SessionID(r); ok {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Do runs fn with the session's widget, creating the widget on first use.
// Calls for the same session never overlap.
func (m *Manager) Do(id string, fn func(w *upload.Widget) error) error {
	for {
		e := m.acquire(id)
		e.mu.Lock()
		if e.widget.Closed() {
			e.mu.Unlock()
			continue
		}
		err := fn(e.widget)
		e.mu.Unlock()
		return err
	}
}

func (m *Manager) acquire(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		e = &entry{widget: m.factory(id)}
		m.sessions[id] = e
		if m.logger != nil {
			logging.WithSessionID(m.logger, id).Debug("session started")
		}
	}
	e.lastSeen = m.now()
	return e
}

// View returns the session's current view.
func (m *Manager) View(id string) upload.View {
	var v upload.View
	m.Do(id, func(w *upload.Widget) error {
		v = w.View()
		return nil
	})
	return v
}

// OwnsPreview reports whether previewID is the live preview of session id.
func (m *Manager) OwnsPreview(id, previewID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.widget.Closed() && e.widget.View().PreviewID == previewID
}

// End tears a session's widget down. It reports whether the session existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.close(id, e, "ended")
	return true
}

// Reap ends sessions idle for longer than the TTL and returns how many it
// ended.
func (m *Manager) Reap(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-m.ttl)

	expired := make(map[string]*entry)
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			expired[id] = e
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for id, e := range expired {
		m.close(id, e, "expired")
	}
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(m.now()); n > 0 && m.logger != nil {
				m.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range sessions {
		m.close(id, e, "shutdown")
	}
}

func (m *Manager) close(id string, e *entry, reason string) {
	e.mu.Lock()
	e.widget.Close()
	e.mu.Unlock()

	if m.logger != nil {
		logging.WithSessionID(m.logger, id).Debug("session closed", "reason", reason)
	}
}
