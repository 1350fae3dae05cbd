package session

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-edit/internal/upload"
)

type countingStore struct {
	mu     sync.Mutex
	next   int
	active map[string]bool
}

func (s *countingStore) Acquire(ctx context.Context, c upload.Candidate) (upload.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := "p" + strconv.Itoa(s.next)
	s.active[id] = true
	return upload.Handle{ID: id, URL: "/preview/" + id}, nil
}

func (s *countingStore) Release(h upload.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, h.ID)
	return nil
}

func (s *countingStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

type clip struct{}

func (clip) Name() string                 { return "clip.mp4" }
func (clip) MediaType() string            { return "video/mp4" }
func (clip) Size() int64                  { return 3 }
func (clip) Open() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte("abc"))), nil }

func newTestManager(ttl time.Duration) (*Manager, *countingStore) {
	store := &countingStore{active: make(map[string]bool)}
	m := NewManager(ManagerConfig{
		Factory: func(string) *upload.Widget { return upload.New(store) },
		TTL:     ttl,
	})
	return m, store
}

func drop(t *testing.T, m *Manager, id string) {
	t.Helper()
	err := m.Do(id, func(w *upload.Widget) error {
		return w.Drop(context.Background(), []upload.Candidate{clip{}})
	})
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
}

func TestManager_EnsureIssuesCookie(t *testing.T) {
	m, _ := newTestManager(0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	id := m.Ensure(rr, req)
	if id == "" {
		t.Fatal("Ensure() returned empty id")
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != id {
		t.Fatalf("cookies = %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	if got := m.Ensure(rr, req); got != id {
		t.Errorf("Ensure() = %q, want existing %q", got, id)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("Ensure() should not reissue a valid cookie")
	}
}

func TestManager_EnsureRejectsMalformedCookie(t *testing.T) {
	m, _ := newTestManager(0)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "../../not-a-uuid"})
	rr := httptest.NewRecorder()

	if got := m.Ensure(rr, req); got == "../../not-a-uuid" {
		t.Fatal("Ensure() accepted a malformed session id")
	}
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m, _ := newTestManager(0)

	drop(t, m, "a")

	if m.View("a").State != upload.StatePopulated {
		t.Error("session a should be populated")
	}
	if m.View("b").State != upload.StateIdle {
		t.Error("session b should be idle")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestManager_OwnsPreview(t *testing.T) {
	m, _ := newTestManager(0)
	drop(t, m, "a")
	m.View("b")

	pid := m.View("a").PreviewID
	if !m.OwnsPreview("a", pid) {
		t.Error("session a should own its preview")
	}
	if m.OwnsPreview("b", pid) {
		t.Error("session b must not own session a's preview")
	}
	if m.OwnsPreview("missing", pid) {
		t.Error("unknown session must not own a preview")
	}
}

func TestManager_EndReleasesPreview(t *testing.T) {
	m, store := newTestManager(0)
	drop(t, m, "a")

	if !m.End("a") {
		t.Fatal("End() = false for a live session")
	}
	if store.Active() != 0 {
		t.Errorf("active previews = %d, want 0", store.Active())
	}
	if m.End("a") {
		t.Error("End() = true for an ended session")
	}
	if m.View("a").State != upload.StateIdle {
		t.Error("a fresh widget should be idle")
	}
}

func TestManager_Reap(t *testing.T) {
	m, store := newTestManager(time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	drop(t, m, "old")
	m.now = func() time.Time { return base.Add(50 * time.Second) }
	drop(t, m, "fresh")

	if n := m.Reap(base.Add(90 * time.Second)); n != 1 {
		t.Fatalf("Reap() = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if store.Active() != 1 {
		t.Errorf("active previews = %d, want 1", store.Active())
	}
}

func TestManager_ReapDisabled(t *testing.T) {
	m, _ := newTestManager(0)
	drop(t, m, "a")

	if n := m.Reap(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Errorf("Reap() = %d, want 0 with no TTL", n)
	}
}

func TestManager_CloseAll(t *testing.T) {
	m, store := newTestManager(0)
	drop(t, m, "a")
	drop(t, m, "b")

	m.CloseAll()

	if m.Len() != 0 || store.Active() != 0 {
		t.Errorf("Len() = %d active = %d", m.Len(), store.Active())
	}
}

func TestManager_ConcurrentEventsSerialized(t *testing.T) {
	m, store := newTestManager(0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drop(t, m, "a")
		}()
	}
	wg.Wait()

	if store.Active() != 1 {
		t.Errorf("active previews = %d, want 1 after replacements", store.Active())
	}
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m, _ := newTestManager(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
