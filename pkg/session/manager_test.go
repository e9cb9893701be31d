package session

import (
	"sync"
	"testing"
	"time"

	"github.com/menuflow/qbremote/pkg/bus"
)

func testEvent() bus.InboundEvent {
	return bus.InboundEvent{
		Channel: "telegram",
		Source:  "bot1",
		UserID:  "42",
		ChatID:  "1001",
	}
}

func backdate(s *Session, d time.Duration) {
	s.lastActive.Store(time.Now().Add(-d).UnixNano())
}

func TestDeriveIDDeterministic(t *testing.T) {
	ev := testEvent()
	a := DeriveID("torrents", ev)
	b := DeriveID("torrents", ev)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%s)", len(a), a)
	}

	ev2 := ev
	ev2.UserID = "43"
	if DeriveID("torrents", ev2) == a {
		t.Fatal("different user produced same id")
	}
	if DeriveID("settings", ev) == a {
		t.Fatal("different owner produced same id")
	}
}

func TestGetOrCreateResumesSession(t *testing.T) {
	m := NewManager()
	ev := testEvent()

	s1 := m.GetOrCreate(ev, "torrents")
	s1.GoTo("tasks")
	s1.Business.Page = 1

	s2 := m.GetOrCreate(ev, "torrents")
	if s1 != s2 {
		t.Fatal("expected the same session instance")
	}
	if s2.Business.CurrentView != "tasks" || s2.Business.Page != 1 {
		t.Fatalf("state lost on resume: view=%s page=%d", s2.Business.CurrentView, s2.Business.Page)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", m.Len())
	}
}

func TestGetExpiredReturnsNil(t *testing.T) {
	m := NewManager()
	m.SetTimeout(10)
	ev := testEvent()

	s := m.GetOrCreate(ev, "torrents")
	backdate(s, 11*time.Minute)

	if got := m.Get(s.ID); got != nil {
		t.Fatal("expired session should be indistinguishable from a missing one")
	}
	if m.Len() != 0 {
		t.Fatalf("expired session not removed, len=%d", m.Len())
	}
}

func TestGetOrCreateReplacesExpired(t *testing.T) {
	m := NewManager()
	ev := testEvent()

	s := m.GetOrCreate(ev, "torrents")
	s.GoTo("tasks")
	backdate(s, time.Hour)

	fresh := m.GetOrCreate(ev, "torrents")
	if fresh.Business.CurrentView != ViewStart {
		t.Fatalf("expected a fresh session in %s, got %s", ViewStart, fresh.Business.CurrentView)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate(testEvent(), "torrents")

	m.End(s.ID)
	m.End(s.ID)

	if m.Get(s.ID) != nil {
		t.Fatal("session still live after End")
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	m := NewManager()
	stale := m.GetOrCreate(testEvent(), "torrents")
	backdate(stale, time.Hour)

	ev2 := testEvent()
	ev2.UserID = "43"
	m.GetOrCreate(ev2, "torrents")

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 survivor, got %d", m.Len())
	}
}

func TestSetTimeoutAppliesToLiveSessions(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate(testEvent(), "torrents")
	backdate(s, 2*time.Minute)

	if m.Get(s.ID) == nil {
		t.Fatal("session should be live under the default timeout")
	}

	m.SetTimeout(1)
	if m.Get(s.ID) != nil {
		t.Fatal("session should have expired under the shortened timeout")
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	m := NewManager()
	ev := testEvent()

	var wg sync.WaitGroup
	results := make([]*Session, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate(ev, "torrents")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent creation produced distinct sessions for one id")
		}
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
}

func TestGetOrCreateLeavesDeliveryContextAlone(t *testing.T) {
	m := NewManager()
	ev := testEvent()

	s := m.GetOrCreate(ev, "torrents")
	if s.Message.Channel != "" || s.Message.UserID != "" {
		t.Fatalf("delivery context set outside the session lock: %+v", s.Message)
	}

	unlock := m.Lock(s.ID)
	s.UpdateMessageContext(ev)
	unlock()

	if s.Message.Channel != "telegram" || s.Message.UserID != "42" {
		t.Fatalf("delivery context not absorbed: %+v", s.Message)
	}
}

func TestSweepRunsWhileSessionLocked(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate(testEvent(), "torrents")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				m.Sweep()
				m.Get(s.ID)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		unlock := m.Lock(s.ID)
		s.UpdateActivity()
		unlock()
	}
	close(done)
	wg.Wait()

	if m.Get(s.ID) == nil {
		t.Fatal("active session swept")
	}
}

func TestLockSerializesProcessing(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate(testEvent(), "torrents")

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(s.ID)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("lost updates under Lock: %d", counter)
	}
}
