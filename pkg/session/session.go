package session

import (
	"sync/atomic"
	"time"

	"github.com/menuflow/qbremote/pkg/bus"
)

// Distinguished view names. Every other view name is defined by whatever
// the owning feature registers.
const (
	ViewStart = "start"
	ViewClose = "close"
)

// MessageContext tracks where a session's conversation lives and which
// message was last rendered, so follow-up renders can edit in place and
// the close flow can delete the menu.
type MessageContext struct {
	Channel   string
	Source    string
	UserID    string
	Username  string
	ChatID    string
	MessageID string
}

// BusinessState is the feature-owned part of a session: the current
// view plus whatever the handlers stash. It is snapshotted by value on
// forward navigation, so all fields must be copyable; Extra is cloned
// explicitly.
type BusinessState struct {
	CurrentView    string
	Page           int
	TotalPages     int
	DownloaderName string
	Extra          map[string]string
}

func (b BusinessState) clone() BusinessState {
	c := b
	if b.Extra != nil {
		c.Extra = make(map[string]string, len(b.Extra))
		for k, v := range b.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Session is one user's ongoing menu interaction. Methods are not
// self-locking: callers hold the Manager's per-id lock, so only one
// goroutine touches a Session at a time. The activity clock is the one
// exception: it is atomic so expiry checks can read it while a handler
// holds the session.
type Session struct {
	ID      string
	OwnerID string

	Business BusinessState
	Message  MessageContext

	lastActive atomic.Int64

	// history holds one snapshot per view left via GoTo, keyed by the
	// view that was left. Snapshots are consumed by GoBack.
	history map[string]BusinessState
}

func newSession(id, ownerID string) *Session {
	s := &Session{
		ID:       id,
		OwnerID:  ownerID,
		Business: BusinessState{CurrentView: ViewStart},
		history:  make(map[string]BusinessState),
	}
	s.lastActive.Store(time.Now().UnixNano())
	return s
}

// GoTo switches to view, saving a snapshot of the state being left so
// GoBack can restore it. Pagination resets: the new view recomputes it.
func (s *Session) GoTo(view string) {
	s.history[s.Business.CurrentView] = s.Business.clone()
	s.Business.CurrentView = view
	s.Business.Page = 0
	s.Business.TotalPages = 0
}

// GoBack restores the snapshot saved for view and consumes it. Going
// back to the start view discards the whole back-stack. A missing
// snapshot (already consumed, or never saved) degrades to GoTo(start)
// so the session always lands in a known state.
func (s *Session) GoBack(view string) {
	prev, ok := s.history[view]
	if !ok {
		s.GoTo(ViewStart)
	} else {
		s.Business = prev
		delete(s.history, view)
	}
	if view == ViewStart {
		s.history = make(map[string]BusinessState)
	}
}

// PageNext advances the pagination cursor, clamped to the last page.
func (s *Session) PageNext() {
	if s.Business.TotalPages > 0 && s.Business.Page < s.Business.TotalPages-1 {
		s.Business.Page++
	}
}

// PagePrev moves the pagination cursor back, clamped to the first page.
func (s *Session) PagePrev() {
	if s.Business.Page > 0 {
		s.Business.Page--
	}
}

// LastActive reports when the session last saw an event.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// UpdateActivity refreshes the expiry clock.
func (s *Session) UpdateActivity() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Reset returns the session to a pristine start state, dropping the
// back-stack and any business state. The delivery context survives.
func (s *Session) Reset() {
	s.Business = BusinessState{CurrentView: ViewStart}
	s.history = make(map[string]BusinessState)
}

// UpdateMessageContext absorbs the delivery context of an inbound event
// and refreshes activity. Called for every event that reaches the
// session. Only callback events update the tracked message id: their
// message is the rendered menu, while a command event's message is the
// user's own text.
func (s *Session) UpdateMessageContext(ev bus.InboundEvent) {
	s.Message.Channel = ev.Channel
	s.Message.Source = ev.Source
	s.Message.UserID = ev.UserID
	s.Message.Username = ev.Username
	s.Message.ChatID = ev.ChatID
	if ev.Kind == bus.EventCallback && ev.MessageID != "" {
		s.Message.MessageID = ev.MessageID
	}
	s.UpdateActivity()
}

// HistoryLen reports how many back-snapshots the session holds.
func (s *Session) HistoryLen() int {
	return len(s.history)
}
