package menu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/capability"
	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/downloader"
	"github.com/menuflow/qbremote/pkg/ratelimit"
	"github.com/menuflow/qbremote/pkg/session"
)

func newTestEngine(t *testing.T, dls *downloader.Registry, rl ratelimit.Config) (*Engine, *bus.MessageBus, *session.Manager) {
	t.Helper()
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	sm := session.NewManager()
	e := NewEngine(mb, sm, dls, capability.Defaults(), ratelimit.NewLimiter(rl), config.EngineConfig{}, "test")
	return e, mb, sm
}

func nextDirective(t *testing.T, mb *bus.MessageBus) bus.OutboundDirective {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, ok := mb.SubscribeOutbound(ctx)
	require.True(t, ok, "expected a directive")
	return d
}

func noDirective(t *testing.T, mb *bus.MessageBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if d, ok := mb.SubscribeOutbound(ctx); ok {
		t.Fatalf("unexpected directive: %+v", d)
	}
}

func commandEvent() bus.InboundEvent {
	return bus.InboundEvent{
		Channel:   "telegram",
		Source:    "bot1",
		UserID:    "7",
		Username:  "alice",
		ChatID:    "100",
		MessageID: "9",
		Kind:      bus.EventCommand,
		Text:      "/qbremote",
	}
}

func TestCommandOpensMenu(t *testing.T) {
	e, mb, sm := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())

	require.NoError(t, e.HandleEvent(commandEvent()))

	del := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveDelete, del.Kind)
	assert.Equal(t, "9", del.MessageID)

	menu := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveSend, menu.Kind)
	assert.Equal(t, "100", menu.ChatID)
	assert.Contains(t, menu.Text, "qBittorrent Remote")
	assert.NotEmpty(t, menu.Buttons)

	sid := session.DeriveID(engineOwner, commandEvent())
	s := sm.Get(sid)
	require.NotNil(t, s)
	assert.Equal(t, ViewStart, s.Business.CurrentView)
}

func TestCommandSubcommandJumpsToView(t *testing.T) {
	e, mb, sm := newTestEngine(t, fakeRegistry(&fakeAccessor{name: "main"}), ratelimit.DefaultConfig())

	ev := commandEvent()
	ev.Text = "/qbremote downloaders"
	require.NoError(t, e.HandleEvent(ev))

	nextDirective(t, mb) // delete of the slash message
	menu := nextDirective(t, mb)
	assert.Contains(t, menu.Text, "Downloaders")

	s := sm.Get(session.DeriveID(engineOwner, ev))
	require.NotNil(t, s)
	assert.Equal(t, ViewDownloaderMenu, s.Business.CurrentView)
}

func TestNonCommandTextIgnored(t *testing.T) {
	e, mb, _ := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())

	ev := commandEvent()
	ev.Text = "hello there"
	require.NoError(t, e.HandleEvent(ev))
	noDirective(t, mb)
}

func TestCallbackNavigates(t *testing.T) {
	e, mb, sm := newTestEngine(t, fakeRegistry(&fakeAccessor{name: "main"}), ratelimit.DefaultConfig())

	require.NoError(t, e.HandleEvent(commandEvent()))
	nextDirective(t, mb)
	nextDirective(t, mb)

	sid := session.DeriveID(engineOwner, commandEvent())
	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.MessageID = "50"
	cb.Text = "qbr|" + sid + "|gt|dm|"

	require.NoError(t, e.HandleEvent(cb))

	d := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveEdit, d.Kind)
	assert.Equal(t, "50", d.MessageID)
	assert.NotEmpty(t, d.Buttons)

	s := sm.Get(sid)
	require.NotNil(t, s)
	assert.Equal(t, ViewDownloaderMenu, s.Business.CurrentView)
}

func TestCallbackOnExpiredSessionEditsInPlace(t *testing.T) {
	e, mb, _ := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())

	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.MessageID = "50"
	cb.Text = "qbr|ffffffffffffffff|gt|dm|"

	require.NoError(t, e.HandleEvent(cb))

	d := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveEdit, d.Kind)
	assert.Equal(t, "50", d.MessageID)
	assert.Contains(t, d.Text, "expired")
	assert.Empty(t, d.Buttons, "an expired menu keeps no live buttons")
}

func TestCallbackFromOtherUserDropped(t *testing.T) {
	e, mb, _ := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())

	require.NoError(t, e.HandleEvent(commandEvent()))
	nextDirective(t, mb)
	nextDirective(t, mb)

	sid := session.DeriveID(engineOwner, commandEvent())
	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.UserID = "999"
	cb.Text = "qbr|" + sid + "|gt|dm|"

	require.NoError(t, e.HandleEvent(cb))
	noDirective(t, mb)
}

func TestForeignCallbackIgnored(t *testing.T) {
	e, mb, _ := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())

	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.Text = "some-other-plugin:payload"

	require.NoError(t, e.HandleEvent(cb))
	noDirective(t, mb)
}

func TestCallbackWithUnknownCodesFallsBackToStart(t *testing.T) {
	e, mb, sm := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())

	require.NoError(t, e.HandleEvent(commandEvent()))
	nextDirective(t, mb)
	nextDirective(t, mb)

	sid := session.DeriveID(engineOwner, commandEvent())
	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.MessageID = "50"
	cb.Text = "qbr|" + sid + "|zz|dm|"

	require.NoError(t, e.HandleEvent(cb))

	d := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveEdit, d.Kind)
	assert.Contains(t, d.Text, "no longer valid")

	s := sm.Get(sid)
	require.NotNil(t, s)
	assert.Equal(t, ViewStart, s.Business.CurrentView)
}

func TestCloseFlow(t *testing.T) {
	e, mb, sm := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())
	e.SetCloseDeleteDelay(0)

	require.NoError(t, e.HandleEvent(commandEvent()))
	nextDirective(t, mb)
	nextDirective(t, mb)

	sid := session.DeriveID(engineOwner, commandEvent())
	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.MessageID = "50"
	cb.Text = "qbr|" + sid + "|cl|cl|"

	require.NoError(t, e.HandleEvent(cb))

	closing := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveEdit, closing.Kind)
	assert.Contains(t, closing.Text, "closed")
	assert.Empty(t, closing.Buttons)

	del := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveDelete, del.Kind)
	assert.Equal(t, "50", del.MessageID)

	assert.Nil(t, sm.Get(sid), "session ends with the menu")
}

func TestDeferredCloseDelete(t *testing.T) {
	e, mb, _ := newTestEngine(t, fakeRegistry(), ratelimit.DefaultConfig())
	e.SetCloseDeleteDelay(30 * time.Millisecond)

	require.NoError(t, e.HandleEvent(commandEvent()))
	nextDirective(t, mb)
	nextDirective(t, mb)

	sid := session.DeriveID(engineOwner, commandEvent())
	cb := commandEvent()
	cb.Kind = bus.EventCallback
	cb.MessageID = "50"
	cb.Text = "qbr|" + sid + "|cl|cl|"
	require.NoError(t, e.HandleEvent(cb))

	nextDirective(t, mb) // closing edit

	del := nextDirective(t, mb) // arrives after the delay
	assert.Equal(t, bus.DirectiveDelete, del.Kind)
}

func TestRateLimitedCommand(t *testing.T) {
	e, mb, _ := newTestEngine(t, fakeRegistry(), ratelimit.Config{
		Enabled:           true,
		CommandsPerMinute: 1,
		PerUserLimit:      false,
	})

	require.NoError(t, e.HandleEvent(commandEvent()))
	nextDirective(t, mb)
	nextDirective(t, mb)

	require.NoError(t, e.HandleEvent(commandEvent()))
	d := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveSend, d.Kind)
	assert.Contains(t, d.Text, "Too many")
}

func TestAllowlistBlocksUnknownUser(t *testing.T) {
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	sm := session.NewManager()
	e := NewEngine(mb, sm, fakeRegistry(), capability.Defaults(),
		ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		config.EngineConfig{AllowedUsers: config.FlexibleStringSlice{"alice"}}, "test")

	ev := commandEvent() // UserID 7, Username alice: allowed via username
	require.NoError(t, e.HandleEvent(ev))
	nextDirective(t, mb)
	nextDirective(t, mb)

	ev.UserID = "999"
	ev.Username = "mallory"
	require.NoError(t, e.HandleEvent(ev))
	d := nextDirective(t, mb)
	assert.Equal(t, bus.DirectiveSend, d.Kind)
	assert.Contains(t, d.Text, "not allowed")
	assert.Equal(t, 1, sm.Len(), "no session created for the denied user")
}
