package menu

import (
	"context"
	"strings"
	"time"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/capability"
	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/downloader"
	"github.com/menuflow/qbremote/pkg/logger"
	"github.com/menuflow/qbremote/pkg/ratelimit"
	"github.com/menuflow/qbremote/pkg/session"
)

// engineOwner salts session ids so a future second menu feature in the
// same process cannot collide with this one.
const engineOwner = "qbremote"

const slashCommand = "/qbremote"

// defaultCloseDeleteDelay is how long the closing notice stays on
// screen before the menu message is deleted.
const defaultCloseDeleteDelay = 10 * time.Second

// Engine is the menu dispatcher. It consumes inbound events from the
// bus, drives session state through the handler, renders the resulting
// view and publishes delivery directives.
type Engine struct {
	bus      *bus.MessageBus
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	cfg      config.EngineConfig

	commands *Registry
	views    *Registry
	codec    *Codec
	handler  *Handler
	renderer *Renderer

	closeDeleteDelay time.Duration
}

func NewEngine(
	b *bus.MessageBus,
	sm *session.Manager,
	dls *downloader.Registry,
	caps capability.Provider,
	limiter *ratelimit.Limiter,
	cfg config.EngineConfig,
	appVersion string,
) *Engine {
	commands := builtinCommands()
	views := builtinViews()
	codec := NewCodec(commands, views)
	return &Engine{
		bus:              b,
		sessions:         sm,
		limiter:          limiter,
		cfg:              cfg,
		commands:         commands,
		views:            views,
		codec:            codec,
		handler:          NewHandler(dls),
		renderer:         NewRenderer(caps, codec, dls, appVersion),
		closeDeleteDelay: defaultCloseDeleteDelay,
	}
}

// Commands exposes the command registry for feature extensions.
func (e *Engine) Commands() *Registry { return e.commands }

// Views exposes the view registry for feature extensions.
func (e *Engine) Views() *Registry { return e.views }

// Renderer exposes the view renderer for feature extensions.
func (e *Engine) Renderer() *Renderer { return e.renderer }

// SetCloseDeleteDelay overrides how long a closed menu lingers before
// deletion. Zero deletes immediately.
func (e *Engine) SetCloseDeleteDelay(d time.Duration) {
	e.closeDeleteDelay = d
}

// Run consumes inbound events until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	logger.InfoC("menu", "Engine started")
	for {
		ev, ok := e.bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("menu", "Engine stopped")
			return
		}
		if err := e.HandleEvent(ev); err != nil {
			logger.ErrorCF("menu", "Event handling failed", map[string]any{
				"channel": ev.Channel,
				"user_id": ev.UserID,
				"error":   err.Error(),
			})
		}
	}
}

// HandleEvent routes one inbound event. It never returns an error for
// user mistakes (unknown tokens, expired sessions); those resolve into
// directives or silence.
func (e *Engine) HandleEvent(ev bus.InboundEvent) error {
	if !e.allowed(ev) {
		logger.WarnCF("menu", "Event rejected by allowlist", map[string]any{
			"channel": ev.Channel,
			"user_id": ev.UserID,
		})
		if ev.Kind == bus.EventCommand && ev.ChatID != "" {
			e.bus.PublishOutbound(bus.OutboundDirective{
				Kind:    bus.DirectiveSend,
				Channel: ev.Channel,
				Source:  ev.Source,
				ChatID:  ev.ChatID,
				Text:    "🚫 You are not allowed to use this bot.",
			})
		}
		return nil
	}

	switch ev.Kind {
	case bus.EventCommand:
		return e.handleCommand(ev)
	case bus.EventCallback:
		return e.handleCallback(ev)
	default:
		return nil
	}
}

// allowed applies the engine-level allowlists. An empty list allows
// everything on that axis; channel adapters enforce their own lists
// before events ever reach the bus.
func (e *Engine) allowed(ev bus.InboundEvent) bool {
	return matchAllow(e.cfg.AllowedChannels, ev.Channel) &&
		matchAllow(e.cfg.AllowedSources, ev.Source) &&
		(matchAllow(e.cfg.AllowedUsers, ev.UserID) || containsFold(e.cfg.AllowedUsers, ev.Username))
}

func matchAllow(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	return containsFold(list, v)
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func (e *Engine) handleCommand(ev bus.InboundEvent) error {
	target, ok := parseSlashCommand(ev.Text)
	if !ok {
		return nil
	}

	if !e.limiter.AllowCommand(ev.UserID) {
		e.bus.PublishOutbound(bus.OutboundDirective{
			Kind:    bus.DirectiveSend,
			Channel: ev.Channel,
			Source:  ev.Source,
			ChatID:  ev.ChatID,
			Text:    "⏳ Too many commands. Give it a minute.",
		})
		return nil
	}

	s := e.sessions.GetOrCreate(ev, engineOwner)
	unlock := e.sessions.Lock(s.ID)
	defer unlock()

	s.UpdateMessageContext(ev)

	// The user's slash message and any previous menu both go away; the
	// fresh menu is always the newest message in the chat.
	if ev.MessageID != "" {
		e.publishDelete(s, ev.MessageID)
	}
	if s.Message.MessageID != "" {
		e.publishDelete(s, s.Message.MessageID)
		s.Message.MessageID = ""
	}

	s.Reset()
	if target == ViewClose {
		e.finishClose(s)
		return nil
	}
	if target != ViewStart {
		s.GoTo(target)
	}

	return e.renderAndDeliver(s, "")
}

// parseSlashCommand maps a command message to its target view.
// "/start" is accepted as an alias for the bare command because
// platforms send it on first contact.
func parseSlashCommand(text string) (view string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", false
	}
	name := fields[0]
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	if name == "/start" {
		return ViewStart, true
	}
	if name != slashCommand {
		return "", false
	}
	if len(fields) == 1 {
		return ViewStart, true
	}
	switch strings.ToLower(fields[1]) {
	case "downloaders", "dl":
		return ViewDownloaderMenu, true
	case "tasks":
		return ViewTasks, true
	case "settings":
		return ViewSettings, true
	case "version":
		return ViewVersion, true
	case "close":
		return ViewClose, true
	default:
		return ViewStart, true
	}
}

func (e *Engine) handleCallback(ev bus.InboundEvent) error {
	sid, raw, ok := Decode(ev.Text)
	if !ok {
		logger.DebugCF("menu", "Ignoring foreign callback payload", map[string]any{
			"channel": ev.Channel,
		})
		return nil
	}

	s := e.sessions.Get(sid)
	if s == nil {
		// Expired or never existed. Replace the stale menu in place so
		// the dead buttons disappear.
		if ev.MessageID != "" {
			e.bus.PublishOutbound(bus.OutboundDirective{
				Kind:      bus.DirectiveEdit,
				Channel:   ev.Channel,
				Source:    ev.Source,
				ChatID:    ev.ChatID,
				MessageID: ev.MessageID,
				Text:      "⌛ This menu has expired. Send /qbremote to open a new one.",
			})
		}
		return nil
	}

	if !e.limiter.AllowCommand(ev.UserID) {
		logger.DebugCF("menu", "Callback rate limited", map[string]any{"user_id": ev.UserID})
		return nil
	}

	unlock := e.sessions.Lock(s.ID)
	defer unlock()

	// Buttons are bound to the user whose interaction created the
	// session. Forwarded menus press nothing. Checked before the event
	// context is absorbed so a stranger's press cannot rebind the
	// session.
	if ev.UserID != s.Message.UserID {
		logger.WarnCF("menu", "Callback from a different user dropped", map[string]any{
			"session": sid,
			"user_id": ev.UserID,
		})
		return nil
	}

	s.UpdateMessageContext(ev)

	action, ok := e.codec.ResolveAction(raw)
	if !ok {
		// A token minted by an older build whose codes no longer
		// resolve. Land the session somewhere usable.
		logger.WarnCF("menu", "Callback with unknown codes", map[string]any{
			"session": sid,
			"command": raw.Command,
			"view":    raw.View,
		})
		s.GoTo(ViewStart)
		return e.renderAndDeliver(s, "⚠️ That button is no longer valid.")
	}

	notice, err := e.handler.Apply(context.Background(), s, action)
	if err != nil {
		logger.WarnCF("menu", "Action rejected", map[string]any{
			"session": s.ID,
			"command": action.Command,
			"error":   err.Error(),
		})
		s.GoTo(ViewStart)
		return e.renderAndDeliver(s, "⚠️ That didn't work. Back to the main menu.")
	}

	if s.Business.CurrentView == ViewClose {
		e.finishClose(s)
		return nil
	}

	return e.renderAndDeliver(s, notice)
}

// renderAndDeliver renders the current view and ships it, editing the
// tracked menu message when there is one and sending fresh otherwise.
func (e *Engine) renderAndDeliver(s *session.Session, notice string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	view, err := e.renderer.Render(ctx, s)
	if err != nil {
		return err
	}
	text := view.Text
	if notice != "" {
		text = notice + "\n\n" + text
	}

	d := bus.OutboundDirective{
		Kind:    bus.DirectiveSend,
		Channel: s.Message.Channel,
		Source:  s.Message.Source,
		ChatID:  s.Message.ChatID,
		UserID:  s.Message.UserID,
		Title:   view.Title,
		Text:    text,
		Buttons: view.Buttons,
	}
	if s.Message.MessageID != "" {
		d.Kind = bus.DirectiveEdit
		d.MessageID = s.Message.MessageID
	}
	e.bus.PublishOutbound(d)
	return nil
}

// finishClose renders the closing notice, ends the session immediately
// and schedules deletion of the menu message. The timer captures plain
// values, so a new session in the same chat is unaffected.
func (e *Engine) finishClose(s *session.Session) {
	s.GoTo(ViewClose)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	view, err := e.renderer.Render(ctx, s)
	cancel()
	if err != nil {
		view = &RenderedView{Text: "✅ Session closed."}
	}

	d := bus.OutboundDirective{
		Kind:    bus.DirectiveSend,
		Channel: s.Message.Channel,
		Source:  s.Message.Source,
		ChatID:  s.Message.ChatID,
		Title:   view.Title,
		Text:    view.Text,
	}
	if s.Message.MessageID != "" {
		d.Kind = bus.DirectiveEdit
		d.MessageID = s.Message.MessageID
	}
	e.bus.PublishOutbound(d)

	e.sessions.End(s.ID)

	if d.MessageID == "" {
		return
	}
	del := bus.OutboundDirective{
		Kind:      bus.DirectiveDelete,
		Channel:   d.Channel,
		Source:    d.Source,
		ChatID:    d.ChatID,
		MessageID: d.MessageID,
	}
	if e.closeDeleteDelay <= 0 {
		e.bus.PublishOutbound(del)
		return
	}
	time.AfterFunc(e.closeDeleteDelay, func() {
		e.bus.PublishOutbound(del)
	})
}

func (e *Engine) publishDelete(s *session.Session, messageID string) {
	e.bus.PublishOutbound(bus.OutboundDirective{
		Kind:      bus.DirectiveDelete,
		Channel:   s.Message.Channel,
		Source:    s.Message.Source,
		ChatID:    s.Message.ChatID,
		MessageID: messageID,
	})
}
