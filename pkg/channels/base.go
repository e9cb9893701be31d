// Package channels hosts the platform adapters. Each adapter turns
// platform updates into inbound events on the bus and executes the
// outbound directives the engine publishes.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/logger"
)

// Channel is one messaging platform adapter.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Deliver(ctx context.Context, d bus.OutboundDirective) error
	IsRunning() bool
}

// BaseChannel carries the pieces every adapter shares: the bus handle,
// the allowlist and the running flag.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
	running   atomic.Bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       b,
		allowFrom: allowFrom,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(v bool) {
	c.running.Store(v)
}

// IsAllowed reports whether a sender passes the allowlist. Both sides
// may be compound "id|username" strings, so any component matching any
// component of an entry counts; "@" prefixes on entries are cosmetic.
// An empty allowlist allows everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	senderParts := strings.Split(senderID, "|")
	for _, entry := range c.allowFrom {
		for _, entryPart := range strings.Split(entry, "|") {
			entryPart = strings.TrimPrefix(strings.TrimSpace(entryPart), "@")
			if entryPart == "" {
				continue
			}
			for _, senderPart := range senderParts {
				if strings.EqualFold(senderPart, entryPart) {
					return true
				}
			}
		}
	}
	return false
}

// PublishEvent puts an inbound event on the bus after the allowlist
// check. The compound sender id covers platforms where the allowlist
// may hold either numeric ids or usernames.
func (c *BaseChannel) PublishEvent(ev bus.InboundEvent) {
	senderID := ev.UserID
	if ev.Username != "" {
		senderID = ev.UserID + "|" + ev.Username
	}
	if !c.IsAllowed(senderID) {
		logger.DebugCF(c.name, "Event rejected by allowlist", map[string]any{
			"user_id":  ev.UserID,
			"username": ev.Username,
		})
		return
	}
	ev.Channel = c.name
	c.bus.PublishInbound(ev)
}
